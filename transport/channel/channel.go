// Package channel provides an in-memory Go channel transport for reqflow.
// This transport is useful for testing and local development. Request/reply
// is built on watermill's gochannel Pub/Sub: every connection owns a private
// reply topic and matches replies by correlation id.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/reqflow/internal/runtime/logging"
	"github.com/drblury/reqflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Metadata keys carried on every request message.
const (
	replyToKey       = "reqflow_reply_to"
	correlationIDKey = "reqflow_correlation_id"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("channel transport: connection closed")

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel transport.
func Build(ctx context.Context, cfg transport.Config, logger *slog.Logger) (transport.Transport, error) {
	logger = logging.Default(logger)
	pubSub := Factory(
		gochannel.Config{OutputChannelBuffer: 64},
		logging.NewWatermillAdapter(logger),
	)
	return &chanTransport{pubSub: pubSub, logger: logger}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

type chanTransport struct {
	pubSub *gochannel.GoChannel
	logger *slog.Logger
}

// topicOf maps an address to a gochannel topic. The scheme is cosmetic.
func topicOf(addr string) string {
	if i := strings.Index(addr, "://"); i >= 0 {
		return addr[i+3:]
	}
	return addr
}

func (t *chanTransport) Listen(ctx context.Context, addr string, h transport.Handler) (transport.Listener, error) {
	subCtx, cancel := context.WithCancel(ctx)
	topic := topicOf(addr)
	messages, err := t.pubSub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("channel transport: listen %s: %w", addr, err)
	}

	go t.serve(subCtx, messages, h)
	return &chanListener{addr: addr, cancel: cancel}, nil
}

func (t *chanTransport) serve(ctx context.Context, messages <-chan *message.Message, h transport.Handler) {
	for msg := range messages {
		rep := h(ctx, msg.Payload)
		if replyTo := msg.Metadata.Get(replyToKey); replyTo != "" {
			out := message.NewMessage(watermill.NewUUID(), rep)
			out.Metadata.Set(correlationIDKey, msg.Metadata.Get(correlationIDKey))
			if err := t.pubSub.Publish(replyTo, out); err != nil {
				t.logger.Error("channel transport: reply publish failed",
					"reply_to", replyTo, "err", err)
			}
		}
		msg.Ack()
	}
}

func (t *chanTransport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	conn := &chanConn{
		transport:  t,
		topic:      topicOf(addr),
		replyTopic: topicOf(addr) + ".reply." + watermill.NewShortUUID(),
		cancel:     cancel,
		closed:     make(chan struct{}),
		pending:    make(map[string]chan []byte),
	}
	replies, err := t.pubSub.Subscribe(connCtx, conn.replyTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("channel transport: dial %s: %w", addr, err)
	}
	go conn.route(replies)
	return conn, nil
}

func (t *chanTransport) Close() error {
	return t.pubSub.Close()
}

type chanConn struct {
	transport  *chanTransport
	topic      string
	replyTopic string
	cancel     context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan []byte
	closed  chan struct{}
	once    sync.Once
}

// route delivers reply messages to the Send waiting on their correlation id.
func (c *chanConn) route(replies <-chan *message.Message) {
	for msg := range replies {
		c.mu.Lock()
		waiting, ok := c.pending[msg.Metadata.Get(correlationIDKey)]
		if ok {
			delete(c.pending, msg.Metadata.Get(correlationIDKey))
		}
		c.mu.Unlock()
		if ok {
			waiting <- msg.Payload
		}
		msg.Ack()
	}
}

func (c *chanConn) Send(ctx context.Context, req []byte) ([]byte, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}

	correlationID := watermill.NewUUID()
	waiting := make(chan []byte, 1)
	c.mu.Lock()
	c.pending[correlationID] = waiting
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	msg := message.NewMessage(watermill.NewUUID(), req)
	msg.Metadata.Set(replyToKey, c.replyTopic)
	msg.Metadata.Set(correlationIDKey, correlationID)
	if err := c.transport.pubSub.Publish(c.topic, msg); err != nil {
		return nil, fmt.Errorf("channel transport: send: %w", err)
	}

	select {
	case rep := <-waiting:
		return rep, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *chanConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.cancel()
	})
	return nil
}

type chanListener struct {
	addr   string
	cancel context.CancelFunc
	once   sync.Once
}

func (l *chanListener) Addr() string { return l.addr }

func (l *chanListener) Close() error {
	l.once.Do(l.cancel)
	return nil
}
