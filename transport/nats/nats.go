// Package nats provides a NATS Core transport for reqflow. Request/reply maps
// directly onto NATS request/reply: one subject per address, listeners join a
// queue group so instances share the load.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/drblury/reqflow/internal/runtime/logging"
	"github.com/drblury/reqflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// QueueGroup is the queue group listeners join. All listeners on one subject
// share the request load.
const QueueGroup = "reqflow"

// ConnectFactory allows overriding the NATS connection for testing.
var ConnectFactory = func(url string) (*nats.Conn, error) {
	return nats.Connect(url, nats.Name("reqflow"))
}

// Register registers the NATS transport with the default registry. This
// should be called from an init() function in an importing package, or
// explicitly before using the transport.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS transport. The connection to the cluster is
// opened lazily on the first Dial or Listen.
func Build(ctx context.Context, cfg transport.Config, logger *slog.Logger) (transport.Transport, error) {
	if cfg.GetNATSURL() == "" {
		return nil, fmt.Errorf("nats transport: URL is required")
	}
	return &natsTransport{
		url:    cfg.GetNATSURL(),
		prefix: cfg.GetSubjectPrefix(),
		logger: logging.Default(logger),
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

type natsTransport struct {
	url    string
	prefix string
	logger *slog.Logger

	mu sync.Mutex
	nc *nats.Conn
}

func (t *natsTransport) conn() (*nats.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc != nil {
		return t.nc, nil
	}
	nc, err := ConnectFactory(t.url)
	if err != nil {
		return nil, fmt.Errorf("nats transport: connect: %w", err)
	}
	t.nc = nc
	return nc, nil
}

// subjectOf maps an address to a NATS subject under the configured prefix.
func (t *natsTransport) subjectOf(addr string) string {
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	subject := strings.ReplaceAll(addr, "/", ".")
	if t.prefix == "" {
		return subject
	}
	return t.prefix + "." + subject
}

func (t *natsTransport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	nc, err := t.conn()
	if err != nil {
		return nil, err
	}
	return &natsConn{nc: nc, subject: t.subjectOf(addr)}, nil
}

func (t *natsTransport) Listen(ctx context.Context, addr string, h transport.Handler) (transport.Listener, error) {
	nc, err := t.conn()
	if err != nil {
		return nil, err
	}
	subject := t.subjectOf(addr)
	sub, err := nc.QueueSubscribe(subject, QueueGroup, func(m *nats.Msg) {
		rep := h(context.Background(), m.Data)
		if err := m.Respond(rep); err != nil {
			t.logger.Error("nats transport: respond failed", "subject", subject, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats transport: listen %s: %w", addr, err)
	}
	return &natsListener{addr: addr, sub: sub}, nil
}

func (t *natsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc != nil {
		t.nc.Close()
		t.nc = nil
	}
	return nil
}

type natsConn struct {
	nc      *nats.Conn
	subject string
}

func (c *natsConn) Send(ctx context.Context, req []byte) ([]byte, error) {
	msg, err := c.nc.RequestMsgWithContext(ctx, &nats.Msg{Subject: c.subject, Data: req})
	if err != nil {
		return nil, fmt.Errorf("nats transport: request: %w", err)
	}
	return msg.Data, nil
}

// Close is a no-op: the NATS connection is owned by the transport.
func (c *natsConn) Close() error { return nil }

type natsListener struct {
	addr string
	sub  *nats.Subscription
}

func (l *natsListener) Addr() string { return l.addr }

func (l *natsListener) Close() error {
	return l.sub.Unsubscribe()
}
