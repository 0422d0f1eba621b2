package wire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/reqflow/internal/runtime/config"
	rterrors "github.com/drblury/reqflow/internal/runtime/errors"
	"github.com/drblury/reqflow/internal/runtime/exec"
	"github.com/drblury/reqflow/internal/runtime/jsoncodec"
	"github.com/drblury/reqflow/internal/runtime/logging"
	"github.com/drblury/reqflow/internal/runtime/reqrep"
	"github.com/drblury/reqflow/transport"
)

// DialError reports that a client could not reach its server within the
// configured retry budget.
type DialError struct {
	Addr string
	Err  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("reqflow: dial %s: %v", e.Addr, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// AlreadyRegisteredError reports a second client registration for a ReqRepID.
type AlreadyRegisteredError struct {
	ID reqrep.ReqRepID
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("reqflow: client already registered: %s", e.ID)
}

// DialOptions customises how Register reaches the server before the client
// is handed out. Zero values fall back to defaults.
type DialOptions struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// PingTimeout bounds each readiness probe.
	PingTimeout time.Duration
}

func (o DialOptions) withDefaults() DialOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 100 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 5 * time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = time.Second
	}
	return o
}

// DialOptionsFromConfig lifts the dial tuning out of the module config.
func DialOptionsFromConfig(c *config.Config) DialOptions {
	if c == nil {
		return DialOptions{}
	}
	return DialOptions{
		MaxRetries:      c.DialMaxRetries,
		InitialInterval: c.DialInitialInterval,
		MaxInterval:     c.DialMaxInterval,
	}
}

// wireRequest carries the caller's context alongside the encoded frame so
// the round trip performed on the broker loop stays cancellable.
type wireRequest struct {
	ctx   context.Context
	frame []byte
}

type wireResult struct {
	frame []byte
	err   error
}

type connProcessor struct {
	conn transport.Conn
}

func (p connProcessor) Process(req wireRequest) wireResult {
	rep, err := p.conn.Send(req.ctx, req.frame)
	return wireResult{frame: rep, err: err}
}

// Client is the caller side of a served service. It is itself a ReqRep
// service: requests are queued on a bounded channel and a broker loop
// performs the transport round trips one at a time, so a client applies the
// same backpressure semantics as an in-process service.
type Client struct {
	addr   string
	conn   transport.Conn
	rr     *reqrep.ReqRep[wireRequest, wireResult]
	logger *slog.Logger
}

// ID returns the ReqRepID of the remote service the client talks to.
func (c *Client) ID() reqrep.ReqRepID { return c.rr.ID() }

// Addr returns the transport address the client is connected to.
func (c *Client) Addr() string { return c.addr }

// Send performs one raw round trip with an encoded request payload.
func (c *Client) Send(ctx context.Context, payload []byte) ([]byte, error) {
	res, err := c.rr.Call(ctx, wireRequest{ctx: ctx, frame: encodeFrame(kindRequest, payload)})
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}
	kind, reply, err := decodeFrame(res.frame)
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindReply:
		return reply, nil
	case kindError:
		return nil, &ServerError{Msg: string(reply)}
	default:
		return nil, fmt.Errorf("reqflow: unexpected reply frame kind 0x%02x", kind)
	}
}

// Ping probes the server and reports whether it answered.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.rr.Call(ctx, wireRequest{ctx: ctx, frame: encodeFrame(kindPing, nil)})
	if err != nil || res.err != nil {
		return false
	}
	kind, _, err := decodeFrame(res.frame)
	return err == nil && kind == kindPong
}

// Close closes the transport connection. In-flight and subsequent calls fail.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call performs a typed round trip through the client: the request is JSON
// encoded, sent as one frame, and the reply decoded into Rep.
func Call[Req, Rep any](ctx context.Context, c *Client, req Req) (Rep, error) {
	var zero Rep
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ClientCall")
	defer span.End()
	span.SetAttributes(
		attribute.String("reqrep.id", c.ID().String()),
		attribute.String("addr", c.addr),
	)

	payload, err := jsoncodec.MarshalValue(req)
	if err != nil {
		return zero, err
	}
	reply, err := c.Send(ctx, payload)
	if err != nil {
		return zero, err
	}
	return jsoncodec.UnmarshalValue[Rep](reply)
}

// ClientRegistry tracks one client per ReqRepID.
type ClientRegistry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[reqrep.ReqRepID]*Client
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(logger *slog.Logger) *ClientRegistry {
	return &ClientRegistry{
		logger:  logging.Default(logger),
		clients: make(map[reqrep.ReqRepID]*Client),
	}
}

// Register dials the server behind addr, waits until it answers pings, and
// starts the client's broker loop on the executor. The service id is taken
// from cfg. Registering an id twice fails with AlreadyRegisteredError.
func (r *ClientRegistry) Register(ctx context.Context, cfg reqrep.Config, tr transport.Transport, addr string, executor *exec.Executor, opts DialOptions) (*Client, error) {
	if tr == nil {
		return nil, rterrors.ErrTransportRequired
	}
	if addr == "" {
		return nil, rterrors.ErrURLRequired
	}
	if cfg.ID().IsZero() {
		return nil, rterrors.ErrConfigRequired
	}

	r.mu.RLock()
	_, exists := r.clients[cfg.ID()]
	r.mu.RUnlock()
	if exists {
		return nil, AlreadyRegisteredError{ID: cfg.ID()}
	}

	opts = opts.withDefaults()
	conn, err := r.dial(ctx, tr, addr, opts)
	if err != nil {
		return nil, err
	}

	rr, err := reqrep.StartService(cfg, connProcessor{conn: conn}, executor)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	client := &Client{addr: addr, conn: conn, rr: rr, logger: r.logger}

	r.mu.Lock()
	if _, exists := r.clients[cfg.ID()]; exists {
		r.mu.Unlock()
		_ = conn.Close()
		return nil, AlreadyRegisteredError{ID: cfg.ID()}
	}
	r.clients[cfg.ID()] = client
	r.mu.Unlock()

	r.logger.Info("wire client registered",
		"reqrep_id", cfg.ID().String(), "addr", addr)
	return client, nil
}

// dial connects and pings with exponential backoff until the server answers
// or the retry budget is spent.
func (r *ClientRegistry) dial(ctx context.Context, tr transport.Transport, addr string, opts DialOptions) (transport.Conn, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = opts.InitialInterval
	expo.MaxInterval = opts.MaxInterval

	attempt := func() (transport.Conn, error) {
		conn, err := tr.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
		rep, err := conn.Send(pingCtx, encodeFrame(kindPing, nil))
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		if kind, _, err := decodeFrame(rep); err != nil || kind != kindPong {
			_ = conn.Close()
			return nil, fmt.Errorf("unexpected ping reply")
		}
		return conn, nil
	}

	conn, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(opts.MaxRetries)),
	)
	if err != nil {
		return nil, &DialError{Addr: addr, Err: err}
	}
	return conn, nil
}

// Client returns the client registered under id.
func (r *ClientRegistry) Client(id reqrep.ReqRepID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// IDs returns the ids of all registered clients.
func (r *ClientRegistry) IDs() []reqrep.ReqRepID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]reqrep.ReqRepID, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}

// Count returns the number of registered clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Unregister removes the client and closes its connection.
func (r *ClientRegistry) Unregister(id reqrep.ReqRepID) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()
	if ok {
		_ = c.Close()
	}
	return ok
}

// CloseAll closes every registered client and empties the registry.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[reqrep.ReqRepID]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}
