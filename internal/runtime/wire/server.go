// Package wire exposes ReqRep services over a transport. The server side
// binds a running service to a transport address; the client side is itself
// a ReqRep service whose processor performs the round trip, so local and
// remote calls share one programming model.
package wire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	rterrors "github.com/drblury/reqflow/internal/runtime/errors"
	"github.com/drblury/reqflow/internal/runtime/ids"
	"github.com/drblury/reqflow/internal/runtime/jsoncodec"
	"github.com/drblury/reqflow/internal/runtime/logging"
	"github.com/drblury/reqflow/internal/runtime/reqrep"
	"github.com/drblury/reqflow/transport"
)

const tracerName = "reqflow-wire-tracer"

// ServerID uniquely names one server instance.
type ServerID ulid.ULID

// NewServerID mints a fresh ServerID.
func NewServerID() ServerID { return ServerID(ids.NewULID()) }

func (id ServerID) String() string { return ulid.ULID(id).String() }

// IsZero reports whether the id is the zero value.
func (id ServerID) IsZero() bool { return id == ServerID{} }

// ServerHandle controls a served service instance: it reports the bound
// address, answers health probes, and stops the listener.
type ServerHandle struct {
	id       ServerID
	reqRepID reqrep.ReqRepID
	addr     string
	tr       transport.Transport
	listener transport.Listener
	logger   *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}

	mu       sync.Mutex
	pingConn transport.Conn
}

// ID returns the server instance id.
func (h *ServerHandle) ID() ServerID { return h.id }

// ReqRepID returns the id of the service behind the server.
func (h *ServerHandle) ReqRepID() reqrep.ReqRepID { return h.reqRepID }

// Addr returns the transport address the server is bound to.
func (h *ServerHandle) Addr() string { return h.addr }

// Ping probes the server over the transport and reports whether it answered.
// Use it to await readiness after Serve.
func (h *ServerHandle) Ping(ctx context.Context) bool {
	conn, err := h.conn(ctx)
	if err != nil {
		return false
	}
	rep, err := conn.Send(ctx, encodeFrame(kindPing, nil))
	if err != nil {
		return false
	}
	kind, _, err := decodeFrame(rep)
	return err == nil && kind == kindPong
}

func (h *ServerHandle) conn(ctx context.Context) (transport.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pingConn != nil {
		return h.pingConn, nil
	}
	conn, err := h.tr.Dial(ctx, h.addr)
	if err != nil {
		return nil, err
	}
	h.pingConn = conn
	return conn, nil
}

// Stop closes the listener. The underlying ReqRep service keeps running and
// stays reachable in-process; only the transport binding goes away.
func (h *ServerHandle) Stop() {
	h.stopOnce.Do(func() {
		if err := h.listener.Close(); err != nil {
			h.logger.Error("wire server: listener close failed",
				"server_id", h.id.String(), "err", err)
		}
		h.mu.Lock()
		if h.pingConn != nil {
			_ = h.pingConn.Close()
			h.pingConn = nil
		}
		h.mu.Unlock()
		close(h.stopped)
		h.logger.Info("wire server stopped",
			"server_id", h.id.String(), "addr", h.addr)
	})
}

// Stopped reports whether Stop has been called.
func (h *ServerHandle) Stopped() bool {
	select {
	case <-h.stopped:
		return true
	default:
		return false
	}
}

// Serve binds the service to addr on the transport. Requests arriving on the
// address are decoded, submitted to the service, and the replies encoded
// back. Ping frames are answered directly without touching the service.
func Serve[Req, Rep any](ctx context.Context, tr transport.Transport, addr string, rr *reqrep.ReqRep[Req, Rep], logger *slog.Logger) (*ServerHandle, error) {
	if tr == nil {
		return nil, rterrors.ErrTransportRequired
	}
	if rr == nil {
		return nil, rterrors.ErrServiceRequired
	}
	if addr == "" {
		return nil, rterrors.ErrURLRequired
	}
	logger = logging.Default(logger)

	h := &ServerHandle{
		id:       NewServerID(),
		reqRepID: rr.ID(),
		addr:     addr,
		tr:       tr,
		logger:   logger,
		stopped:  make(chan struct{}),
	}
	listener, err := tr.Listen(ctx, addr, serverHandler(rr, logger))
	if err != nil {
		return nil, fmt.Errorf("reqflow: serve %s: %w", addr, err)
	}
	h.listener = listener
	logger.Info("wire server started",
		"server_id", h.id.String(),
		"reqrep_id", h.reqRepID.String(),
		"addr", addr,
	)
	return h, nil
}

func serverHandler[Req, Rep any](rr *reqrep.ReqRep[Req, Rep], logger *slog.Logger) transport.Handler {
	return func(ctx context.Context, data []byte) []byte {
		tracer := otel.Tracer(tracerName)
		ctx, span := tracer.Start(ctx, "ServeRequest")
		defer span.End()
		span.SetAttributes(
			attribute.String("reqrep.id", rr.ID().String()),
			attribute.Int("frame.size", len(data)),
		)

		kind, payload, err := decodeFrame(data)
		if err != nil {
			return encodeFrame(kindError, []byte(err.Error()))
		}
		switch kind {
		case kindPing:
			return encodeFrame(kindPong, nil)
		case kindRequest:
			req, err := jsoncodec.UnmarshalValue[Req](payload)
			if err != nil {
				logger.Error("wire server: bad request payload",
					"reqrep_id", rr.ID().String(), "err", err)
				return encodeFrame(kindError, []byte(err.Error()))
			}
			rep, err := rr.Call(ctx, req)
			if err != nil {
				return encodeFrame(kindError, []byte(err.Error()))
			}
			out, err := jsoncodec.MarshalValue(rep)
			if err != nil {
				logger.Error("wire server: reply encode failed",
					"reqrep_id", rr.ID().String(), "err", err)
				return encodeFrame(kindError, []byte(err.Error()))
			}
			return encodeFrame(kindReply, out)
		default:
			return encodeFrame(kindError, []byte(fmt.Sprintf("unexpected frame kind 0x%02x", kind)))
		}
	}
}

// ServerRegistry tracks running server handles so they can be enumerated and
// stopped together.
type ServerRegistry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	handles map[ServerID]*ServerHandle
}

// NewServerRegistry creates an empty server registry.
func NewServerRegistry(logger *slog.Logger) *ServerRegistry {
	return &ServerRegistry{
		logger:  logging.Default(logger),
		handles: make(map[ServerID]*ServerHandle),
	}
}

// Register adds the handle to the registry.
func (r *ServerRegistry) Register(h *ServerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.id] = h
}

// Handle returns the handle registered under id.
func (r *ServerRegistry) Handle(id ServerID) (*ServerHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Handles returns a snapshot of all registered handles.
func (r *ServerRegistry) Handles() []*ServerHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]*ServerHandle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	return handles
}

// Count returns the number of registered handles.
func (r *ServerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// StopAll stops every registered handle and empties the registry.
func (r *ServerRegistry) StopAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[ServerID]*ServerHandle)
	r.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}
