// Package reqrep implements a request/reply broker over bounded channels.
// Think of a ReqRep as a generic function Req -> Rep identified by a
// ReqRepID: the client side submits requests through a bounded channel and
// awaits a one-shot reply, the backend side is a Processor driven by a
// broker loop running on an executor.
//
//	caller ---Req--> ReqRep ---Req--> Processor
//	caller <--Rep--- ReqRep <--Rep--- Processor
//
// Callers and processors are decoupled: the processor may live in the same
// process or behind a wire transport without the caller changing.
package reqrep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	rterrors "github.com/drblury/reqflow/internal/runtime/errors"
	"github.com/drblury/reqflow/internal/runtime/exec"
	"github.com/drblury/reqflow/internal/runtime/ids"
	"github.com/drblury/reqflow/internal/runtime/metrics"
)

var (
	// ErrSenderDisconnected is returned by Send once the broker loop has
	// terminated and no longer drains the request channel.
	ErrSenderDisconnected = errors.New("reqflow: reqrep sender disconnected")

	// ErrReceiverDisconnected is returned by Recv when the broker dropped
	// the request without producing a reply, e.g. because the processor
	// panicked on that specific request.
	ErrReceiverDisconnected = errors.New("reqflow: reqrep receiver disconnected")
)

// ReqRepID uniquely names a request/reply service.
type ReqRepID ulid.ULID

// NewReqRepID mints a fresh ReqRepID.
func NewReqRepID() ReqRepID { return ReqRepID(ids.NewULID()) }

// ParseReqRepID parses the 26-character ULID encoding of a ReqRepID.
func ParseReqRepID(s string) (ReqRepID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ReqRepID{}, fmt.Errorf("reqflow: invalid reqrep id %q: %w", s, err)
	}
	return ReqRepID(id), nil
}

func (id ReqRepID) String() string { return ulid.ULID(id).String() }

// IsZero reports whether the id is the zero value.
func (id ReqRepID) IsZero() bool { return id == ReqRepID{} }

// MessageID identifies a single request envelope.
type MessageID ulid.ULID

// NewMessageID mints a fresh MessageID.
func NewMessageID() MessageID { return MessageID(ids.NewULID()) }

func (id MessageID) String() string { return ulid.ULID(id).String() }

// IsZero reports whether the id is the zero value.
func (id MessageID) IsZero() bool { return id == MessageID{} }

// Processor is the user-supplied synchronous request handler. Process runs
// on the broker loop's goroutine, one request at a time.
type Processor[Req, Rep any] interface {
	Process(req Req) Rep
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc[Req, Rep any] func(Req) Rep

func (f ProcessorFunc[Req, Rep]) Process(req Req) Rep { return f(req) }

// envelope pairs a request with its one-shot reply channel. The reply
// channel is resolved at most once: either a single reply is sent and the
// channel closed, or it is closed without a value.
type envelope[Req, Rep any] struct {
	msgID  MessageID
	req    Req
	replyC chan Rep
}

// ReplyReceiver is the awaitable side of a one-shot reply cell.
type ReplyReceiver[Rep any] struct {
	msgID MessageID
	c     <-chan Rep
}

// MessageID returns the id assigned to the request this receiver belongs to.
func (r *ReplyReceiver[Rep]) MessageID() MessageID { return r.msgID }

// Recv blocks until the reply arrives, the broker drops the request, or ctx
// is done.
func (r *ReplyReceiver[Rep]) Recv(ctx context.Context) (Rep, error) {
	var zero Rep
	select {
	case rep, ok := <-r.c:
		if !ok {
			return zero, ErrReceiverDisconnected
		}
		return rep, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ReqRep is the client handle of a request/reply service. Handles are cheap
// shared references; the only way to submit work to the broker is Send.
type ReqRep[Req, Rep any] struct {
	id       ReqRepID
	requests chan *envelope[Req, Rep]
	done     chan struct{}
	sm       metrics.ServiceMetrics
	logger   *slog.Logger
}

// StartService spawns the broker loop on the executor and returns the
// client handle. The loop drains the bounded request channel for the life
// of the process, occupying one pool worker.
//
// Panic handling follows the executor's CatchPanic flag: enabled, a panic
// inside Process fails only the request that caused it and the loop keeps
// serving; disabled, the panic terminates the loop and every current and
// future Send observes a disconnect error.
func StartService[Req, Rep any](cfg Config, processor Processor[Req, Rep], executor *exec.Executor) (*ReqRep[Req, Rep], error) {
	if processor == nil {
		return nil, rterrors.ErrProcessorRequired
	}
	if executor == nil {
		return nil, rterrors.ErrExecutorRequired
	}
	if cfg.id.IsZero() {
		return nil, rterrors.ErrConfigRequired
	}

	rr := &ReqRep[Req, Rep]{
		id:       cfg.id,
		requests: make(chan *envelope[Req, Rep], cfg.chanBufSize),
		done:     make(chan struct{}),
		sm:       cfg.metrics.ForService(cfg.id.String(), cfg.buckets),
		logger:   cfg.logger,
	}
	isolate := executor.CatchPanic()
	executor.Spawn(func() { rr.serve(processor, isolate) })
	return rr, nil
}

// ID returns the ReqRepID of the service.
func (rr *ReqRep[Req, Rep]) ID() ReqRepID { return rr.id }

// Done is closed once the broker loop has terminated.
func (rr *ReqRep[Req, Rep]) Done() <-chan struct{} { return rr.done }

// Send enqueues the request and returns a receiver for the reply. Send
// blocks while the bounded channel is full; that is the backpressure
// mechanism. It fails with ErrSenderDisconnected once the broker loop has
// terminated, or with ctx.Err() when the context ends first.
func (rr *ReqRep[Req, Rep]) Send(ctx context.Context, req Req) (*ReplyReceiver[Rep], error) {
	select {
	case <-rr.done:
		return nil, ErrSenderDisconnected
	default:
	}

	env := &envelope[Req, Rep]{
		msgID:  NewMessageID(),
		req:    req,
		replyC: make(chan Rep, 1),
	}
	select {
	case rr.requests <- env:
		rr.sm.Sends.Inc()
		return &ReplyReceiver[Rep]{msgID: env.msgID, c: env.replyC}, nil
	case <-rr.done:
		return nil, ErrSenderDisconnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call is Send followed by Recv on the reply.
func (rr *ReqRep[Req, Rep]) Call(ctx context.Context, req Req) (Rep, error) {
	receiver, err := rr.Send(ctx, req)
	if err != nil {
		var zero Rep
		return zero, err
	}
	return receiver.Recv(ctx)
}

func (rr *ReqRep[Req, Rep]) serve(processor Processor[Req, Rep], isolate bool) {
	rr.sm.Instances.Inc()
	rr.logger.Info("reqrep service started", "reqrep_id", rr.id.String())
	defer func() {
		rr.sm.Instances.Dec()
		rr.logger.Info("reqrep service terminated", "reqrep_id", rr.id.String())
		close(rr.done)
		// Envelopes that raced past the done check resolve as receiver
		// disconnects instead of hanging their callers.
		go rr.discard()
	}()

	for env := range rr.requests {
		rr.handle(processor, env, isolate)
	}
}

func (rr *ReqRep[Req, Rep]) handle(processor Processor[Req, Rep], env *envelope[Req, Rep], isolate bool) {
	start := time.Now()
	defer func() {
		rr.sm.ProcessTimer.Observe(time.Since(start).Seconds())
	}()
	defer close(env.replyC)

	if !isolate {
		env.replyC <- processor.Process(env.req)
		return
	}
	if rep, ok := rr.invoke(processor, env); ok {
		env.replyC <- rep
	}
}

// invoke is the task-invocation boundary converting a processor panic into
// a dropped reply for this request only.
func (rr *ReqRep[Req, Rep]) invoke(processor Processor[Req, Rep], env *envelope[Req, Rep]) (rep Rep, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			rr.sm.Panics.Inc()
			rr.logger.Error("processor panicked",
				"reqrep_id", rr.id.String(),
				"message_id", env.msgID.String(),
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	return processor.Process(env.req), true
}

// discard drains the request channel of a terminated broker, closing each
// reply cell unresolved.
func (rr *ReqRep[Req, Rep]) discard() {
	for env := range rr.requests {
		close(env.replyC)
	}
}
