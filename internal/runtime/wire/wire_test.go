package wire

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rterrors "github.com/drblury/reqflow/internal/runtime/errors"
	"github.com/drblury/reqflow/internal/runtime/exec"
	"github.com/drblury/reqflow/internal/runtime/reqrep"
	"github.com/drblury/reqflow/transport"
	"github.com/drblury/reqflow/transport/channel"
)

type chanConfig struct{}

func (chanConfig) GetTransport() string     { return channel.TransportName }
func (chanConfig) GetNATSURL() string       { return "" }
func (chanConfig) GetSubjectPrefix() string { return "" }

func newTransport(t *testing.T) transport.Transport {
	t.Helper()
	tr, err := channel.Build(context.Background(), chanConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func newExecutor(t *testing.T) *exec.Executor {
	t.Helper()
	registry := exec.NewRegistry(nil, nil)
	e, err := registry.Register(exec.NewBuilder(exec.NewExecutorID()).PoolSize(4))
	require.NoError(t, err)
	return e
}

type greetRequest struct {
	Name string `json:"name"`
}

type greetReply struct {
	Greeting string `json:"greeting"`
}

func startGreeter(t *testing.T, e *exec.Executor) *reqrep.ReqRep[greetRequest, greetReply] {
	t.Helper()
	cfg, err := reqrep.NewConfig(reqrep.NewReqRepID()).Build()
	require.NoError(t, err)
	rr, err := reqrep.StartService(cfg, reqrep.ProcessorFunc[greetRequest, greetReply](func(req greetRequest) greetReply {
		return greetReply{Greeting: "hello " + req.Name}
	}), e)
	require.NoError(t, err)
	return rr
}

func TestServeValidation(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	rr := startGreeter(t, e)
	ctx := context.Background()

	_, err := Serve[greetRequest, greetReply](ctx, nil, "channel://svc", rr, nil)
	assert.ErrorIs(t, err, rterrors.ErrTransportRequired)

	_, err = Serve[greetRequest, greetReply](ctx, tr, "channel://svc", nil, nil)
	assert.ErrorIs(t, err, rterrors.ErrServiceRequired)

	_, err = Serve(ctx, tr, "", rr, nil)
	assert.ErrorIs(t, err, rterrors.ErrURLRequired)
}

func TestServeAndTypedCall(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	rr := startGreeter(t, e)
	ctx := context.Background()

	handle, err := Serve(ctx, tr, "channel://greeter", rr, nil)
	require.NoError(t, err)
	defer handle.Stop()

	assert.False(t, handle.ID().IsZero())
	assert.Equal(t, rr.ID(), handle.ReqRepID())
	assert.Equal(t, "channel://greeter", handle.Addr())
	assert.True(t, handle.Ping(ctx))

	registry := NewClientRegistry(nil)
	clientCfg, err := reqrep.NewConfig(rr.ID()).Build()
	require.NoError(t, err)
	client, err := registry.Register(ctx, clientCfg, tr, "channel://greeter", e, DialOptions{})
	require.NoError(t, err)
	defer client.Close()

	rep, err := Call[greetRequest, greetReply](ctx, client, greetRequest{Name: "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", rep.Greeting)

	assert.True(t, client.Ping(ctx))
	assert.Equal(t, rr.ID(), client.ID())
	assert.Equal(t, "channel://greeter", client.Addr())
}

func TestZeroLengthPayloadSurvivesTheWire(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	ctx := context.Background()

	cfg, err := reqrep.NewConfig(reqrep.NewReqRepID()).Build()
	require.NoError(t, err)
	rr, err := reqrep.StartService(cfg, reqrep.ProcessorFunc[[]byte, []byte](func(req []byte) []byte {
		return req
	}), e)
	require.NoError(t, err)

	handle, err := Serve(ctx, tr, "channel://null", rr, nil)
	require.NoError(t, err)
	defer handle.Stop()

	registry := NewClientRegistry(nil)
	clientCfg, err := reqrep.NewConfig(rr.ID()).Build()
	require.NoError(t, err)
	client, err := registry.Register(ctx, clientCfg, tr, "channel://null", e, DialOptions{})
	require.NoError(t, err)

	rep, err := Call[[]byte, []byte](ctx, client, nil)
	require.NoError(t, err)
	assert.Empty(t, rep)
}

func TestClientAwaitsServerReadiness(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	rr := startGreeter(t, e)
	ctx := context.Background()

	// The server comes up only after the client has started dialing; the
	// registration keeps probing until a ping is answered.
	go func() {
		time.Sleep(150 * time.Millisecond)
		_, err := Serve(ctx, tr, "channel://late", rr, nil)
		assert.NoError(t, err)
	}()

	registry := NewClientRegistry(nil)
	clientCfg, err := reqrep.NewConfig(rr.ID()).Build()
	require.NoError(t, err)
	client, err := registry.Register(ctx, clientCfg, tr, "channel://late", e, DialOptions{
		MaxRetries:  10,
		PingTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	rep, err := Call[greetRequest, greetReply](ctx, client, greetRequest{Name: "late"})
	require.NoError(t, err)
	assert.Equal(t, "hello late", rep.Greeting)
}

func TestRegisterFailsWithoutServer(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	ctx := context.Background()

	registry := NewClientRegistry(nil)
	cfg, err := reqrep.NewConfig(reqrep.NewReqRepID()).Build()
	require.NoError(t, err)

	_, err = registry.Register(ctx, cfg, tr, "channel://nobody", e, DialOptions{
		MaxRetries:      2,
		InitialInterval: 10 * time.Millisecond,
		PingTimeout:     50 * time.Millisecond,
	})
	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.Equal(t, "channel://nobody", dialErr.Addr)
	assert.Equal(t, 0, registry.Count())
}

func TestDuplicateClientRegistration(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	rr := startGreeter(t, e)
	ctx := context.Background()

	handle, err := Serve(ctx, tr, "channel://dup", rr, nil)
	require.NoError(t, err)
	defer handle.Stop()

	registry := NewClientRegistry(nil)
	cfg, err := reqrep.NewConfig(rr.ID()).Build()
	require.NoError(t, err)
	_, err = registry.Register(ctx, cfg, tr, "channel://dup", e, DialOptions{})
	require.NoError(t, err)

	_, err = registry.Register(ctx, cfg, tr, "channel://dup", e, DialOptions{})
	var dup AlreadyRegisteredError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, rr.ID(), dup.ID)
	assert.Equal(t, 1, registry.Count())
}

func TestClientRegistryLookupAndUnregister(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	rr := startGreeter(t, e)
	ctx := context.Background()

	handle, err := Serve(ctx, tr, "channel://lookup", rr, nil)
	require.NoError(t, err)
	defer handle.Stop()

	registry := NewClientRegistry(nil)
	cfg, err := reqrep.NewConfig(rr.ID()).Build()
	require.NoError(t, err)
	client, err := registry.Register(ctx, cfg, tr, "channel://lookup", e, DialOptions{})
	require.NoError(t, err)

	got, ok := registry.Client(rr.ID())
	require.True(t, ok)
	assert.Same(t, client, got)
	assert.Equal(t, []reqrep.ReqRepID{rr.ID()}, registry.IDs())

	assert.True(t, registry.Unregister(rr.ID()))
	assert.False(t, registry.Unregister(rr.ID()))
	_, ok = registry.Client(rr.ID())
	assert.False(t, ok)
}

func TestServerErrorReachesTheClient(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	ctx := context.Background()

	// The processor panics on every request; the executor isolates the
	// panic, the broker drops the reply, and the server turns the dropped
	// reply into an error frame.
	cfg, err := reqrep.NewConfig(reqrep.NewReqRepID()).Build()
	require.NoError(t, err)
	rr, err := reqrep.StartService(cfg, reqrep.ProcessorFunc[greetRequest, greetReply](func(req greetRequest) greetReply {
		panic("no greeting today")
	}), e)
	require.NoError(t, err)

	handle, err := Serve(ctx, tr, "channel://grumpy", rr, nil)
	require.NoError(t, err)
	defer handle.Stop()

	registry := NewClientRegistry(nil)
	clientCfg, err := reqrep.NewConfig(rr.ID()).Build()
	require.NoError(t, err)
	client, err := registry.Register(ctx, clientCfg, tr, "channel://grumpy", e, DialOptions{})
	require.NoError(t, err)

	_, err = Call[greetRequest, greetReply](ctx, client, greetRequest{Name: "x"})
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.True(t, strings.Contains(serverErr.Msg, "disconnected"))

	// The server keeps serving after the failed request.
	assert.True(t, client.Ping(ctx))
}

func TestServerStop(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	rr := startGreeter(t, e)
	ctx := context.Background()

	handle, err := Serve(ctx, tr, "channel://stoppable", rr, nil)
	require.NoError(t, err)
	require.False(t, handle.Stopped())

	handle.Stop()
	assert.True(t, handle.Stopped())

	pingCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	assert.False(t, handle.Ping(pingCtx))

	// Stop is idempotent.
	handle.Stop()
}

func TestServerRegistry(t *testing.T) {
	tr := newTransport(t)
	e := newExecutor(t)
	rr := startGreeter(t, e)
	ctx := context.Background()

	registry := NewServerRegistry(nil)
	h1, err := Serve(ctx, tr, "channel://one", rr, nil)
	require.NoError(t, err)
	h2, err := Serve(ctx, tr, "channel://two", rr, nil)
	require.NoError(t, err)
	registry.Register(h1)
	registry.Register(h2)

	assert.Equal(t, 2, registry.Count())
	got, ok := registry.Handle(h1.ID())
	require.True(t, ok)
	assert.Same(t, h1, got)
	assert.Len(t, registry.Handles(), 2)

	registry.StopAll()
	assert.Equal(t, 0, registry.Count())
	assert.True(t, h1.Stopped())
	assert.True(t, h2.Stopped())
}
