package reqflow

import (
	"context"
	"log/slog"

	configpkg "github.com/drblury/reqflow/internal/runtime/config"
	errspkg "github.com/drblury/reqflow/internal/runtime/errors"
	execpkg "github.com/drblury/reqflow/internal/runtime/exec"
	idspkg "github.com/drblury/reqflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/reqflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
	metricspkg "github.com/drblury/reqflow/internal/runtime/metrics"
	reqreppkg "github.com/drblury/reqflow/internal/runtime/reqrep"
	wirepkg "github.com/drblury/reqflow/internal/runtime/wire"
	transportpkg "github.com/drblury/reqflow/transport"
)

type (
	Config                = configpkg.Config
	ConfigValidationError = errspkg.ConfigValidationError

	// Executors
	ExecutorID       = execpkg.ExecutorID
	Executor         = execpkg.Executor
	ExecutorBuilder  = execpkg.Builder
	ExecutorRegistry = execpkg.Registry
	Task             = execpkg.Task

	ExecutorAlreadyRegisteredError = execpkg.AlreadyRegisteredError

	// ReqRep services
	ReqRepID                       = reqreppkg.ReqRepID
	MessageID                      = reqreppkg.MessageID
	ServiceConfig                  = reqreppkg.Config
	ServiceConfigBuilder           = reqreppkg.ConfigBuilder
	Processor[Req any, Rep any]    = reqreppkg.Processor[Req, Rep]
	ProcessorFunc[Req, Rep any]    = reqreppkg.ProcessorFunc[Req, Rep]
	ReqRep[Req any, Rep any]       = reqreppkg.ReqRep[Req, Rep]
	ReplyReceiver[Rep any]         = reqreppkg.ReplyReceiver[Rep]

	TimerBuckets = metricspkg.TimerBuckets

	// Wire layer
	Client         = wirepkg.Client
	ClientRegistry = wirepkg.ClientRegistry
	ServerID       = wirepkg.ServerID
	ServerHandle   = wirepkg.ServerHandle
	ServerRegistry = wirepkg.ServerRegistry
	DialOptions    = wirepkg.DialOptions
	DialError      = wirepkg.DialError
	ServerError    = wirepkg.ServerError

	ClientAlreadyRegisteredError = wirepkg.AlreadyRegisteredError

	// Transports
	Transport             = transportpkg.Transport
	TransportConn         = transportpkg.Conn
	TransportListener     = transportpkg.Listener
	TransportHandler      = transportpkg.Handler
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	ValidateConfig = configpkg.ValidateConfig

	// Executors
	NewExecutorID       = execpkg.NewExecutorID
	ParseExecutorID     = execpkg.ParseExecutorID
	NewExecutorBuilder  = execpkg.NewBuilder
	NewExecutorRegistry = execpkg.NewRegistry
	GlobalExecutorID    = execpkg.GlobalExecutorID

	// ReqRep services
	NewReqRepID      = reqreppkg.NewReqRepID
	ParseReqRepID    = reqreppkg.ParseReqRepID
	NewMessageID     = reqreppkg.NewMessageID
	NewServiceConfig = reqreppkg.NewConfig

	NewTimerBuckets         = metricspkg.NewTimerBuckets
	ExponentialTimerBuckets = metricspkg.ExponentialTimerBuckets
	NewExecutorMetrics      = metricspkg.NewExec
	NewReqRepMetrics        = metricspkg.NewReqRep
	MetricsHandler          = metricspkg.Handler
	StartMetricsServer      = metricspkg.StartServer

	// Wire layer
	NewClientRegistry     = wirepkg.NewClientRegistry
	NewServerRegistry     = wirepkg.NewServerRegistry
	NewServerID           = wirepkg.NewServerID
	DialOptionsFromConfig = wirepkg.DialOptionsFromConfig

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/reqflow/transport/channel"
	// or the bundle: _ "github.com/drblury/reqflow/transport/transports"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrExecutorRequired  = errspkg.ErrExecutorRequired
	ErrProcessorRequired = errspkg.ErrProcessorRequired
	ErrTransportRequired = errspkg.ErrTransportRequired
	ErrServiceRequired   = errspkg.ErrServiceRequired
	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrURLRequired       = errspkg.ErrURLRequired

	ErrTaskPanicked         = execpkg.ErrTaskPanicked
	ErrSenderDisconnected   = reqreppkg.ErrSenderDisconnected
	ErrReceiverDisconnected = reqreppkg.ErrReceiverDisconnected

	NewLogger           = loggingpkg.New
	NewWatermillAdapter = loggingpkg.NewWatermillAdapter

	CreateULID = idspkg.CreateULID
	NewULID    = idspkg.NewULID
)

// StartService spawns the broker loop for the processor on the executor and
// returns the client handle.
func StartService[Req, Rep any](cfg ServiceConfig, processor Processor[Req, Rep], executor *Executor) (*ReqRep[Req, Rep], error) {
	return reqreppkg.StartService(cfg, processor, executor)
}

// Serve binds a running service to a transport address.
func Serve[Req, Rep any](ctx context.Context, tr Transport, addr string, rr *ReqRep[Req, Rep], logger *slog.Logger) (*ServerHandle, error) {
	return wirepkg.Serve(ctx, tr, addr, rr, logger)
}

// Call performs a typed round trip through a wire client.
func Call[Req, Rep any](ctx context.Context, c *Client, req Req) (Rep, error) {
	return wirepkg.Call[Req, Rep](ctx, c, req)
}

// Await runs fn on the executor and blocks until its result is available.
func Await[R any](e *Executor, fn func() R) (R, error) {
	return execpkg.Await(e, fn)
}

// Channel runs fn on the executor and returns a channel that yields the
// result. The channel is closed without a value if fn panics.
func Channel[R any](e *Executor, fn func() R) <-chan R {
	return execpkg.Channel(e, fn)
}
