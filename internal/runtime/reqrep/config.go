package reqrep

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	rterrors "github.com/drblury/reqflow/internal/runtime/errors"
	"github.com/drblury/reqflow/internal/runtime/logging"
	"github.com/drblury/reqflow/internal/runtime/metrics"
)

// Defaults applied by ConfigBuilder.Build when the caller left the field
// unset.
const (
	DefaultChanBufSize = 1

	defaultBucketStart  = time.Millisecond
	defaultBucketFactor = 2
	defaultBucketCount  = 10
)

// Config describes a ReqRep service: its identity, the latency histogram
// buckets, and the request channel capacity. Immutable once built.
type Config struct {
	id          ReqRepID
	buckets     metrics.TimerBuckets
	chanBufSize int
	logger      *slog.Logger
	metrics     *metrics.ReqRep
}

// ID returns the ReqRepID.
func (c Config) ID() ReqRepID { return c.id }

// TimerBuckets returns the latency histogram boundaries.
func (c Config) TimerBuckets() metrics.TimerBuckets { return c.buckets }

// ChanBufSize returns the bounded request channel capacity.
func (c Config) ChanBufSize() int { return c.chanBufSize }

// ConfigBuilder assembles a Config. Zero optional fields are filled with
// defaults at Build time.
type ConfigBuilder struct {
	cfg Config
}

// NewConfig starts a builder for the given service id.
func NewConfig(id ReqRepID) *ConfigBuilder {
	return &ConfigBuilder{cfg: Config{id: id}}
}

// TimerBuckets sets the latency histogram boundaries.
func (b *ConfigBuilder) TimerBuckets(tb metrics.TimerBuckets) *ConfigBuilder {
	b.cfg.buckets = tb
	return b
}

// ChanBufSize sets the request channel capacity. Must be >= 1.
func (b *ConfigBuilder) ChanBufSize(n int) *ConfigBuilder {
	b.cfg.chanBufSize = n
	return b
}

// Logger sets the logger used by the broker loop.
func (b *ConfigBuilder) Logger(log *slog.Logger) *ConfigBuilder {
	b.cfg.logger = log
	return b
}

// Metrics sets the metric bundle the service registers itself with. Unset,
// the service keeps its metrics in a private registry.
func (b *ConfigBuilder) Metrics(m *metrics.ReqRep) *ConfigBuilder {
	b.cfg.metrics = m
	return b
}

// Build validates the configuration and fills defaults: chan buf size 1 and
// an exponential bucket series starting at 1ms.
func (b *ConfigBuilder) Build() (Config, error) {
	cfg := b.cfg
	if cfg.id.IsZero() {
		return Config{}, rterrors.ConfigValidationError{Err: errors.New("reqrep id is required")}
	}
	switch {
	case cfg.chanBufSize == 0:
		cfg.chanBufSize = DefaultChanBufSize
	case cfg.chanBufSize < 1:
		return Config{}, rterrors.ConfigValidationError{
			Err: fmt.Errorf("chan buf size must be >= 1: %d", cfg.chanBufSize),
		}
	}
	if cfg.buckets.IsZero() {
		tb, err := metrics.ExponentialTimerBuckets(defaultBucketStart, defaultBucketFactor, defaultBucketCount)
		if err != nil {
			return Config{}, err
		}
		cfg.buckets = tb
	}
	cfg.logger = logging.Default(cfg.logger)
	if cfg.metrics == nil {
		cfg.metrics = metrics.NewReqRep(nil)
	}
	return cfg, nil
}
