package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label names used across the reqflow metric families.
const (
	ExecutorIDLabel = "executor_id"
	ReqRepIDLabel   = "reqrep_id"
)

// Exec bundles the metric families tracking executor activity. One bundle is
// owned by each executor registry; per-executor handles are curried out of
// the vectors with the executor_id label.
type Exec struct {
	spawned   *prometheus.CounterVec
	completed *prometheus.CounterVec
	panicked  *prometheus.CounterVec
	active    *prometheus.GaugeVec
	poolSize  *prometheus.GaugeVec
}

// NewExec registers the executor metric families with reg. A nil reg falls
// back to a private registry so instrumentation never becomes a nil check at
// the call sites.
func NewExec(reg prometheus.Registerer) *Exec {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Exec{
		spawned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqflow_executor_spawned_tasks_total",
			Help: "Number of tasks the executor has spawned.",
		}, []string{ExecutorIDLabel}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqflow_executor_completed_tasks_total",
			Help: "Number of tasks the executor has completed.",
		}, []string{ExecutorIDLabel}),
		panicked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqflow_executor_panicked_tasks_total",
			Help: "Number of spawned tasks that panicked.",
		}, []string{ExecutorIDLabel}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reqflow_executor_active_tasks",
			Help: "Number of tasks currently running on the executor.",
		}, []string{ExecutorIDLabel}),
		poolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reqflow_executor_pool_size",
			Help: "Configured worker pool size.",
		}, []string{ExecutorIDLabel}),
	}
	reg.MustRegister(m.spawned, m.completed, m.panicked, m.active, m.poolSize)
	return m
}

// ExecutorMetrics is the per-executor view of the Exec bundle.
type ExecutorMetrics struct {
	Spawned   prometheus.Counter
	Completed prometheus.Counter
	Panicked  prometheus.Counter
	Active    prometheus.Gauge
	PoolSize  prometheus.Gauge
}

// ForExecutor curries the vectors with the executor's id.
func (m *Exec) ForExecutor(id string) ExecutorMetrics {
	return ExecutorMetrics{
		Spawned:   m.spawned.WithLabelValues(id),
		Completed: m.completed.WithLabelValues(id),
		Panicked:  m.panicked.WithLabelValues(id),
		Active:    m.active.WithLabelValues(id),
		PoolSize:  m.poolSize.WithLabelValues(id),
	}
}

// ReqRep bundles the metric families tracking request/reply services. The
// process timer is a standalone histogram per service because TimerBuckets
// are configurable per ReqRep id.
type ReqRep struct {
	reg       prometheus.Registerer
	sends     *prometheus.CounterVec
	panics    *prometheus.CounterVec
	instances *prometheus.GaugeVec
}

// NewReqRep registers the ReqRep metric families with reg. A nil reg falls
// back to a private registry.
func NewReqRep(reg prometheus.Registerer) *ReqRep {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &ReqRep{
		reg: reg,
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqflow_reqrep_sends_total",
			Help: "Number of requests sent to the ReqRep service.",
		}, []string{ReqRepIDLabel}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqflow_reqrep_processor_panics_total",
			Help: "Number of requests whose processor invocation panicked.",
		}, []string{ReqRepIDLabel}),
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reqflow_reqrep_service_instances",
			Help: "Number of running broker loops for the ReqRep id.",
		}, []string{ReqRepIDLabel}),
	}
	reg.MustRegister(m.sends, m.panics, m.instances)
	return m
}

// ServiceMetrics is the per-service view of the ReqRep bundle.
type ServiceMetrics struct {
	ProcessTimer prometheus.Histogram
	Sends        prometheus.Counter
	Panics       prometheus.Counter
	Instances    prometheus.Gauge
}

// ForService registers a process-timer histogram for the service using its
// TimerBuckets and curries the shared vectors with the reqrep id. Starting a
// second service with the same id reuses the already registered histogram.
func (m *ReqRep) ForService(id string, buckets TimerBuckets) ServiceMetrics {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "reqflow_reqrep_process_duration_seconds",
		Help:        "Wall time spent processing a single request.",
		Buckets:     buckets.Seconds(),
		ConstLabels: prometheus.Labels{ReqRepIDLabel: id},
	})
	if err := m.reg.Register(histogram); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			histogram = are.ExistingCollector.(prometheus.Histogram)
		} else {
			panic(err)
		}
	}
	return ServiceMetrics{
		ProcessTimer: histogram,
		Sends:        m.sends.WithLabelValues(id),
		Panics:       m.panics.WithLabelValues(id),
		Instances:    m.instances.WithLabelValues(id),
	}
}
