// Package reqflow is a small concurrency layer for request/reply services.
// It has three building blocks: executors (named, fixed-size worker pools
// tracked in a registry), ReqRep services (a generic Req -> Rep processor
// driven by a broker loop over a bounded channel), and the wire layer, which
// exposes a ReqRep service over a messaging transport without changing the
// caller's programming model.
//
// A ReqRep service is started with a Processor and an Executor; callers
// submit requests with Send or Call and await a one-shot reply. The bounded
// request channel is the backpressure mechanism: when the service falls
// behind, senders block. Processor panics are isolated per request when the
// executor catches panics, so one poisoned request never takes down the
// broker loop.
//
// # Transports
//
// Reqflow supports 2 wire transports out of the box:
//   - channel: In-memory Go channels for testing and single-process setups
//   - nats: NATS Core request/reply with queue groups
//
// Custom transports register themselves with the transport registry; the
// wire layer only sees Dial and Listen. Frames are JSON encoded and carry a
// one-byte kind prefix so health probes and failure replies share the
// connection with regular requests.
//
// # Observability
//
// Executors count spawned, active, completed, and panicked tasks; ReqRep
// services time every processor invocation in a per-service Prometheus
// histogram with configurable buckets. Wire round trips open OpenTelemetry
// spans on both sides. All logging goes through slog.
package reqflow
