package transport

// Capabilities describes the features supported by a transport backend. Use
// this to introspect what operations are available at runtime.
type Capabilities struct {
	// Name is the human-readable name of the transport.
	Name string

	// InProcess indicates the transport never leaves the process.
	InProcess bool

	// SupportsTracing indicates the transport propagates tracing headers
	// natively.
	SupportsTracing bool

	// SupportsQueueGroups indicates multiple listeners on one address share
	// the request load instead of each receiving every request.
	SupportsQueueGroups bool

	// MaxMessageSize is the maximum frame size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// Networked returns true if frames cross a process boundary.
func (c Capabilities) Networked() bool {
	return !c.InProcess
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:                "channel",
		InProcess:           true,
		SupportsTracing:     false,
		SupportsQueueGroups: false,
	}

	// NATSCapabilities for the NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:                "nats",
		InProcess:           false,
		SupportsTracing:     true,
		SupportsQueueGroups: true,
		MaxMessageSize:      1048576, // Default 1MB
	}
)

// GetCapabilities returns the capabilities for a transport by name. Uses the
// registry to look up capabilities registered by each transport package.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
