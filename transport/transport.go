// Package transport defines the core interfaces and types for reqflow
// transports. A transport carries opaque request frames from a client
// connection to a listening server and a reply frame back. Each transport
// implementation (channel, nats, ...) lives in its own sub-package and
// registers itself with the transport registry.
package transport

import (
	"context"
	"log/slog"
)

// Handler processes one request frame and returns the reply frame. It is
// invoked by a Listener for every frame received on its address.
type Handler func(ctx context.Context, req []byte) []byte

// Conn is a client connection to a listening server address. Implementations
// must be safe for concurrent Send calls.
type Conn interface {
	// Send performs one request/reply round trip.
	Send(ctx context.Context, req []byte) ([]byte, error)

	Close() error
}

// Listener serves a Handler on an address until closed.
type Listener interface {
	// Addr returns the address the listener is bound to.
	Addr() string

	Close() error
}

// Transport produces connections and listeners for one messaging backend.
type Transport interface {
	// Dial opens a client connection to the given address.
	Dial(ctx context.Context, addr string) (Conn, error)

	// Listen binds h to the given address.
	Listen(ctx context.Context, addr string, h Handler) (Listener, error)

	// Close releases backend resources. Connections and listeners produced
	// by the transport are invalid afterwards.
	Close() error
}

// Builder is the function signature for creating a transport from config.
// Each transport package should provide a Builder function that can be
// registered.
type Builder func(ctx context.Context, cfg Config, logger *slog.Logger) (Transport, error)

// Config provides the configuration values needed by transports. This
// interface allows transports to access only the config they need without
// depending on the full config package.
type Config interface {
	// GetTransport returns the transport type name.
	GetTransport() string

	// NATS
	GetNATSURL() string

	// GetSubjectPrefix returns the namespace prepended to every address.
	GetSubjectPrefix() string
}

// CapabilitiesProvider is implemented by transports that can report their
// capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
