// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default
// registry.
package transports

import (
	// Import for side-effect registration
	_ "github.com/drblury/reqflow/transport/channel"

	"github.com/drblury/reqflow/transport/nats"
)

func init() {
	nats.Register()
}
