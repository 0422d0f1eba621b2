package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a time-sortable 128-bit ULID. IDs minted within the same
// millisecond are monotonically increasing.
func NewULID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// CreateULID returns a ULID encoded as a 26-character string.
func CreateULID() string {
	return NewULID().String()
}
