package rag

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// newID generates a lexicographically sortable document/chunk identifier.
// Grounded on the store-package ID pattern used elsewhere in the pack for
// append-heavy tables.
func newID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
