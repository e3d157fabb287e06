package utils

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator issues ULID-based entity identifiers. ULIDs are sortable by
// creation time, which keeps newest-first listing cheap on the primary key.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *IDGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// NewID generates a bare ULID.
// Example: 01ARZ3NDEKTSV4RRFFQ69G5FAV
func (g *IDGenerator) NewID() string {
	return g.next()
}

// NewPrefixedID generates a prefixed identifier, e.g. TXN-01ARZ3....
func (g *IDGenerator) NewPrefixedID(prefix string) string {
	return strings.ToUpper(prefix) + "-" + g.next()
}

// ValidateULID reports whether s parses as a ULID.
func ValidateULID(s string) bool {
	if len(s) != 26 {
		return false
	}
	_, err := ulid.Parse(s)
	return err == nil
}
