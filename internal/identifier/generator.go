// Package identifier allocates ticket numbers, article IDs and session keys.
//
// Ticket numbers combine a millisecond timestamp with a process-wide
// counter and a random suffix, so concurrent calls within one millisecond
// never collide inside a process and collide across processes only with
// negligible probability. Storage still enforces uniqueness; callers treat
// a violation as retryable.
package identifier

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator produces collision-resistant identifiers. Safe for concurrent use.
type Generator interface {
	NewTicketID() string
	NewTicketNumber() string
	NewArticleID() string
	NewSessionID() string
}

// TicketNumberGenerator is the production Generator.
type TicketNumberGenerator struct {
	prefix  string
	counter atomic.Uint64
	now     func() time.Time
}

// NewGenerator builds a generator that prefixes ticket numbers with prefix.
func NewGenerator(prefix string) *TicketNumberGenerator {
	return &TicketNumberGenerator{prefix: prefix, now: time.Now}
}

// NewTicketNumber returns prefix + millis + 4-digit sequence + 4 hex chars,
// e.g. MOCK-17602563330420007a3f9.
func (g *TicketNumberGenerator) NewTicketNumber() string {
	seq := g.counter.Add(1) % 10000
	return fmt.Sprintf("%s%d%04d%s", g.prefix, g.now().UnixMilli(), seq, randomHex(4))
}

// NewTicketID returns a random UUID.
func (g *TicketNumberGenerator) NewTicketID() string {
	return uuid.NewString()
}

// NewArticleID returns a random UUID.
func (g *TicketNumberGenerator) NewArticleID() string {
	return uuid.NewString()
}

// NewSessionID returns a random UUID used as the stored session key.
func (g *TicketNumberGenerator) NewSessionID() string {
	return uuid.NewString()
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
