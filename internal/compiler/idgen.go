package compiler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator mints the opaque, unique, preferably time-sortable ids the
// compiler needs for process chains and output paths (see spec §6).
type IDGenerator interface {
	NextID() string
}

// TimestampCounter is a deterministic IDGenerator: a monotonic, zero-padded
// counter prefixed with the millisecond timestamp observed at construction.
// This resolves the open question of §6 ("preferably time-sortable") in the
// absence of an original-source implementation to mirror — lexicographic
// ordering of ids then agrees with creation order across one generator.
type TimestampCounter struct {
	prefix  string
	counter atomic.Int64
}

// NewTimestampCounter creates an IDGenerator stamped with the current time.
func NewTimestampCounter(now time.Time) *TimestampCounter {
	return &TimestampCounter{prefix: fmt.Sprintf("%d", now.UnixMilli())}
}

// NextID returns the next id in the sequence, e.g.
// "1732999999999-0000000000000000007".
func (c *TimestampCounter) NextID() string {
	n := c.counter.Add(1)
	return fmt.Sprintf("%s-%019d", c.prefix, n)
}

// UUIDGenerator is the production IDGenerator: a millisecond-timestamp
// prefix (so ids sort lexicographically by creation time, same as
// TimestampCounter) followed by a random UUID to guarantee uniqueness
// across concurrent controller instances, which a single process-local
// counter cannot.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a UUIDGenerator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NextID returns e.g. "1732999999999-3f29e27c-9b1a-4e7b-9f2a-1c9b6e2f9a10".
func (UUIDGenerator) NextID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
}
