package database

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// IDGenerator hands out row ids in the server's timestamp format: decimal
// unix seconds with a microsecond fraction. Ids never repeat and never go
// backwards within one generator, even when the clock does.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64 // unix micros of the previous id
}

// NewIDGenerator creates a generator reading time from now
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns the next id
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	us := g.now().UnixMicro()
	if us <= g.last {
		us = g.last + 1
	}
	g.last = us

	return FormatTimestamp(us)
}

// FormatTimestamp renders unix microseconds as "seconds.micros"
func FormatTimestamp(us int64) string {
	return fmt.Sprintf("%d.%06d", us/1_000_000, us%1_000_000)
}

// ParseTimestamp parses a create_date value. Empty and zero values report
// false so callers can treat them as "never".
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" || s == "0" {
		return time.Time{}, false
	}

	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false
	}

	return time.UnixMicro(int64(secs * 1e6)), true
}
