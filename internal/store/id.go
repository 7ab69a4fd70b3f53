package store

import (
	"fmt"
	"sync/atomic"
	"time"
)

// idCounter is shared by every Store in the process so that stores syncing
// through one backend never issue the same id.
var idCounter atomic.Uint64

// idGenerator issues "<unix-millis>-<counter>" ids. The timestamp part never
// goes backwards and the counter makes ids unique even when the clock stalls.
// Callers serialize access to last.
type idGenerator struct {
	now     func() time.Time
	last    int64
	counter *atomic.Uint64
}

func newIDGenerator(now func() time.Time) *idGenerator {
	if now == nil {
		now = time.Now
	}
	return &idGenerator{now: now, counter: &idCounter}
}

func (g *idGenerator) next() string {
	ms := g.now().UnixMilli()
	if ms < g.last {
		ms = g.last
	}
	g.last = ms
	return fmt.Sprintf("%d-%d", ms, g.counter.Add(1))
}
