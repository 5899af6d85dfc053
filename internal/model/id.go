package model

import (
	"strconv"
	"sync/atomic"
	"time"
)

// IDPrefix starts every application identifier.
const IDPrefix = "APP-"

// IDGenerator issues APP-<unix-millis> identifiers. Two submissions landing in
// the same millisecond would collide, so the generator bumps the timestamp
// part past the last value it handed out. IDs stay numeric and roughly track
// wall-clock time, and are strictly increasing within one process.
type IDGenerator struct {
	last atomic.Int64
}

// NewIDGenerator returns a ready generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the identifier for a submission received at t.
func (g *IDGenerator) Next(t time.Time) string {
	ms := t.UnixMilli()
	for {
		last := g.last.Load()
		next := ms
		if next <= last {
			next = last + 1
		}
		if g.last.CompareAndSwap(last, next) {
			return IDPrefix + strconv.FormatInt(next, 10)
		}
	}
}
