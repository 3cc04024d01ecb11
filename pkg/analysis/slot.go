package analysis

import (
	"bytes"
	"sync/atomic"
	"time"
)

// Frame is one completed analysis output. Frames stored in a Slot are never
// modified; readers receive copies.
type Frame struct {
	Key           string
	Seq           uint64
	Width         int
	Height        int
	ColorOrder    ColorOrder
	Normalization Normalization
	ByteOrder     ByteOrder
	CapturedAt    time.Time
	ProcessedAt   time.Time
	Data          []byte
}

// Clone returns a deep copy of f
func (f *Frame) Clone() *Frame {
	c := *f
	c.Data = bytes.Clone(f.Data)
	return &c
}

// Slot holds the last completed frame of one consumer. One goroutine
// replaces, any goroutine reads. After Close the slot stays empty.
type Slot struct {
	frame  atomic.Pointer[Frame]
	closed atomic.Bool
}

// Replace swaps in f and reports whether it was kept. A closed slot discards f.
func (s *Slot) Replace(f *Frame) bool {
	if s.closed.Load() {
		return false
	}
	s.frame.Store(f)
	// Close may have run between the check and the store
	if s.closed.Load() {
		s.frame.CompareAndSwap(f, nil)
		return false
	}
	return true
}

// Snapshot returns a copy of the current frame
func (s *Slot) Snapshot() (*Frame, bool) {
	f := s.frame.Load()
	if f == nil {
		return nil, false
	}
	return f.Clone(), true
}

// Close empties the slot for good
func (s *Slot) Close() {
	s.closed.Store(true)
	s.frame.Store(nil)
}

// Closed reports whether Close was called
func (s *Slot) Closed() bool {
	return s.closed.Load()
}
