package cache

import "github.com/example/meshisim/core"

// Line is a single cache-line slot: one way of one set.
//
// Under write-through (the only policy this cache implements), Dirty stays
// false in every state the protocol can observe; the field is kept so the
// state machine stays closed over a future write-back extension rather than
// baking "dirty never happens" into the type.
type Line struct {
	Valid bool
	Dirty bool
	State core.MESI
	Tag   uint64
	Bytes []byte
}

func newLine(lineBytes int) Line {
	return Line{Bytes: make([]byte, lineBytes)}
}

// invalidate resets a line to the Invalid state, per the invariant that
// State == I implies Valid == false.
func (l *Line) invalidate() {
	l.Valid = false
	l.Dirty = false
	l.State = core.MESIInvalid
}
