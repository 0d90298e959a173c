// Package memory implements the shared main-memory array: a flat sequence
// of 64-bit words behind a single mutex. It models no latency; the bus is
// what serializes contention in practice, so a single lock here is enough
// to make the backing store itself safe to share (spec.md section 4.1).
package memory

import (
	"fmt"
	"sync"

	"github.com/example/meshisim/core"
)

// Memory is the flat, word-addressed backing store every cache fills from
// and writes through to.
type Memory struct {
	mu        sync.Mutex
	words     []core.Word
	wordBytes int
	strict    bool

	outOfRangeReads     uint64
	outOfRangeWrites    uint64
	alignmentViolations uint64
}

// New creates a zeroed memory of the given word count. wordBytes is the
// alignment unit (8, per spec.md) used to map a byte address to a word
// index. strict selects the dev-vs-release alignment policy of spec.md
// section 7: strict raises an assertion on a misaligned access, non-strict
// clamps to a safe no-op and records it instead.
func New(numWords, wordBytes int, strict bool) *Memory {
	return &Memory{
		words:     make([]core.Word, numWords),
		wordBytes: wordBytes,
		strict:    strict,
	}
}

// ReadWord returns the word at addr. Out-of-range reads return zero, not an
// error, matching spec.md's boundary behavior. A misaligned address panics
// in strict mode; in release mode it clamps to zero and is counted.
func (m *Memory) ReadWord(addr core.Addr) (core.Word, error) {
	if int(addr)%m.wordBytes != 0 {
		if m.strict {
			panic(fmt.Sprintf("meshisim: misaligned read at addr 0x%x", addr))
		}
		m.mu.Lock()
		m.alignmentViolations++
		m.mu.Unlock()
		return 0, nil
	}

	idx := int(addr) / m.wordBytes

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx < 0 || idx >= len(m.words) {
		m.outOfRangeReads++
		return 0, nil
	}
	return m.words[idx], nil
}

// WriteWord stores value at addr. Out-of-range writes are silently dropped
// (counted). A misaligned address panics in strict mode; in release mode it
// clamps to a no-op and is counted.
func (m *Memory) WriteWord(addr core.Addr, value core.Word) error {
	if int(addr)%m.wordBytes != 0 {
		if m.strict {
			panic(fmt.Sprintf("meshisim: misaligned write at addr 0x%x", addr))
		}
		m.mu.Lock()
		m.alignmentViolations++
		m.mu.Unlock()
		return nil
	}

	idx := int(addr) / m.wordBytes

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx < 0 || idx >= len(m.words) {
		m.outOfRangeWrites++
		return nil
	}
	m.words[idx] = value
	return nil
}

// OutOfRangeAccesses reports how many reads and writes fell outside the
// memory array, for the OutOfRange error-kind's counter (spec.md section 7).
func (m *Memory) OutOfRangeAccesses() (reads, writes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outOfRangeReads, m.outOfRangeWrites
}

// AlignmentViolations reports how many misaligned accesses were clamped to
// a no-op in release (non-strict) mode.
func (m *Memory) AlignmentViolations() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alignmentViolations
}

// Len returns the number of words in the array.
func (m *Memory) Len() int {
	return len(m.words)
}
