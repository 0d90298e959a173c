package core

import (
	"errors"
	"strconv"
)

// ErrAlignment is returned when a cache access spans a line boundary
// where it must not. Misaligned memory-word accesses are handled by
// memory.Memory's own strict/release split instead of this sentinel.
var ErrAlignment = errors.New("meshisim: misaligned access")

// ErrOutOfRange marks an address past the end of main memory. Per spec this
// is not fatal: memory.Memory does not return it. Out-of-range reads return
// zero and writes are dropped, and both are counted (see
// memory.Memory.OutOfRangeAccesses).
var ErrOutOfRange = errors.New("meshisim: address out of range")

// ProtocolInvariantError indicates a cache observed a coherence state that
// the MESI protocol forbids (e.g. two valid M copies). It is always fatal;
// the propagation policy is to panic rather than limp along with corrupted
// state, since it signals a bug in the state machine itself.
type ProtocolInvariantError struct {
	Detail string
}

func (e *ProtocolInvariantError) Error() string {
	return "meshisim: protocol invariant violated: " + e.Detail
}

// ErrOrchestrationTimeout is returned by RunUntilDone when the safety tick
// cap is exceeded without the program set converging on "done".
var ErrOrchestrationTimeout = errors.New("meshisim: orchestration did not converge before the safety tick cap")

// AssemblyError wraps a parse failure with the source line that caused it.
type AssemblyError struct {
	Line int
	Msg  string
}

func (e *AssemblyError) Error() string {
	if e.Line > 0 {
		return "meshisim: assembly error at line " + strconv.Itoa(e.Line) + ": " + e.Msg
	}
	return "meshisim: assembly error: " + e.Msg
}
