// Package pe implements the processing element: a register file plus a
// one-instruction-per-Step executor that drives load/store traffic into
// its private cache. Grounded on original_source's processor.cpp, with
// JNZ resolved through the loaded Program's own label map instead of a
// package-level singleton (SPEC_FULL.md section 9).
package pe

import (
	"math"

	"github.com/example/meshisim/asm"
	"github.com/example/meshisim/cache"
	"github.com/example/meshisim/core"
)

const numRegs = 8

// ExecMode selects whether Step executes an assembled Program or replays a
// raw memory-access trace (the latter bypasses the ISA entirely — useful
// for synthetic coherence scenarios that don't need real compute).
type ExecMode int

const (
	ModeIdle ExecMode = iota
	ModeProgram
	ModeTrace
)

// Processor is one PE's instruction-level state: registers, program
// counter, and a handle to its private cache.
type Processor struct {
	id    core.PEID
	cache *cache.Cache

	regs [numRegs]uint64

	mode ExecMode

	prog Program
	pc   int

	trace    []core.Access
	tracePos int
}

// Program pairs an assembled program with the label table it carries, so
// JNZ never reaches for anything outside the Processor's own state.
type Program = asm.Program

// New creates a processor for the given PE, idle until a program or trace
// is loaded.
func New(id core.PEID, c *cache.Cache) *Processor {
	return &Processor{id: id, cache: c}
}

// LoadProgram installs p and resets the program counter to 0.
func (p *Processor) LoadProgram(prog Program) {
	p.prog = prog
	p.pc = 0
	p.mode = ModeProgram
}

// LoadTrace installs a raw access trace, an alternative to executing real
// instructions.
func (p *Processor) LoadTrace(trace []core.Access) {
	p.trace = trace
	p.tracePos = 0
	p.mode = ModeTrace
}

// SetReg writes register idx. idx must be in [0, 8).
func (p *Processor) SetReg(idx int, v uint64) { p.regs[idx] = v }

// GetReg reads register idx.
func (p *Processor) GetReg(idx int) uint64 { return p.regs[idx] }

// IsDone reports whether the loaded program/trace has been fully consumed.
func (p *Processor) IsDone() bool {
	switch p.mode {
	case ModeProgram:
		return p.pc >= len(p.prog.Code)
	case ModeTrace:
		return p.tracePos >= len(p.trace)
	default:
		return true
	}
}

// Step executes at most one instruction or trace entry. A no-op once
// IsDone is true (spec.md section 4.4).
func (p *Processor) Step() error {
	if p.IsDone() {
		return nil
	}
	if p.mode == ModeTrace {
		return p.stepTrace()
	}
	return p.stepProgram()
}

func (p *Processor) stepTrace() error {
	acc := p.trace[p.tracePos]
	p.tracePos++
	switch acc.Type {
	case core.AccessLoad:
		_, _, err := p.cache.Load(acc.Addr, acc.Size)
		return err
	case core.AccessStore:
		_, err := p.cache.Store(acc.Addr, acc.Size, 0)
		return err
	}
	return nil
}

func (p *Processor) stepProgram() error {
	ins := p.prog.Code[p.pc]
	advance := true

	switch ins.Op {
	case asm.LOAD:
		addr := core.Addr(p.regs[ins.Ra])
		_, word, err := p.cache.Load(addr, 8)
		if err != nil {
			return err
		}
		p.regs[ins.Rd] = uint64(word)

	case asm.STORE:
		addr := core.Addr(p.regs[ins.Rd])
		_, err := p.cache.Store(addr, 8, core.Word(p.regs[ins.Ra]))
		if err != nil {
			return err
		}

	case asm.FMUL:
		a := asDouble(p.regs[ins.Ra])
		b := asDouble(p.regs[ins.Rb])
		p.regs[ins.Rd] = fromDouble(a * b)

	case asm.FADD:
		a := asDouble(p.regs[ins.Ra])
		b := asDouble(p.regs[ins.Rb])
		p.regs[ins.Rd] = fromDouble(a + b)

	case asm.REDUCE:
		base := core.Addr(p.regs[ins.Ra])
		count := p.regs[ins.Rb]
		var sum float64
		for i := uint64(0); i < count; i++ {
			_, word, err := p.cache.Load(base+core.Addr(i*8), 8)
			if err != nil {
				return err
			}
			sum += asDouble(uint64(word))
		}
		p.regs[ins.Rd] = fromDouble(sum)

	case asm.INC:
		// Pointer arithmetic over 8-byte words, not a plain increment.
		p.regs[ins.Rd] += 8

	case asm.DEC:
		p.regs[ins.Rd] -= 1

	case asm.MOVI:
		p.regs[ins.Rd] = ins.Imm

	case asm.JNZ:
		target, ok := p.prog.Labels[ins.Label]
		if !ok {
			return &core.AssemblyError{Msg: "label not found: " + ins.Label}
		}
		if p.regs[0] != 0 {
			p.pc = target
			advance = false
		}
	}

	if advance {
		p.pc++
	}
	return nil
}

func asDouble(bits uint64) float64 { return math.Float64frombits(bits) }
func fromDouble(d float64) uint64  { return math.Float64bits(d) }
