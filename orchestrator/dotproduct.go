package orchestrator

import (
	"github.com/example/meshisim/asm"
	"github.com/example/meshisim/config"
	"github.com/example/meshisim/core"
)

// DotProductProgram is the canonical per-PE partial-dot-product loop:
// R0=remaining count, R1=A pointer, R2=B pointer, R3=result slot.
// R4 accumulates the running sum; R5-R7 are scratch.
const DotProductProgram = `
MOVI REG4, 0
loop:
LOAD REG5, [REG1]
LOAD REG6, [REG2]
FMUL REG7, REG5, REG6
FADD REG4, REG4, REG7
INC REG1
INC REG2
DEC REG0
JNZ loop
STORE REG4, [REG3]
`

// InitDotProduct loads A/B into memory (zero-filled past len(a)/len(b)),
// zeroes the partial sums, and partitions registers across PEs per the
// canonical layout (spec.md section 6; grounded on original_source's
// Simulator::init_dot_problem).
func (s *Simulator) InitDotProduct(layout config.DotProductLayout, a, b []float64) {
	for i := 0; i < layout.N; i++ {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		s.mem.WriteWord(layout.BaseA+core.Addr(i*8), float64ToWord(av))
		s.mem.WriteWord(layout.BaseB+core.Addr(i*8), float64ToWord(bv))
	}

	for p := 0; p < s.cfg.NumPEs; p++ {
		s.mem.WriteWord(layout.BasePS+core.Addr(p*8), float64ToWord(0))
	}

	for p := 0; p < s.cfg.NumPEs; p++ {
		s.pes[p].SetReg(0, uint64(layout.Seg))
		s.pes[p].SetReg(1, uint64(layout.BaseA)+uint64(p*layout.Seg*8))
		s.pes[p].SetReg(2, uint64(layout.BaseB)+uint64(p*layout.Seg*8))
		s.pes[p].SetReg(3, uint64(layout.BasePS)+uint64(p*8))
	}
}

// FinalReductionProgram runs on PE0 after every PE is done: it sums the
// partial sums (by then all written through to memory) and stores the
// total back into partial_sums[0]. Mirrors original_source's
// run_until_done/run_cycles final-reduction Instr sequence, including the
// seemingly-redundant warm-up LOAD of partial_sums[1] before the real
// REDUCE pass.
func FinalReductionProgram(basePS core.Addr, numPEs int) asm.Program {
	return asm.Program{
		Code: []asm.Instr{
			{Op: asm.MOVI, Rd: 1, Imm: uint64(basePS) + 8},
			{Op: asm.LOAD, Rd: 7, Ra: 1},
			{Op: asm.MOVI, Rd: 1, Imm: uint64(basePS)},
			{Op: asm.MOVI, Rd: 2, Imm: uint64(numPEs)},
			{Op: asm.REDUCE, Rd: 4, Ra: 1, Rb: 2},
			{Op: asm.STORE, Ra: 4, Rd: 3},
		},
		Labels: map[string]int{},
	}
}
