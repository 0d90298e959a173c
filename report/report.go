// Package report prints run output: per-PE and bus metrics, the
// CPU-reference dot product, and per-PE register/segment dumps. Grounded
// on the teacher's PrintStats (stats.go) for the plain fmt.Printf section
// style, and on original_source's run_cycles/run_until_done dumps for
// what gets printed.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/example/meshisim/config"
	"github.com/example/meshisim/core"
	"github.com/example/meshisim/orchestrator"
)

// PrintMetrics prints per-PE cache counters and bus-wide totals.
func PrintMetrics(w io.Writer, sim *orchestrator.Simulator) {
	fmt.Fprintf(w, "----- cache metrics (run=%s) -----\n", sim.RunID())
	for i, c := range sim.Caches() {
		m := c.Metrics()
		fmt.Fprintf(w, "PE%d | loads=%d stores=%d hits=%d misses=%d invalidations=%d flushes=%d bus_bytes=%d\n",
			i, m.Loads, m.Stores, m.Hits, m.Misses, m.Invalidations, m.Flushes, m.BusBytes)
	}
	fmt.Fprintln(w, "-------------------------")
	b := sim.Bus()
	fmt.Fprintf(w, "bus bytes=%d BusRd=%d BusRdX=%d BusUpgr=%d flushes=%d\n",
		b.Bytes(), b.Count(core.BusRd), b.Count(core.BusRdX), b.Count(core.BusUpgr), b.Flushes())
}

// PrintDotProductReference prints the CPU-computed reference dot product
// and, for each PE, its expected partial sum alongside the value the
// simulator actually produced.
func PrintDotProductReference(w io.Writer, sim *orchestrator.Simulator, layout config.DotProductLayout) {
	refDot := 0.0
	a := make([]float64, layout.N)
	b := make([]float64, layout.N)
	for i := 0; i < layout.N; i++ {
		av, _ := sim.Memory().ReadWord(layout.BaseA + core.Addr(i*8))
		bv, _ := sim.Memory().ReadWord(layout.BaseB + core.Addr(i*8))
		a[i] = wordToFloat64(av)
		b[i] = wordToFloat64(bv)
		refDot += a[i] * b[i]
	}
	fmt.Fprintf(w, "[cpu reference] dot(A,B) with N=%d -> %.6f\n\n", layout.N, refDot)

	for p := 0; p < sim.Config().NumPEs; p++ {
		base := p * layout.Seg
		refPartial := 0.0
		for k := 0; k < layout.Seg; k++ {
			refPartial += a[base+k] * b[base+k]
		}
		ps, _ := sim.Memory().ReadWord(layout.BasePS + core.Addr(p*8))
		fmt.Fprintf(w, "partial_sums[%d] = %.6f | expected = %.6f\n", p, wordToFloat64(ps), refPartial)
	}
}

// DumpRegisters prints all 8 registers of PE p, decoding R4-R7 as both
// raw hex and float64.
func DumpRegisters(w io.Writer, sim *orchestrator.Simulator, p int) {
	proc := sim.Processors()[p]
	fmt.Fprintf(w, "---- PE%d registers ----\n", p)
	for r := 0; r < 8; r++ {
		v := proc.GetReg(r)
		fmt.Fprintf(w, "  R%d = 0x%x", r, v)
		if r >= 4 {
			fmt.Fprintf(w, "  (f64=%.6f)", wordToFloat64(core.Word(v)))
		}
		fmt.Fprintln(w)
	}
}

// DumpSegment prints PE p's A/B input segment as loaded into memory.
func DumpSegment(w io.Writer, sim *orchestrator.Simulator, p int, layout config.DotProductLayout) {
	base := p * layout.Seg
	fmt.Fprintf(w, "segment A[%d..%d]\n", base, base+layout.Seg-1)
	for k := 0; k < layout.Seg; k++ {
		addr := layout.BaseA + core.Addr((base+k)*8)
		v, _ := sim.Memory().ReadWord(addr)
		fmt.Fprintf(w, "  A[%d] @0x%x = %.6f\n", base+k, addr, wordToFloat64(v))
	}
	fmt.Fprintf(w, "segment B[%d..%d]\n", base, base+layout.Seg-1)
	for k := 0; k < layout.Seg; k++ {
		addr := layout.BaseB + core.Addr((base+k)*8)
		v, _ := sim.Memory().ReadWord(addr)
		fmt.Fprintf(w, "  B[%d] @0x%x = %.6f\n", base+k, addr, wordToFloat64(v))
	}
}

func wordToFloat64(w core.Word) float64 {
	return math.Float64frombits(uint64(w))
}
