package report

import (
	"fmt"
	"io"

	"github.com/example/meshisim/core"
	"github.com/example/meshisim/orchestrator"
)

// StepOne runs exactly one tick and prints a before/after register diff
// per PE plus the running bus totals, grounded on original_source's
// Simulator::step_one.
func StepOne(w io.Writer, sim *orchestrator.Simulator) {
	procs := sim.Processors()
	before := make([][8]uint64, len(procs))
	wasDone := make([]bool, len(procs))
	for i, p := range procs {
		wasDone[i] = p.IsDone()
		for r := 0; r < 8; r++ {
			before[i][r] = p.GetReg(r)
		}
	}

	sim.RunCycles(1)

	fmt.Fprintln(w, "--- register diffs (after) ---")
	for i, p := range procs {
		if wasDone[i] {
			fmt.Fprintf(w, "[PE%d] done, no step taken\n", i)
			continue
		}
		any := false
		for r := 0; r < 8; r++ {
			after := p.GetReg(r)
			if after != before[i][r] {
				fmt.Fprintf(w, "[PE%d] R%d: 0x%x -> 0x%x\n", i, r, before[i][r], after)
				any = true
			}
		}
		if !any {
			fmt.Fprintf(w, "[PE%d] (no register changes)\n", i)
		}
	}

	b := sim.Bus()
	fmt.Fprintf(w, "[bus] bytes=%d BusRd=%d BusRdX=%d BusUpgr=%d flushes=%d\n",
		b.Bytes(), b.Count(core.BusRd), b.Count(core.BusRdX), b.Count(core.BusUpgr), b.Flushes())
}
