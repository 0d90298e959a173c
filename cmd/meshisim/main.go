// Command meshisim runs the MESI coherence simulator: a demo partitioned
// dot product when no program is given, or an assembled program loaded
// onto every PE. Grounded on akita's cmd/root.go for the cobra shape and
// on original_source's main-loop dispatch (run_cycles vs run_stepping).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/example/meshisim/asm"
	"github.com/example/meshisim/config"
	"github.com/example/meshisim/logging"
	"github.com/example/meshisim/orchestrator"
	"github.com/example/meshisim/report"
	"github.com/example/meshisim/runid"
)

func main() {
	var step bool
	var verbose bool

	root := &cobra.Command{
		Use:   "meshisim [program.asm]",
		Short: "Cycle-driven simulator of a bus-based MESI multiprocessor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if verbose {
				level = logging.LevelDebug
			}
			log := logging.New(level, "[meshisim] ")

			cfg := config.Default()
			sim := orchestrator.New(cfg, log, runid.XID().Generate())
			atexit.Register(func() {
				report.PrintMetrics(os.Stdout, sim)
			})

			layout := config.NewDotProductLayout(16, cfg.NumPEs, 0x0, 0x200, 0x400)

			if len(args) == 1 {
				return runAssembledProgram(sim, args[0], step)
			}
			return runDemo(sim, layout, step)
		},
	}

	root.Flags().BoolVarP(&step, "step", "s", false, "enable interactive stepping instead of a batch run")
	root.Flags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	atexit.Exit(0)
}

func runDemo(sim *orchestrator.Simulator, layout config.DotProductLayout, step bool) error {
	a, b := loadInputOrDefault(layout.N)
	sim.InitDotProduct(layout, a, b)

	prog, err := asm.Assemble(orchestrator.DotProductProgram)
	if err != nil {
		return fmt.Errorf("assembling demo program: %w", err)
	}
	for _, p := range sim.Processors() {
		p.LoadProgram(prog)
	}

	sim.StartThreads()
	defer sim.StopThreads()

	if step {
		runStepping(sim)
	} else {
		if err := sim.RunUntilDone(); err != nil {
			return err
		}
	}

	runFinalReduction(sim, layout)
	report.PrintDotProductReference(os.Stdout, sim, layout)
	return nil
}

func runAssembledProgram(sim *orchestrator.Simulator, path string, step bool) error {
	prog, err := asm.AssembleFile(path)
	if err != nil {
		return fmt.Errorf("assembling %s: %w", path, err)
	}
	for _, p := range sim.Processors() {
		p.LoadProgram(prog)
	}

	sim.StartThreads()
	defer sim.StopThreads()

	if step {
		runStepping(sim)
		return nil
	}
	return sim.RunUntilDone()
}

func runFinalReduction(sim *orchestrator.Simulator, layout config.DotProductLayout) {
	prog := orchestrator.FinalReductionProgram(layout.BasePS, sim.Config().NumPEs)
	sim.Processors()[0].LoadProgram(prog)

	ticks := 0
	for !sim.Processors()[0].IsDone() && ticks < 2000 {
		sim.RunCycles(1)
		ticks++
	}
}

func runStepping(sim *orchestrator.Simulator) {
	fmt.Println("interactive stepping: ENTER=step | c=continue | r=regs | b=bus | q=quit")
	reader := bufio.NewReader(os.Stdin)
	autoRun := false
	step := 0
	for !sim.AllDone() {
		if !autoRun {
			fmt.Printf("[step %d] > ", step)
			line, err := reader.ReadString('\n')
			if err != nil {
				fmt.Println("\nstdin closed, exiting")
				return
			}
			line = strings.TrimSpace(line)
			switch strings.ToLower(line) {
			case "q":
				return
			case "c":
				autoRun = true
			case "r":
				for i := range sim.Processors() {
					report.DumpRegisters(os.Stdout, sim, i)
				}
				continue
			case "b":
				report.PrintMetrics(os.Stdout, sim)
				continue
			}
		}
		fmt.Printf("===== step %d =====\n", step)
		report.StepOne(os.Stdout, sim)
		step++
	}
}

func loadInputOrDefault(n int) ([]float64, []float64) {
	f, err := os.Open("input.txt")
	if err != nil {
		return defaultVectors(n)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := make([]string, 0, 2)
	for scanner.Scan() && len(lines) < 2 {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}
	if len(lines) < 2 {
		return defaultVectors(n)
	}

	a := parseFloats(lines[0])
	b := parseFloats(lines[1])
	if len(a) == 0 || len(b) == 0 {
		return defaultVectors(n)
	}
	return a, b
}

func defaultVectors(n int) ([]float64, []float64) {
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = float64(i + 1)
		b[i] = 1.0
	}
	return a, b
}

func parseFloats(line string) []float64 {
	fields := strings.Fields(line)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
