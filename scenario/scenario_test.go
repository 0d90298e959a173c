package scenario_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/example/meshisim/asm"
	"github.com/example/meshisim/bus"
	"github.com/example/meshisim/cache"
	"github.com/example/meshisim/config"
	"github.com/example/meshisim/core"
	"github.com/example/meshisim/logging"
	"github.com/example/meshisim/memory"
	"github.com/example/meshisim/orchestrator"
	"github.com/example/meshisim/runid"
)

func newRig(numPEs int) (*memory.Memory, *bus.Bus, []*cache.Cache) {
	cfg := config.Default()
	cfg.NumPEs = numPEs
	mem := memory.New(cfg.MemWords, cfg.WordBytes, cfg.Strict)
	b := bus.New(cfg.BusOpsPerCycle, cfg.LineBytes, runid.Sequential().Generate(), logging.Discard())
	caches := make([]*cache.Cache, numPEs)
	snoopable := make([]bus.Snoopable, numPEs)
	for i := 0; i < numPEs; i++ {
		c := cache.New(core.PEID(i), cfg, mem, b, logging.Discard())
		caches[i] = c
		snoopable[i] = c
	}
	b.SetCaches(snoopable)
	return mem, b, caches
}

func bitsToFloat(w core.Word) float64 { return math.Float64frombits(uint64(w)) }
func floatToBits(f float64) core.Word { return core.Word(math.Float64bits(f)) }

var _ = Describe("Scenario A: single PE dot product", func() {
	It("computes partial_sums[0] = 10.0 and reduces to 10.0", func() {
		cfg := config.Default()
		cfg.NumPEs = 1
		sim := orchestrator.New(cfg, logging.Discard(), runid.Sequential().Generate())

		layout := config.NewDotProductLayout(4, 1, 0x0, 0x100, 0x200)
		sim.InitDotProduct(layout, []float64{1, 2, 3, 4}, []float64{1, 1, 1, 1})

		prog, err := asm.Assemble(orchestrator.DotProductProgram)
		Expect(err).NotTo(HaveOccurred())
		sim.Processors()[0].LoadProgram(prog)

		sim.StartThreads()
		defer sim.StopThreads()
		Expect(sim.RunUntilDone()).To(Succeed())

		ps, err := sim.Memory().ReadWord(layout.BasePS)
		Expect(err).NotTo(HaveOccurred())
		Expect(bitsToFloat(ps)).To(BeNumerically("~", 10.0, 1e-9))

		finalProg := orchestrator.FinalReductionProgram(layout.BasePS, cfg.NumPEs)
		sim.Processors()[0].LoadProgram(finalProg)
		ticks := 0
		for !sim.Processors()[0].IsDone() && ticks < 2000 {
			sim.RunCycles(1)
			ticks++
		}
		Expect(bitsToFloat(core.Word(sim.Processors()[0].GetReg(4)))).To(BeNumerically("~", 10.0, 1e-9))
	})
})

var _ = Describe("Scenario B: classic MESI escalation", func() {
	It("walks P0 and P1 through the expected state transitions", func() {
		_, b, caches := newRig(2)
		p0, p1 := caches[0], caches[1]
		const line = core.Addr(0x100)

		hit, _, err := p0.Load(line, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeFalse())
		b.Step()

		hit, _, err = p1.Load(line, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeFalse())
		b.Step()

		hit, err = p0.Store(line, 8, floatToBits(42))
		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeTrue())
		b.Step()

		hit, _, err = p1.Load(line, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeFalse())
		b.Step()

		hit, err = p1.Store(line, 8, floatToBits(7))
		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeTrue())
		b.Step()

		Expect(b.Count(core.BusUpgr)).To(BeNumerically(">=", 1))
		Expect(b.Count(core.BusRd)).To(BeNumerically(">=", 1))
		Expect(b.Flushes()).To(BeNumerically(">=", 1))
		Expect(p0.Metrics().Invalidations + p1.Metrics().Invalidations).To(BeNumerically(">=", 2))
	})
})

var _ = Describe("Scenario C: BusRdX miss with no sharers", func() {
	It("broadcasts BusRdX, leaves P0 in Modified, and writes through", func() {
		mem, b, caches := newRig(2)
		p0 := caches[0]
		const line = core.Addr(0x100)

		hit, err := p0.Store(line, 8, floatToBits(99))
		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeFalse())
		b.Step()

		Expect(b.Count(core.BusRdX)).To(Equal(uint64(1)))
		Expect(b.Flushes()).To(Equal(uint64(0)))

		word, err := mem.ReadWord(line)
		Expect(err).NotTo(HaveOccurred())
		Expect(bitsToFloat(word)).To(Equal(99.0))
	})
})

var _ = Describe("Scenario D: four-PE partitioned dot product", func() {
	It("sums partial sums to 136.0 within 1e-9 of the CPU reference", func() {
		cfg := config.Default()
		cfg.NumPEs = 4
		sim := orchestrator.New(cfg, logging.Discard(), runid.Sequential().Generate())

		layout := config.NewDotProductLayout(16, 4, 0x0, 0x200, 0x400)
		a := make([]float64, 16)
		bvec := make([]float64, 16)
		refDot := 0.0
		for i := 0; i < 16; i++ {
			a[i] = float64(i + 1)
			bvec[i] = 1.0
			refDot += a[i] * bvec[i]
		}
		sim.InitDotProduct(layout, a, bvec)

		prog, err := asm.Assemble(orchestrator.DotProductProgram)
		Expect(err).NotTo(HaveOccurred())
		for _, p := range sim.Processors() {
			p.LoadProgram(prog)
		}

		sim.StartThreads()
		defer sim.StopThreads()
		Expect(sim.RunUntilDone()).To(Succeed())

		sum := 0.0
		for pe := 0; pe < 4; pe++ {
			w, err := sim.Memory().ReadWord(layout.BasePS + core.Addr(pe*8))
			Expect(err).NotTo(HaveOccurred())
			sum += bitsToFloat(w)
		}
		Expect(sum).To(BeNumerically("~", 136.0, 1e-9))
		Expect(sum).To(BeNumerically("~", refDot, 1e-9))
	})
})

var _ = Describe("Scenario E: conflict misses in one set", func() {
	It("evicts way 0 after a third conflicting miss", func() {
		_, b, caches := newRig(1)
		c := caches[0]
		cfg := config.Default()
		lineSpan := core.Addr(cfg.NumSets() * cfg.LineBytes)

		addrs := []core.Addr{0, lineSpan, 2 * lineSpan}
		for _, a := range addrs {
			hit, _, err := c.Load(a, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(hit).To(BeFalse())
			b.Step()
		}
		Expect(c.Metrics().Misses).To(Equal(uint64(3)))

		hit, _, err := c.Load(addrs[0], 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(hit).To(BeFalse(), "way 0's original line should have been evicted")
		b.Step()
	})
})

var _ = Describe("Scenario F: termination drain", func() {
	It("returns after its drain ticks with the bus FIFO empty", func() {
		cfg := config.Default()
		cfg.NumPEs = 1
		sim := orchestrator.New(cfg, logging.Discard(), runid.Sequential().Generate())

		prog, err := asm.Assemble("MOVI REG0, 8\nSTORE REG0, [REG0]\n")
		Expect(err).NotTo(HaveOccurred())
		sim.Processors()[0].LoadProgram(prog)

		sim.StartThreads()
		defer sim.StopThreads()
		Expect(sim.RunUntilDone()).To(Succeed())

		Expect(sim.Bus().Len()).To(Equal(0))
	})
})
