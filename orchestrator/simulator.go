// Package orchestrator implements the tick-barrier coordinator: one
// goroutine per PE, one for the bus, and a single mutex+condition variable
// driving them through an explicit Phase state machine. Grounded on the
// teacher's CycleCoordinator (cycle_coordinator.go) for the Go
// mutex/cond idiom, but the phase machine itself follows
// original_source's Simulator::advance_one_tick_blocking /
// worker_pe / worker_bus exactly (SPEC_FULL.md section 5): every PE step
// must happen-before the single bus step each tick, which the teacher's
// looser per-component "done cycle" scheduler does not guarantee.
package orchestrator

import (
	"math"
	"sync"

	"github.com/example/meshisim/bus"
	"github.com/example/meshisim/cache"
	"github.com/example/meshisim/config"
	"github.com/example/meshisim/core"
	"github.com/example/meshisim/logging"
	"github.com/example/meshisim/memory"
	"github.com/example/meshisim/pe"
)

// Phase is the orchestrator's tick-barrier state.
type Phase int

const (
	Idle Phase = iota
	RunPE
	RunBus
	Halt
)

// Simulator owns every component of one run: memory, caches, bus,
// processors, and the barrier that steps them in lockstep.
type Simulator struct {
	cfg config.Config
	log *logging.Logger
	rid string

	mem    *memory.Memory
	caches []*cache.Cache
	pes    []*pe.Processor
	bus    *bus.Bus

	mu   sync.Mutex
	cond *sync.Cond

	phase Phase
	tick  uint64

	lastTickPE  []uint64
	lastTickBus uint64

	peDoneCount int
	busDone     bool

	started bool
	wg      sync.WaitGroup
}

// New assembles a Simulator from cfg: memory, one cache and one processor
// per PE, and the bus wired to every cache via bus.Snoopable. runID tags
// this run's bus log lines (see SPEC_FULL.md's run-correlation-id note).
func New(cfg config.Config, log *logging.Logger, runID string) *Simulator {
	if log == nil {
		log = logging.Discard()
	}

	mem := memory.New(cfg.MemWords, cfg.WordBytes, cfg.Strict)
	b := bus.New(cfg.BusOpsPerCycle, cfg.LineBytes, runID, log)

	caches := make([]*cache.Cache, cfg.NumPEs)
	pes := make([]*pe.Processor, cfg.NumPEs)
	snoopable := make([]bus.Snoopable, cfg.NumPEs)
	for i := 0; i < cfg.NumPEs; i++ {
		c := cache.New(core.PEID(i), cfg, mem, b, log)
		caches[i] = c
		snoopable[i] = c
		pes[i] = pe.New(core.PEID(i), c)
	}
	b.SetCaches(snoopable)

	s := &Simulator{
		cfg:        cfg,
		log:        log,
		rid:        runID,
		mem:        mem,
		caches:     caches,
		pes:        pes,
		bus:        b,
		lastTickPE: make([]uint64, cfg.NumPEs),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Memory, Caches, Processors, Bus, RunID expose the owned components for
// setup (register/memory initialization) and reporting.
func (s *Simulator) Memory() *memory.Memory      { return s.mem }
func (s *Simulator) Caches() []*cache.Cache       { return s.caches }
func (s *Simulator) Processors() []*pe.Processor  { return s.pes }
func (s *Simulator) Bus() *bus.Bus                { return s.bus }
func (s *Simulator) RunID() string                { return s.rid }
func (s *Simulator) Config() config.Config        { return s.cfg }

// StartThreads launches one goroutine per PE and one for the bus, each
// blocking on the phase/tick condition variable per spec.md section 4.5's
// worker loops. Call once before driving ticks.
func (s *Simulator) StartThreads() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	for p := 0; p < s.cfg.NumPEs; p++ {
		s.wg.Add(1)
		go s.peWorker(core.PEID(p))
	}
	s.wg.Add(1)
	go s.busWorker()
}

// StopThreads sets phase Halt and waits for every worker to exit. No
// worker outlives the orchestrator (spec.md section 5's cancellation
// guarantee).
func (s *Simulator) StopThreads() {
	s.mu.Lock()
	s.phase = Halt
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Simulator) peWorker(p core.PEID) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for !(s.phase == RunPE && s.lastTickPE[p] != s.tick) && s.phase != Halt {
			s.cond.Wait()
		}
		if s.phase == Halt {
			s.mu.Unlock()
			return
		}
		tick := s.tick
		s.mu.Unlock()

		if err := s.pes[p].Step(); err != nil {
			s.log.Errorf("[PE%d] step error at tick %d: %v", p, tick, err)
		}

		s.mu.Lock()
		s.lastTickPE[p] = tick
		s.peDoneCount++
		s.cond.Broadcast()
		for s.tick == tick && s.phase != Halt {
			s.cond.Wait()
		}
		s.mu.Unlock()
	}
}

func (s *Simulator) busWorker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for !(s.phase == RunBus && s.lastTickBus != s.tick) && s.phase != Halt {
			s.cond.Wait()
		}
		if s.phase == Halt {
			s.mu.Unlock()
			return
		}
		tick := s.tick
		s.mu.Unlock()

		s.bus.Step()

		s.mu.Lock()
		s.lastTickBus = tick
		s.busDone = true
		s.cond.Broadcast()
		for s.tick == tick && s.phase != Halt {
			s.cond.Wait()
		}
		s.mu.Unlock()
	}
}

// advanceOneTick implements spec.md section 4.5's advance_one_tick:
// increment tick, run every PE to completion, barrier, run the bus,
// barrier, return to Idle.
func (s *Simulator) advanceOneTick() {
	s.mu.Lock()
	s.tick++
	s.peDoneCount = 0
	s.busDone = false

	s.phase = RunPE
	s.cond.Broadcast()
	for s.peDoneCount != s.cfg.NumPEs {
		s.cond.Wait()
	}

	s.phase = RunBus
	s.cond.Broadcast()
	for !s.busDone {
		s.cond.Wait()
	}

	s.phase = Idle
	s.cond.Broadcast()
	s.mu.Unlock()
}

// RunCycles advances exactly n ticks.
func (s *Simulator) RunCycles(n int) {
	for i := 0; i < n; i++ {
		s.advanceOneTick()
	}
}

// AllDone reports whether every processor has consumed its program/trace.
func (s *Simulator) AllDone() bool {
	for _, p := range s.pes {
		if !p.IsDone() {
			return false
		}
	}
	return true
}

// RunUntilDone ticks until AllDone, then runs cfg.DrainTicks more ticks to
// flush any request the final PE step enqueued (spec.md section 4.5's
// termination rule, Scenario F). Returns core.ErrOrchestrationTimeout if
// the safety cap is exceeded before convergence.
func (s *Simulator) RunUntilDone() error {
	ticks := 0
	for !s.AllDone() {
		if ticks >= s.cfg.SafetyTickCap {
			return core.ErrOrchestrationTimeout
		}
		s.advanceOneTick()
		ticks++
	}
	for i := 0; i < s.cfg.DrainTicks; i++ {
		s.advanceOneTick()
	}
	return nil
}

func float64ToWord(f float64) core.Word {
	return core.Word(math.Float64bits(f))
}
