package cache

import (
	"testing"

	"github.com/example/meshisim/bus"
	"github.com/example/meshisim/config"
	"github.com/example/meshisim/core"
	"github.com/example/meshisim/logging"
	"github.com/example/meshisim/memory"
)

func newTestRig(t *testing.T, numPEs int) (*memory.Memory, *bus.Bus, []*Cache) {
	t.Helper()
	cfg := config.Default()
	cfg.NumPEs = numPEs

	mem := memory.New(cfg.MemWords, cfg.WordBytes, cfg.Strict)
	b := bus.New(cfg.BusOpsPerCycle, cfg.LineBytes, "test", logging.Discard())

	caches := make([]*Cache, numPEs)
	snoopable := make([]bus.Snoopable, numPEs)
	for i := 0; i < numPEs; i++ {
		c := New(core.PEID(i), cfg, mem, b, logging.Discard())
		caches[i] = c
		snoopable[i] = c
	}
	b.SetCaches(snoopable)
	return mem, b, caches
}

func TestLoadMissThenHit(t *testing.T) {
	_, b, caches := newTestRig(t, 1)
	c := caches[0]

	hit, _, err := c.Load(0x100, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatalf("expected cold miss, got hit")
	}
	b.Step()

	if c.Metrics().Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", c.Metrics().Misses)
	}

	hit, word, err := c.Load(0x100, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit after fill")
	}
	if word != 0 {
		t.Fatalf("expected zeroed memory, got %d", word)
	}
	if c.Metrics().Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", c.Metrics().Hits)
	}
}

func TestStoreMissWritesThroughAndSetsModified(t *testing.T) {
	mem, b, caches := newTestRig(t, 2)
	c0 := caches[0]

	hit, err := c0.Store(0x100, 8, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatalf("expected store miss on cold line")
	}
	b.Step()

	word, err := mem.ReadWord(0x100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if word != 42 {
		t.Fatalf("expected write-through value 42, got %d", word)
	}

	setIndex, tag, _ := c0.decompose(0x100)
	way := c0.findWay(setIndex, tag)
	if way < 0 {
		t.Fatalf("expected line resident after store miss")
	}
	if c0.storage[setIndex][way].State != core.MESIModified {
		t.Fatalf("expected state M after store miss, got %s", c0.storage[setIndex][way].State)
	}

	if b.Flushes() != 0 {
		t.Fatalf("expected no flush on cold BusRdX, got %d", b.Flushes())
	}
}

func TestSharedUpgradeInvalidatesPeer(t *testing.T) {
	_, b, caches := newTestRig(t, 2)
	c0, c1 := caches[0], caches[1]

	c0.Load(0x100, 8)
	b.Step()
	c1.Load(0x100, 8)
	b.Step()

	setIndex, tag, _ := c1.decompose(0x100)
	way := c1.findWay(setIndex, tag)
	if way < 0 || c1.storage[setIndex][way].State != core.MESIShared {
		t.Fatalf("expected PE1 to hold S after shared load")
	}

	c0.Store(0x100, 8, 7)
	b.Step()

	if way := c1.findWay(setIndex, tag); way >= 0 {
		t.Fatalf("expected PE1's line invalidated by BusUpgr, still valid in way %d", way)
	}
	if c1.Metrics().Invalidations == 0 {
		t.Fatalf("expected PE1 invalidation counter to have incremented")
	}
	if b.Count(core.BusUpgr) != 1 {
		t.Fatalf("expected exactly one BusUpgr, got %d", b.Count(core.BusUpgr))
	}
}

func TestModifiedSnoopOnBusRdFlushesAndDowngrades(t *testing.T) {
	_, b, caches := newTestRig(t, 2)
	c0, c1 := caches[0], caches[1]

	c0.Store(0x100, 8, 99)
	b.Step()

	c1.Load(0x100, 8)
	b.Step()

	setIndex, tag, _ := c0.decompose(0x100)
	way := c0.findWay(setIndex, tag)
	if way < 0 || c0.storage[setIndex][way].State != core.MESIShared {
		t.Fatalf("expected PE0 downgraded to S after servicing a BusRd, got way=%d", way)
	}
	if b.Flushes() != 1 {
		t.Fatalf("expected exactly one flush, got %d", b.Flushes())
	}

	way1 := c1.findWay(setIndex, tag)
	if way1 < 0 || c1.storage[setIndex][way1].State != core.MESIShared {
		t.Fatalf("expected PE1 to hold S after BusRd fill")
	}
}

func TestConflictMissesEvictWayZero(t *testing.T) {
	_, b, caches := newTestRig(t, 1)
	c := caches[0]

	cfg := config.Default()
	lineAddrs := []core.Addr{
		0,
		core.Addr(cfg.NumSets() * cfg.LineBytes),
		core.Addr(2 * cfg.NumSets() * cfg.LineBytes),
	}

	for _, a := range lineAddrs {
		if hit, _, _ := c.Load(a, 8); hit {
			t.Fatalf("expected miss at addr 0x%x", a)
		}
		b.Step()
	}

	if c.Metrics().Misses != 3 {
		t.Fatalf("expected 3 misses, got %d", c.Metrics().Misses)
	}

	validCount := 0
	for _, l := range c.storage[0] {
		if l.Valid {
			validCount++
		}
	}
	if validCount != cfg.CacheWays {
		t.Fatalf("expected set 0 full with %d valid lines, got %d", cfg.CacheWays, validCount)
	}

	// The first address's line should have been evicted by the third
	// conflicting miss (victim = way 0 under the simple policy).
	if hit, _, _ := c.Load(lineAddrs[0], 8); hit {
		t.Fatalf("expected the original line to have been evicted")
	}
}
