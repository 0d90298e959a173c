// Package config centralizes the tunables that the original implementation
// kept as package-level constants (cfg::kNumPEs, cfg::kCacheWays, ...). This
// replaces that module-level mutable global state with a record the
// orchestrator owns and passes by reference, per the "module-level mutable
// globals" redesign flag.
package config

import "github.com/example/meshisim/core"

// Config is the full set of parameters a Simulator run needs.
type Config struct {
	NumPEs int

	MemWords  int
	WordBytes int

	CacheWays  int
	CacheLines int
	LineBytes  int

	// BusOpsPerCycle bounds how many requests Bus.Step drains per tick.
	// The reference configuration uses 1 so that a BusUpgr is guaranteed
	// to complete before the next request is dequeued (spec.md section
	// 4.3's ordering guarantee (c)).
	BusOpsPerCycle int

	// SafetyTickCap bounds RunUntilDone; exceeding it is reported via
	// core.ErrOrchestrationTimeout rather than spinning forever.
	SafetyTickCap int

	// DrainTicks is how many extra ticks RunUntilDone runs after every PE
	// reports done, to flush any request enqueued by the final step.
	DrainTicks int

	// Strict selects the development-time alignment policy (panic on a
	// misaligned access) versus the release policy (clamp to a no-op and
	// count it). See spec.md section 7.
	Strict bool
}

// Default returns the reference configuration: 4 PEs, 512-word memory,
// 2-way 16-line 32-byte-line caches, one bus op per cycle.
func Default() Config {
	return Config{
		NumPEs:         4,
		MemWords:       512,
		WordBytes:      8,
		CacheWays:      2,
		CacheLines:     16,
		LineBytes:      32,
		BusOpsPerCycle: 1,
		SafetyTickCap:  100000,
		DrainTicks:     2,
		Strict:         false,
	}
}

// NumSets derives the set count from the cache geometry.
func (c Config) NumSets() int {
	return c.CacheLines / c.CacheWays
}

// DotProductLayout is the canonical memory layout for the partitioned
// dot-product workload (spec.md section 6, "Persisted memory layout").
type DotProductLayout struct {
	N       int
	Seg     int
	BaseA   core.Addr
	BaseB   core.Addr
	BasePS  core.Addr
}

// NewDotProductLayout partitions N elements evenly across numPEs.
func NewDotProductLayout(n, numPEs int, baseA, baseB, basePS core.Addr) DotProductLayout {
	return DotProductLayout{
		N:      n,
		Seg:    n / numPEs,
		BaseA:  baseA,
		BaseB:  baseB,
		BasePS: basePS,
	}
}
