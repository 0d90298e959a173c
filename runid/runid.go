// Package runid generates the correlation id stamped onto every run's
// bus log lines. Grounded on akita's sim.IDGenerator
// (sim/idgenerator.go): a sequential generator for deterministic test
// output and an xid-backed one for uniqueness across concurrent runs.
package runid

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// Generator produces run-correlation ids.
type Generator interface {
	Generate() string
}

// Sequential returns a deterministic, process-local generator, used by
// tests that want reproducible run ids.
func Sequential() Generator { return &sequentialGenerator{} }

// XID returns an xid-backed generator unique across hosts and processes,
// the default for real runs.
func XID() Generator { return xidGenerator{} }

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() string {
	return strconv.FormatUint(atomic.AddUint64(&g.next, 1), 10)
}

type xidGenerator struct{}

func (xidGenerator) Generate() string { return xid.New().String() }
