// Package bus implements the snooping broadcast bus: a FIFO of pending
// coherence transactions that, per tick, drains up to K of them and
// broadcasts each one to every cache but its source (spec.md section 4.3).
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/example/meshisim/core"
	"github.com/example/meshisim/logging"
	"github.com/example/meshisim/queue"
)

// SnoopResult is the three-variant outcome of a snoop, replacing the
// mutable "data out" sentinel the original implementation passed by
// pointer (spec.md section 9's "broadcast using a mutable data-out
// sentinel" redesign flag).
type SnoopResult int

const (
	// NotPresent: the snooped cache holds no copy of the line.
	NotPresent SnoopResult = iota
	// Acted: the snooped cache changed state (shared, invalidated) but
	// did not need to supply data.
	Acted
	// ActedWithData: the snooped cache intervened, writing the line back
	// to memory (a "Flush") so the requester's subsequent read is
	// coherent.
	ActedWithData
)

// Snoopable is the interface a private cache exposes to the bus. The bus
// never holds a concrete *cache.Cache — only this interface — so Bus and
// Cache have no cyclic back-pointers (spec.md section 9's redesign flag);
// the orchestrator is what wires concrete caches into a Bus via SetCaches.
type Snoopable interface {
	Owner() core.PEID
	Snoop(req core.BusRequest) SnoopResult
	AccountBusBytes(n uint64)
}

// metrics are the bus-wide counters spec.md section 3 requires.
type metrics struct {
	mu        sync.Mutex
	bytes     uint64
	flushes   uint64
	cmdCounts map[core.BusCmd]uint64
}

func newMetrics() *metrics {
	return &metrics{cmdCounts: make(map[core.BusCmd]uint64)}
}

func (m *metrics) record(cmd core.BusCmd, addedBytes uint64, flushed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmdCounts[cmd]++
	m.bytes += addedBytes
	if flushed {
		m.flushes++
	}
}

func (m *metrics) snapshot() (bytes, flushes uint64, cmdCounts map[core.BusCmd]uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[core.BusCmd]uint64, len(m.cmdCounts))
	for k, v := range m.cmdCounts {
		out[k] = v
	}
	return m.bytes, m.flushes, out
}

// Bus is the shared, FIFO-ordered coherence transaction bus.
type Bus struct {
	caches []Snoopable

	q       *queue.FIFO[core.BusRequest]
	nextTID atomic.Uint64

	opsPerCycle int
	lineBytes   int
	runID       string

	log *logging.Logger

	metrics *metrics
}

// New creates a Bus that drains at most opsPerCycle requests per Step call
// and attributes flush traffic at lineBytes granularity. runID is stamped
// onto every bus log line so concurrent runs can be told apart.
func New(opsPerCycle, lineBytes int, runID string, log *logging.Logger) *Bus {
	if log == nil {
		log = logging.Discard()
	}
	b := &Bus{
		opsPerCycle: opsPerCycle,
		lineBytes:   lineBytes,
		runID:       runID,
		log:         log,
		metrics:     newMetrics(),
	}
	b.q = queue.NewFIFO(queue.Hooks[core.BusRequest]{
		OnEnqueue: func(req core.BusRequest) {
			log.Debugf("[BUS run=%s] enqueue %s", runID, req)
		},
	})
	return b
}

// SetCaches registers the caches the bus broadcasts to. It is called once
// by the orchestrator during setup; the bus never owns a cache.
func (b *Bus) SetCaches(caches []Snoopable) {
	b.caches = caches
}

// Push assigns a fresh, monotonic transaction id to req and appends it to
// the FIFO. Safe to call concurrently with Step, though in the reference
// orchestration all Push calls for a tick happen during the PE phase and
// Step runs afterward, so there is no real contention.
func (b *Bus) Push(req core.BusRequest) {
	req.TID = b.nextTID.Add(1)
	b.q.Push(req)
}

// Step drains up to opsPerCycle requests from the FIFO, fully broadcasting
// each one (every snoop completes and accounting settles) before the next
// is dequeued — spec.md section 4.3's ordering guarantees (a) and (b).
func (b *Bus) Step() {
	for i := 0; i < b.opsPerCycle; i++ {
		req, ok := b.q.Pop()
		if !ok {
			return
		}
		b.broadcast(req)
	}
}

// broadcast snoops every cache but the source, in owner order, then
// accounts for the transaction's bus traffic.
func (b *Bus) broadcast(req core.BusRequest) {
	var provider Snoopable
	var acted []core.PEID

	for _, c := range b.caches {
		if c == nil || c.Owner() == req.Source {
			continue
		}
		switch c.Snoop(req) {
		case ActedWithData:
			acted = append(acted, c.Owner())
			if provider == nil {
				provider = c
			}
		case Acted:
			acted = append(acted, c.Owner())
		case NotPresent:
		}
	}

	var added uint64
	flushed := provider != nil
	if flushed {
		added = uint64(b.lineBytes)
		b.requester(req.Source).AccountBusBytes(added)
		provider.AccountBusBytes(added)
	} else {
		added = uint64(req.Size)
		b.requester(req.Source).AccountBusBytes(added)
	}

	b.metrics.record(req.Cmd, added, flushed)

	totalBytes, totalFlushes, _ := b.metrics.snapshot()
	b.log.Infof("[BUS run=%s] tid=%d src=PE%d cmd=%s addr=0x%x acted=%v bytes+=%d total_bytes=%d total_flushes=%d",
		b.runID, req.TID, req.Source, req.Cmd, req.Addr, acted, added, totalBytes, totalFlushes)
}

func (b *Bus) requester(id core.PEID) Snoopable {
	for _, c := range b.caches {
		if c != nil && c.Owner() == id {
			return c
		}
	}
	return noopSnoopable{}
}

type noopSnoopable struct{}

func (noopSnoopable) Owner() core.PEID                { return -1 }
func (noopSnoopable) Snoop(core.BusRequest) SnoopResult { return NotPresent }
func (noopSnoopable) AccountBusBytes(uint64)          {}

// RunID returns the correlation id stamped onto this bus's log lines.
func (b *Bus) RunID() string { return b.runID }

// Bytes returns total bus traffic accounted so far.
func (b *Bus) Bytes() uint64 {
	bytes, _, _ := b.metrics.snapshot()
	return bytes
}

// Flushes returns the number of transactions that required an intervention.
func (b *Bus) Flushes() uint64 {
	_, flushes, _ := b.metrics.snapshot()
	return flushes
}

// Count returns how many times cmd has been broadcast.
func (b *Bus) Count(cmd core.BusCmd) uint64 {
	_, _, counts := b.metrics.snapshot()
	return counts[cmd]
}

// Len returns the number of requests still queued (the Scenario F test
// checks it is zero after RunUntilDone's drain ticks).
func (b *Bus) Len() int {
	return b.q.Len()
}
