// Package cache implements the private, set-associative, write-through,
// write-allocate cache that sits between one processing element and the
// shared bus. Grounded on original_source's cache.cpp for the exact
// handler tables and on the teacher's core/cache.go for the Go shape: a
// struct of sets-of-lines with plain methods, no embedded interfaces.
package cache

import (
	"fmt"

	"github.com/example/meshisim/bus"
	"github.com/example/meshisim/config"
	"github.com/example/meshisim/core"
	"github.com/example/meshisim/logging"
	"github.com/example/meshisim/memory"
)

// Cache is one PE's private cache. It has no internal mutex: the
// tick-barrier orchestrator guarantees a cache's owning PE and the bus's
// snoop dispatch never run concurrently (spec.md section 5), so the
// struct is safe to mutate directly from either call path.
type Cache struct {
	owner core.PEID

	ways      int
	sets      int
	lineBytes int

	storage [][]Line // storage[set][way]

	mem *memory.Memory
	bus *bus.Bus
	log *logging.Logger

	metrics Metrics
}

// New creates a cache for the given PE, wired to the shared memory and bus.
func New(owner core.PEID, cfg config.Config, mem *memory.Memory, b *bus.Bus, log *logging.Logger) *Cache {
	if log == nil {
		log = logging.Discard()
	}
	numSets := cfg.NumSets()
	storage := make([][]Line, numSets)
	for s := range storage {
		storage[s] = make([]Line, cfg.CacheWays)
		for w := range storage[s] {
			storage[s][w] = newLine(cfg.LineBytes)
		}
	}
	return &Cache{
		owner:     owner,
		ways:      cfg.CacheWays,
		sets:      numSets,
		lineBytes: cfg.LineBytes,
		storage:   storage,
		mem:       mem,
		bus:       b,
		log:       log,
	}
}

// Owner identifies which PE this cache belongs to. Satisfies bus.Snoopable.
func (c *Cache) Owner() core.PEID { return c.owner }

// Metrics returns a copy of the current counters.
func (c *Cache) Metrics() Metrics { return c.metrics }

// ResetMetrics zeroes every counter (spec.md section 3: "reset only on
// explicit request").
func (c *Cache) ResetMetrics() { c.metrics.Reset() }

// AccountBusBytes attributes n bytes of bus traffic to this PE. Satisfies
// bus.Snoopable; called by the bus during broadcast accounting.
func (c *Cache) AccountBusBytes(n uint64) { c.metrics.BusBytes += n }

// decompose splits a byte address into (set index, tag, offset within line).
func (c *Cache) decompose(addr core.Addr) (setIndex int, tag uint64, offset int) {
	lineNum := uint64(addr) / uint64(c.lineBytes)
	setIndex = int(lineNum % uint64(c.sets))
	tag = lineNum / uint64(c.sets)
	offset = int(uint64(addr) % uint64(c.lineBytes))
	return
}

// lineBase reconstructs the line-aligned address a (set, tag) pair covers,
// per spec.md section 3: line_base = ((tag * num_sets) + set_index) * LINE_BYTES.
func (c *Cache) lineBase(setIndex int, tag uint64) core.Addr {
	return core.Addr((tag*uint64(c.sets) + uint64(setIndex)) * uint64(c.lineBytes))
}

func (c *Cache) findWay(setIndex int, tag uint64) int {
	set := c.storage[setIndex]
	for way, l := range set {
		if l.Valid && l.Tag == tag && l.State != core.MESIInvalid {
			return way
		}
	}
	return -1
}

// selectVictim scans ways in order; picks the first invalid one, else way 0
// (spec.md's "Victim Selection": a deliberately simple FIFO-style policy).
func (c *Cache) selectVictim(setIndex int) int {
	set := c.storage[setIndex]
	for way, l := range set {
		if !l.Valid {
			return way
		}
	}
	return 0
}

// Load implements spec.md's load(addr, size) -> (hit, word).
func (c *Cache) Load(addr core.Addr, size int) (hit bool, word core.Word, err error) {
	setIndex, tag, offset := c.decompose(addr)
	if offset+size > c.lineBytes {
		return false, 0, core.ErrAlignment
	}

	if way := c.findWay(setIndex, tag); way >= 0 {
		c.metrics.Hits++
		c.metrics.Loads++
		word = readWordAt(c.storage[setIndex][way].Bytes, offset)
		return true, word, nil
	}

	word, err = c.loadMiss(setIndex, tag, offset, addr, size)
	return false, word, err
}

// Store implements spec.md's store(addr, size, value).
func (c *Cache) Store(addr core.Addr, size int, value core.Word) (hit bool, err error) {
	setIndex, tag, offset := c.decompose(addr)
	if offset+size > c.lineBytes {
		return false, core.ErrAlignment
	}

	if way := c.findWay(setIndex, tag); way >= 0 {
		err = c.writeHit(setIndex, way, tag, offset, addr, value)
		return true, err
	}

	err = c.storeMiss(setIndex, tag, offset, addr, value)
	return false, err
}

// loadMiss is the Load Miss Handler (spec.md section 4.2): victim
// selection, BusRd, fill from memory, then extract the requested word.
func (c *Cache) loadMiss(setIndex int, tag uint64, offset int, addr core.Addr, size int) (core.Word, error) {
	way := c.selectVictim(setIndex)
	line := &c.storage[setIndex][way]
	c.writeBackIfDirty(setIndex, line)

	lineAddr := c.lineBase(setIndex, tag)
	c.bus.Push(core.BusRequest{Cmd: core.BusRd, Source: c.owner, Addr: lineAddr, Size: c.lineBytes})

	if err := c.fillFromMemory(line, lineAddr); err != nil {
		return 0, err
	}

	line.Valid = true
	line.Tag = tag
	line.Dirty = false
	// Open question #2 (SPEC_FULL.md section 9): conservative S, always —
	// the bus does not report back whether a peer held the line.
	line.State = core.MESIShared

	c.metrics.Misses++
	c.metrics.Loads++
	return readWordAt(line.Bytes, offset), nil
}

// storeMiss is the Store Miss Handler: victim selection, BusRdX, fill, then
// overwrite the stored word and write through.
func (c *Cache) storeMiss(setIndex int, tag uint64, offset int, addr core.Addr, value core.Word) error {
	way := c.selectVictim(setIndex)
	line := &c.storage[setIndex][way]
	c.writeBackIfDirty(setIndex, line)

	lineAddr := c.lineBase(setIndex, tag)
	c.bus.Push(core.BusRequest{Cmd: core.BusRdX, Source: c.owner, Addr: lineAddr, Size: c.lineBytes})

	if err := c.fillFromMemory(line, lineAddr); err != nil {
		return err
	}

	writeWordAt(line.Bytes, offset, value)
	if err := c.writeThrough(addr, value); err != nil {
		return err
	}

	line.Valid = true
	line.Tag = tag
	line.Dirty = false
	line.State = core.MESIModified

	c.metrics.Misses++
	c.metrics.Stores++
	return nil
}

// writeHit is the Write-Hit Handler. Open question #1 (SPEC_FULL.md
// section 9): E transitions to M with no bus traffic; S always emits
// BusUpgr first.
func (c *Cache) writeHit(setIndex, way int, tag uint64, offset int, addr core.Addr, value core.Word) error {
	line := &c.storage[setIndex][way]

	switch line.State {
	case core.MESIModified:
		// already sole owner; nothing to announce.
	case core.MESIExclusive:
		line.State = core.MESIModified
		c.metrics.TransEToM++
	case core.MESIShared:
		lineAddr := c.lineBase(setIndex, tag)
		c.bus.Push(core.BusRequest{Cmd: core.BusUpgr, Source: c.owner, Addr: lineAddr, Size: c.lineBytes})
		line.State = core.MESIModified
		c.metrics.TransSToM++
	default:
		panic(&core.ProtocolInvariantError{Detail: fmt.Sprintf("write hit on invalid line, PE%d set=%d way=%d", c.owner, setIndex, way)})
	}

	writeWordAt(line.Bytes, offset, value)
	if err := c.writeThrough(addr, value); err != nil {
		return err
	}
	line.Dirty = false

	c.metrics.Hits++
	c.metrics.Stores++
	return nil
}

// Snoop implements bus.Snoopable: the Snoop Handler table from spec.md
// section 4.2, dispatched by the bus for every request whose source is a
// peer PE.
func (c *Cache) Snoop(req core.BusRequest) bus.SnoopResult {
	setIndex, tag, _ := c.decompose(req.Addr)
	way := c.findWay(setIndex, tag)
	if way < 0 {
		return bus.NotPresent
	}
	line := &c.storage[setIndex][way]

	switch req.Cmd {
	case core.BusRd:
		switch line.State {
		case core.MESIShared:
			return bus.Acted
		case core.MESIExclusive:
			line.State = core.MESIShared
			c.metrics.TransEToS++
			return bus.Acted
		case core.MESIModified:
			lineAddr := c.lineBase(setIndex, tag)
			c.writeBackLine(lineAddr, line)
			line.State = core.MESIShared
			line.Dirty = false
			c.metrics.TransMToS++
			c.metrics.Flushes++
			return bus.ActedWithData
		}

	case core.BusRdX:
		switch line.State {
		case core.MESIShared:
			c.metrics.Invalidations++
			c.metrics.TransXToI++
			line.invalidate()
			return bus.Acted
		case core.MESIExclusive:
			c.metrics.Invalidations++
			c.metrics.TransXToI++
			line.invalidate()
			return bus.Acted
		case core.MESIModified:
			acted := bus.Acted
			if line.Dirty {
				lineAddr := c.lineBase(setIndex, tag)
				c.writeBackLine(lineAddr, line)
				c.metrics.Flushes++
				acted = bus.ActedWithData
			}
			c.metrics.Invalidations++
			line.invalidate()
			return acted
		}

	case core.BusUpgr:
		switch line.State {
		case core.MESIShared, core.MESIExclusive:
			c.metrics.Invalidations++
			c.metrics.TransXToI++
			line.invalidate()
			return bus.Acted
		case core.MESIModified:
			if line.Dirty {
				lineAddr := c.lineBase(setIndex, tag)
				c.writeBackLine(lineAddr, line)
				c.metrics.Flushes++
			}
			c.metrics.Invalidations++
			line.invalidate()
			return bus.Acted
		}
	}
	return bus.NotPresent
}

func (c *Cache) writeBackIfDirty(setIndex int, line *Line) {
	if !line.Valid || !line.Dirty {
		return
	}
	lineAddr := c.lineBase(setIndex, line.Tag)
	c.writeBackLine(lineAddr, line)
}

// writeBackLine copies the entire line to memory, word by word — always
// whole-line, per SPEC_FULL.md section 9's open-question #3 decision.
func (c *Cache) writeBackLine(lineAddr core.Addr, line *Line) {
	wordBytes := 8
	for off := 0; off+wordBytes <= len(line.Bytes); off += wordBytes {
		w := readWordAt(line.Bytes, off)
		c.mem.WriteWord(lineAddr+core.Addr(off), w) //nolint:errcheck // alignment is guaranteed by construction
	}
}

func (c *Cache) fillFromMemory(line *Line, lineAddr core.Addr) error {
	wordBytes := 8
	for off := 0; off+wordBytes <= len(line.Bytes); off += wordBytes {
		w, err := c.mem.ReadWord(lineAddr + core.Addr(off))
		if err != nil {
			return err
		}
		writeWordAt(line.Bytes, off, w)
	}
	return nil
}

func (c *Cache) writeThrough(addr core.Addr, value core.Word) error {
	return c.mem.WriteWord(addr, value)
}

func readWordAt(bytesLine []byte, offset int) core.Word {
	var w core.Word
	for i := 0; i < 8; i++ {
		w |= core.Word(bytesLine[offset+i]) << (8 * i)
	}
	return w
}

func writeWordAt(bytesLine []byte, offset int, w core.Word) {
	for i := 0; i < 8; i++ {
		bytesLine[offset+i] = byte(w >> (8 * i))
	}
}
