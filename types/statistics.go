// statistics.go defines the dispatch counters and their snapshots.

package types

import (
	"go.uber.org/atomic"
)

// DispatchPath is the processing path a frame was routed to.
type DispatchPath int

const (
	DispatchPathUndefined = DispatchPath(iota)
	DispatchPathPassthrough
	DispatchPathReadback
	DispatchPathSoftware
	DispatchPathGraph
	DispatchPathBlit
	endOfDispatchPath
)

func (p DispatchPath) String() string {
	switch p {
	case DispatchPathUndefined:
		return "undefined"
	case DispatchPathPassthrough:
		return "passthrough"
	case DispatchPathReadback:
		return "readback"
	case DispatchPathSoftware:
		return "software"
	case DispatchPathGraph:
		return "graph"
	case DispatchPathBlit:
		return "blit"
	}
	return "unknown"
}

func DispatchPaths() []DispatchPath {
	var result []DispatchPath
	for p := DispatchPathUndefined + 1; p < endOfDispatchPath; p++ {
		result = append(result, p)
	}
	return result
}

type StatisticsItem struct {
	Count uint64 `json:",omitempty"`
	Bytes uint64 `json:",omitempty"`
}

type Statistics struct {
	Received  uint64
	Emitted   map[DispatchPath]StatisticsItem
	Failures  map[ErrorKind]uint64
	Processed StatisticsItem
}

func (s Statistics) TotalFailures() uint64 {
	var total uint64
	for _, v := range s.Failures {
		total += v
	}
	return total
}

type CountersItem struct {
	Count atomic.Uint64
	Bytes atomic.Uint64
}

func (c *CountersItem) Increment(msgSize uint64) {
	c.Count.Add(1)
	c.Bytes.Add(msgSize)
}

func (c *CountersItem) ToStats() StatisticsItem {
	return StatisticsItem{
		Count: c.Count.Load(),
		Bytes: c.Bytes.Load(),
	}
}

// Counters is the live, concurrency-safe form of Statistics.
type Counters struct {
	Received atomic.Uint64
	Emitted  [endOfDispatchPath]CountersItem
	Failures [endOfErrorKind]atomic.Uint64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) IncrementEmitted(path DispatchPath, msgSize uint64) {
	if path < 0 || path >= endOfDispatchPath {
		path = DispatchPathUndefined
	}
	c.Emitted[path].Increment(msgSize)
}

func (c *Counters) IncrementFailures(kind ErrorKind) {
	if kind < 0 || kind >= endOfErrorKind {
		kind = ErrorKindUndefined
	}
	c.Failures[kind].Add(1)
}

func (c *Counters) ToStats() Statistics {
	s := Statistics{
		Received: c.Received.Load(),
		Emitted:  map[DispatchPath]StatisticsItem{},
		Failures: map[ErrorKind]uint64{},
	}
	for path := range endOfDispatchPath {
		item := c.Emitted[path].ToStats()
		if item.Count == 0 {
			continue
		}
		s.Emitted[path] = item
		s.Processed.Count += item.Count
		s.Processed.Bytes += item.Bytes
	}
	for kind := range endOfErrorKind {
		if v := c.Failures[kind].Load(); v != 0 {
			s.Failures[kind] = v
		}
	}
	return s
}
