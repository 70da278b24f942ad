// Package radiostat counts per-radio frames and drops.
package radiostat

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

type Counter int

const (
	TxFrames Counter = iota
	TxBytes
	RxFrames
	RxBytes
	QueueDrops
	RateDrops
	RoutingMisses
	Errors

	numCounters
)

func (c Counter) String() string {
	switch c {
	case TxFrames:
		return "tx_frames"
	case TxBytes:
		return "tx_bytes"
	case RxFrames:
		return "rx_frames"
	case RxBytes:
		return "rx_bytes"
	case QueueDrops:
		return "queue_drops"
	case RateDrops:
		return "rate_drops"
	case RoutingMisses:
		return "routing_misses"
	case Errors:
		return "errors"
	}
	return ""
}

// Per-radio values.
type RadioStats map[Counter]uint64

// Multi-radio stats keyed by radio name.
type Stats map[string]RadioStats

// Collector holds the live counters of one radio.
// It is safe for concurrent use.
type Collector struct {
	name string
	v    [numCounters]atomic.Uint64
}

func (c *Collector) Add(ctr Counter, n uint64) { c.v[ctr].Add(n) }

func (c *Collector) Inc(ctr Counter) { c.v[ctr].Add(1) }

func (c *Collector) Load(ctr Counter) uint64 { return c.v[ctr].Load() }

// Set is the collection of every radio's collector.
type Set struct {
	mu         sync.Mutex
	collectors []*Collector
}

func NewSet() *Set { return &Set{} }

// Radio returns the collector for name, creating it on first use.
func (s *Set) Radio(name string) *Collector {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.collectors {
		if c.name == name {
			return c
		}
	}
	c := &Collector{name: name}
	s.collectors = append(s.collectors, c)
	return c
}

// Snapshot reads every counter of every radio.
func (s *Set) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Stats, len(s.collectors))
	for _, c := range s.collectors {
		vals := make(RadioStats, numCounters)
		for ctr := range numCounters {
			vals[ctr] = c.Load(ctr)
		}
		out[c.name] = vals
	}
	return out
}

// Since computes s(now) - old.
func (s Stats) Since(old Stats) Stats {
	out := make(Stats)
	for radio, now := range s {
		prev := old[radio]
		diff := make(RadioStats, len(now))
		for ctr, v := range now {
			diff[ctr] = v - prev[ctr]
		}
		out[radio] = diff
	}
	return out
}

// Total sums a counter over every radio.
func (s Stats) Total(ctr Counter) (n uint64) {
	for _, r := range s {
		n += r[ctr]
	}
	return n
}

func Print(w io.Writer, s Stats, aliases map[string]string) error {
	radios := make([]string, 0, len(s))
	for radio := range s {
		radios = append(radios, radio)
	}
	slices.Sort(radios)

	for _, radio := range radios {
		stats := s[radio]

		txFrames := stats[TxFrames]
		txBytes := stats[TxBytes]
		rxFrames := stats[RxFrames]
		rxBytes := stats[RxBytes]

		var err error
		if alias, ok := aliases[radio]; ok {
			_, err = fmt.Fprintf(w, "%s (%s):\n", radio, alias)
		} else {
			_, err = fmt.Fprintf(w, "%s :\n", radio)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "  TX   %-12d  ≈ %-8s (%s)\n",
			txFrames, humanize.Bytes(txBytes), humanize.Comma(int64(txBytes)),
		)
		fmt.Fprintf(w, "  RX   %-12d  ≈ %-8s (%s)\n",
			rxFrames, humanize.Bytes(rxBytes), humanize.Comma(int64(rxBytes)),
		)
		fmt.Fprintf(w, "  DROP queue=%s rate=%s miss=%s err=%s\n",
			humanize.Comma(int64(stats[QueueDrops])),
			humanize.Comma(int64(stats[RateDrops])),
			humanize.Comma(int64(stats[RoutingMisses])),
			humanize.Comma(int64(stats[Errors])),
		)
	}

	return nil
}
