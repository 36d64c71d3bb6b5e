// Package timeline folds ordered match events into per-reference presence intervals.
package timeline

import (
	"errors"
	"fmt"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
)

// DefaultGap is the longest silence (seconds) that still extends an interval.
const DefaultGap = 1.0

var (
	ErrOutOfOrder       = errors.New("match event out of order")
	ErrUnknownReference = errors.New("unknown reference index")
)

// Accumulator owns the interval lists for one scan. It is not safe for concurrent use;
// the scanner feeds it from a single goroutine after the ordered merge.
type Accumulator struct {
	gap       float64
	intervals types.TimestampMap
}

// New prepares an accumulator for refCount references. Every index gets a key,
// so references that never match still appear with an empty list.
func New(refCount int, gap float64) *Accumulator {
	if gap < 0 {
		gap = DefaultGap
	}
	m := make(types.TimestampMap, refCount)
	for i := 0; i < refCount; i++ {
		m[i] = []types.Interval{}
	}
	return &Accumulator{gap: gap, intervals: m}
}

// Add folds one event. An event more than gap seconds after the open interval
// starts a new one, otherwise it extends the open interval.
func (a *Accumulator) Add(ev types.MatchEvent) error {
	list, ok := a.intervals[ev.Reference]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownReference, ev.Reference)
	}

	if len(list) == 0 {
		a.intervals[ev.Reference] = append(list, types.Interval{Start: ev.Timestamp, End: ev.Timestamp})
		return nil
	}

	last := &list[len(list)-1]
	if ev.Timestamp < last.End {
		return fmt.Errorf("%w: reference %d at %.3fs after %.3fs", ErrOutOfOrder, ev.Reference, ev.Timestamp, last.End)
	}
	if ev.Timestamp-last.End > a.gap {
		a.intervals[ev.Reference] = append(list, types.Interval{Start: ev.Timestamp, End: ev.Timestamp})
		return nil
	}
	last.End = ev.Timestamp
	return nil
}

// Result returns a copy of the current intervals.
func (a *Accumulator) Result() types.TimestampMap {
	out := make(types.TimestampMap, len(a.intervals))
	for ref, list := range a.intervals {
		out[ref] = append([]types.Interval{}, list...)
	}
	return out
}

// Matches counts the references with at least one interval.
func (a *Accumulator) Matches() int {
	n := 0
	for _, list := range a.intervals {
		if len(list) > 0 {
			n++
		}
	}
	return n
}
