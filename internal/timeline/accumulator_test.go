package timeline

import (
	"testing"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, a *Accumulator, ref int, times ...float64) {
	t.Helper()
	for _, ts := range times {
		require.NoError(t, a.Add(types.MatchEvent{Reference: ref, Timestamp: ts}))
	}
}

func TestAccumulator(t *testing.T) {
	tests := []struct {
		name  string
		times []float64
		want  []types.Interval
	}{
		{
			name:  "close events merge",
			times: []float64{1.0, 1.8},
			want:  []types.Interval{{Start: 1.0, End: 1.8}},
		},
		{
			name:  "gap above threshold splits",
			times: []float64{1.0, 3.0},
			want:  []types.Interval{{Start: 1.0, End: 1.0}, {Start: 3.0, End: 3.0}},
		},
		{
			name:  "gap of exactly one second merges",
			times: []float64{2.0, 3.0},
			want:  []types.Interval{{Start: 2.0, End: 3.0}},
		},
		{
			name:  "single event",
			times: []float64{0},
			want:  []types.Interval{{Start: 0, End: 0}},
		},
		{
			name:  "chained half second samples",
			times: []float64{0, 0.5, 1.0, 1.5, 4.0, 4.5},
			want:  []types.Interval{{Start: 0, End: 1.5}, {Start: 4.0, End: 4.5}},
		},
		{
			name:  "repeated timestamp from many-to-many match",
			times: []float64{2.0, 2.0, 2.5},
			want:  []types.Interval{{Start: 2.0, End: 2.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(1, DefaultGap)
			feed(t, a, 0, tt.times...)
			assert.Equal(t, tt.want, a.Result()[0])
		})
	}
}

func TestAccumulatorKeysForEveryReference(t *testing.T) {
	a := New(3, DefaultGap)
	feed(t, a, 1, 4.0)

	got := a.Result()
	require.Len(t, got, 3)
	assert.NotNil(t, got[0])
	assert.Empty(t, got[0])
	assert.Equal(t, []types.Interval{{Start: 4, End: 4}}, got[1])
	assert.Empty(t, got[2])
	assert.Equal(t, 1, a.Matches())
}

func TestAccumulatorNoReferences(t *testing.T) {
	a := New(0, DefaultGap)
	assert.Empty(t, a.Result())
	assert.ErrorIs(t, a.Add(types.MatchEvent{Reference: 0, Timestamp: 1}), ErrUnknownReference)
}

func TestAccumulatorRejectsOutOfOrder(t *testing.T) {
	a := New(1, DefaultGap)
	feed(t, a, 0, 5.0)

	err := a.Add(types.MatchEvent{Reference: 0, Timestamp: 4.0})
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, []types.Interval{{Start: 5, End: 5}}, a.Result()[0])
}

func TestAccumulatorResultIsACopy(t *testing.T) {
	a := New(1, DefaultGap)
	feed(t, a, 0, 1.0)

	snapshot := a.Result()
	snapshot[0][0].End = 99

	assert.Equal(t, 1.0, a.Result()[0][0].End)
}

// Intervals stay sorted, disjoint and separated by more than the gap.
func TestAccumulatorInvariants(t *testing.T) {
	a := New(2, DefaultGap)
	times := []float64{0, 0.52, 1.04, 3.0, 3.4, 7.9, 8.9, 10.0, 12.0}
	feed(t, a, 0, times...)
	feed(t, a, 1, times[3:]...)

	for ref, list := range a.Result() {
		for i, iv := range list {
			assert.LessOrEqual(t, iv.Start, iv.End, "ref %d interval %d", ref, i)
			if i > 0 {
				assert.Greater(t, iv.Start-list[i-1].End, DefaultGap, "ref %d interval %d", ref, i)
			}
		}
	}
}

func TestAccumulatorCustomGap(t *testing.T) {
	a := New(1, 3.0)
	feed(t, a, 0, 1.0, 3.5, 7.0)
	assert.Equal(t, []types.Interval{{Start: 1.0, End: 3.5}, {Start: 7.0, End: 7.0}}, a.Result()[0])
}
