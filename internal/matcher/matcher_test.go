package matcher

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/extract"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/imaging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDist(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{"Identical vectors", []float64{1.0, 0.0}, []float64{1.0, 0.0}, 0.0},
		{"Orthogonal vectors", []float64{1.0, 0.0}, []float64{0.0, 1.0}, 1.0},
		{"Opposite vectors", []float64{1.0, 0.0}, []float64{-1.0, 0.0}, 2.0},
		{"B is unnormalized (scaled)", []float64{1.0, 0.0}, []float64{5.0, 0.0}, 0.0},
		{"Empty vectors", []float64{}, []float64{}, 2.0},
		{"Zero vector", []float64{0, 0}, []float64{1, 0}, 2.0},
		{"Length mismatch", []float64{1}, []float64{1, 0}, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDist(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDist() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEuclideanDist(t *testing.T) {
	assert.InDelta(t, 5.0, EuclideanDist([]float64{0, 0}, []float64{3, 4}), 1e-12)
	assert.Zero(t, EuclideanDist([]float64{1, 2}, []float64{1, 2}))
	assert.True(t, math.IsInf(EuclideanDist([]float64{1}, []float64{1, 2}), 1))
	assert.True(t, math.IsInf(EuclideanDist(nil, nil), 1))
}

func TestParseMetric(t *testing.T) {
	fn, err := ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, 1.0, fn([]float64{1, 0}, []float64{0, 1}))

	fn, err = ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, 5.0, fn([]float64{0, 0}, []float64{3, 4}))

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}

func refs(embs ...[]float64) []types.ReferenceIdentity {
	out := make([]types.ReferenceIdentity, len(embs))
	for i, e := range embs {
		out[i] = types.ReferenceIdentity{Index: i, Embedding: e}
	}
	return out
}

func TestCompareIsStrict(t *testing.T) {
	m := New(refs([]float64{0, 0}), 0.6)

	assert.Equal(t, []int{0}, m.Compare([]float64{0.59, 0}))
	assert.Empty(t, m.Compare([]float64{0.6, 0}))
	assert.Empty(t, m.Compare([]float64{0.7, 0}))
}

func TestMatchManyToMany(t *testing.T) {
	// Two references close enough that one face matches both
	m := New(refs([]float64{0, 0}, []float64{0.3, 0}, []float64{5, 5}), DefaultTolerance)

	faces := []types.DetectedFace{
		{Embedding: []float64{0.15, 0}}, // both ref 0 and ref 1
		{Embedding: []float64{5, 5.1}},  // ref 2
		{Embedding: []float64{9, 9}},    // nobody
		{Embedding: []float64{1, 2, 3}}, // wrong dimension
	}

	events := m.Match(2.5, faces)
	assert.Equal(t, []types.MatchEvent{
		{Reference: 0, Timestamp: 2.5},
		{Reference: 1, Timestamp: 2.5},
		{Reference: 2, Timestamp: 2.5},
	}, events)
}

func TestMatchNoReferences(t *testing.T) {
	m := New(nil, DefaultTolerance)
	assert.Empty(t, m.Match(1, []types.DetectedFace{{Embedding: []float64{0}}}))
	assert.Zero(t, m.References())
}

func TestWithDistance(t *testing.T) {
	m := New(refs([]float64{1, 0}), 0.1, WithDistance(CosineDist))
	assert.Equal(t, []int{0}, m.Compare([]float64{10, 0.1}))
}

func TestProcessFrame(t *testing.T) {
	var got *imaging.RGB
	ex := extract.Func(func(ctx context.Context, img *imaging.RGB) ([]types.DetectedFace, error) {
		got = img
		return []types.DetectedFace{{Embedding: []float64{0.1, 0}}, {Embedding: []float64{3, 3}}}, nil
	})
	m := New(refs([]float64{0, 0}), DefaultTolerance, WithMaxFrameWidth(4))

	gray := image.NewGray(image.Rect(0, 0, 8, 2))
	out := m.ProcessFrame(context.Background(), ex, types.SampledFrame{Index: 13, Timestamp: 0.52, Image: gray})

	require.True(t, out.IsOk())
	assert.Equal(t, 2, out.Value.Faces)
	assert.Equal(t, []types.MatchEvent{{Reference: 0, Timestamp: 0.52}}, out.Value.Events)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Width(), "frame downscaled before extraction")
}

func TestProcessFrameExtractionError(t *testing.T) {
	ex := extract.Func(func(ctx context.Context, img *imaging.RGB) ([]types.DetectedFace, error) {
		return nil, errors.New("server down")
	})
	m := New(refs([]float64{0, 0}), DefaultTolerance)

	out := m.ProcessFrame(context.Background(), ex, types.SampledFrame{Index: 1, Image: image.NewGray(image.Rect(0, 0, 1, 1))})
	assert.False(t, out.IsOk())
	assert.ErrorIs(t, out.Reason, types.ErrEmbeddingExtraction)
}

func TestProcessFrameWithoutPixels(t *testing.T) {
	m := New(refs([]float64{0, 0}), DefaultTolerance)
	out := m.ProcessFrame(context.Background(), extract.Func(nil), types.SampledFrame{Index: 4})
	assert.ErrorIs(t, out.Reason, types.ErrFrameDecode)
}
