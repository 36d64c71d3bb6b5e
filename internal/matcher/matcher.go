// Package matcher compares faces found in sampled frames against the loaded references.
package matcher

import (
	"context"
	"fmt"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/extract"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/imaging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
)

// DefaultTolerance is the face_recognition default for 128-d encodings.
const DefaultTolerance = 0.6

// Matcher holds the immutable reference table for one scan.
type Matcher struct {
	refs      []types.ReferenceIdentity
	tolerance float64
	distance  DistanceFunc
	maxWidth  int
}

type Option func(*Matcher)

// WithDistance swaps the default euclidean distance.
func WithDistance(fn DistanceFunc) Option {
	return func(m *Matcher) { m.distance = fn }
}

// WithMaxFrameWidth downscales frames wider than w before extraction.
func WithMaxFrameWidth(w int) Option {
	return func(m *Matcher) { m.maxWidth = w }
}

func New(refs []types.ReferenceIdentity, tolerance float64, opts ...Option) *Matcher {
	m := &Matcher{
		refs:      refs,
		tolerance: tolerance,
		distance:  EuclideanDist,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// References returns the reference count.
func (m *Matcher) References() int { return len(m.refs) }

// Compare returns the indices of every reference within tolerance of emb.
// The comparison is strict: a distance equal to the tolerance is not a match.
func (m *Matcher) Compare(emb []float64) []int {
	var hits []int
	for _, ref := range m.refs {
		if m.distance(emb, ref.Embedding) < m.tolerance {
			hits = append(hits, ref.Index)
		}
	}
	return hits
}

// Match emits one event per (face, matching reference) pair. A face may match
// several references and a reference may be matched by several faces.
func (m *Matcher) Match(ts float64, faces []types.DetectedFace) []types.MatchEvent {
	var events []types.MatchEvent
	for _, face := range faces {
		for _, ref := range m.Compare(face.Embedding) {
			events = append(events, types.MatchEvent{Reference: ref, Timestamp: ts})
		}
	}
	return events
}

// FrameResult is what one sampled frame produced.
type FrameResult struct {
	Faces  int
	Events []types.MatchEvent
}

// Extract normalizes the frame to RGB and asks ex for its faces.
// Extraction failures skip the frame and never abort the scan.
func (m *Matcher) Extract(ctx context.Context, ex extract.Extractor, frame types.SampledFrame) types.Outcome[[]types.DetectedFace] {
	if frame.Image == nil {
		return types.Skipped[[]types.DetectedFace](fmt.Errorf("%w: frame %d has no pixels", types.ErrFrameDecode, frame.Index))
	}

	rgb := imaging.ToRGB(imaging.FitWidth(frame.Image, m.maxWidth))
	faces, err := ex.Extract(ctx, rgb)
	if err != nil {
		return types.Skipped[[]types.DetectedFace](fmt.Errorf("%w: frame %d: %v", types.ErrEmbeddingExtraction, frame.Index, err))
	}
	return types.Ok(faces)
}

// ProcessFrame is Extract followed by Match.
func (m *Matcher) ProcessFrame(ctx context.Context, ex extract.Extractor, frame types.SampledFrame) types.Outcome[FrameResult] {
	faces := m.Extract(ctx, ex, frame)
	if !faces.IsOk() {
		return types.Skipped[FrameResult](faces.Reason)
	}
	return types.Ok(FrameResult{
		Faces:  len(faces.Value),
		Events: m.Match(frame.Timestamp, faces.Value),
	})
}
