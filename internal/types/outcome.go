package types

import "errors"

var (
	// ErrReferenceLoad marks a reference image that could not be decoded or held no face.
	ErrReferenceLoad = errors.New("reference load failed")
	// ErrFrameDecode marks a sampled frame whose pixels could not be decoded.
	ErrFrameDecode = errors.New("frame decode failed")
	// ErrEmbeddingExtraction marks an extractor failure for a single image.
	ErrEmbeddingExtraction = errors.New("embedding extraction failed")
	// ErrVideoOpen is the only fatal scan error.
	ErrVideoOpen = errors.New("video open failed")
)

// Outcome is either Ok(value) or Skipped(reason).
type Outcome[T any] struct {
	Value  T
	Reason error
}

// Ok wraps a successful value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Skipped records why an item was dropped. A nil reason is not allowed.
func Skipped[T any](reason error) Outcome[T] {
	if reason == nil {
		reason = errors.New("skipped")
	}
	return Outcome[T]{Reason: reason}
}

// IsOk reports whether the outcome carries a value.
func (o Outcome[T]) IsOk() bool { return o.Reason == nil }

// Values collects the values of all Ok outcomes, in order.
func Values[T any](outcomes []Outcome[T]) []T {
	out := make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		if o.IsOk() {
			out = append(out, o.Value)
		}
	}
	return out
}
