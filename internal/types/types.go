package types

import (
	"encoding/json"
	"fmt"
	"image"
)

// BoundingBox is a face location in frame pixels, [top, right, bottom, left].
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Area returns the box surface, 0 for degenerate boxes.
func (b BoundingBox) Area() int {
	w, h := b.Right-b.Left, b.Bottom-b.Top
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// DetectedFace is a single face found by the extractor in one image.
type DetectedFace struct {
	Box       BoundingBox `json:"box"`
	Embedding []float64   `json:"embedding"`
}

// ReferenceIdentity is a known face loaded once before scanning.
// Index follows the order of successfully loaded references.
// LibraryID is set when the embedding came from the reference library.
type ReferenceIdentity struct {
	Index     int       `json:"index"`
	Path      string    `json:"path"`
	LibraryID int64     `json:"library_id,omitempty"`
	Embedding []float64 `json:"-"`
}

// SampledFrame is a frame chosen by the sampler, Timestamp in seconds.
type SampledFrame struct {
	Index     int
	Timestamp float64
	Image     image.Image
}

// FrameTask carries a sampled frame through the engine pool.
// Seq is the position of the frame in sampling order and drives the ordered merge.
type FrameTask struct {
	Seq   int
	Frame SampledFrame
}

// MatchEvent says reference Reference was seen at Timestamp.
type MatchEvent struct {
	Reference int
	Timestamp float64
}

// Interval is a closed presence range in seconds.
type Interval struct {
	Start float64
	End   float64
}

// Duration returns End-Start in seconds.
func (iv Interval) Duration() float64 { return iv.End - iv.Start }

// MarshalJSON encodes the interval as a [start, end] pair.
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{iv.Start, iv.End})
}

// UnmarshalJSON decodes a [start, end] pair.
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	if pair[0] > pair[1] {
		return fmt.Errorf("interval: start %v after end %v", pair[0], pair[1])
	}
	iv.Start, iv.End = pair[0], pair[1]
	return nil
}

// TimestampMap maps a reference index to its ordered presence intervals.
type TimestampMap map[int][]Interval
