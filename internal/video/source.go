// Package video decodes a file into frames through ffmpeg.
package video

import (
	"context"
	"image"
	"time"
)

// Position is where the source currently stands.
// Frame is the 0-based index of the last grabbed frame, -1 before the first Grab.
type Position struct {
	Frame   int
	Elapsed time.Duration
}

// Source is a forward-only frame reader.
//
// Grab advances to the next frame and returns io.EOF at end of stream.
// Retrieve decodes the grabbed frame; callers only pay for decoding frames they keep.
type Source interface {
	FrameRate() float64
	Grab() error
	Retrieve() (image.Image, error)
	Position() Position
	Close() error
}

// Opener opens a Source for path. Failures wrap types.ErrVideoOpen.
type Opener func(ctx context.Context, path string) (Source, error)
