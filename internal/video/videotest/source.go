// Package videotest provides an in-memory video.Source for tests.
package videotest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/video"
)

// Source serves Frames synthetic gray frames. Each frame's single gray value is
// frame index mod 256, so extractors can tell frames apart by pixel.
type Source struct {
	FPS    float64
	Frames int
	// Broken lists frame indices whose Retrieve fails.
	Broken map[int]bool
	// FailAt, when >= 0, makes Grab return a non-EOF error at that index.
	FailAt int

	index  int
	closed atomic.Int32
}

func New(fps float64, frames int) *Source {
	return &Source{FPS: fps, Frames: frames, FailAt: -1, index: -1}
}

func (s *Source) FrameRate() float64 { return s.FPS }

func (s *Source) Grab() error {
	if s.index+1 >= s.Frames {
		return io.EOF
	}
	if s.FailAt >= 0 && s.index+1 == s.FailAt {
		return errors.New("videotest: stream broken")
	}
	s.index++
	return nil
}

func (s *Source) Retrieve() (image.Image, error) {
	if s.Broken[s.index] {
		return nil, fmt.Errorf("%w: frame %d", types.ErrFrameDecode, s.index)
	}
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = uint8(s.index % 256)
	}
	return img, nil
}

func (s *Source) Position() video.Position {
	pos := video.Position{Frame: s.index}
	if s.FPS > 0 && s.index > 0 {
		pos.Elapsed = time.Duration(math.Round(float64(s.index) / s.FPS * float64(time.Second)))
	}
	return pos
}

func (s *Source) Close() error {
	s.closed.Add(1)
	return nil
}

// Closed reports how many times Close was called.
func (s *Source) Closed() int { return int(s.closed.Load()) }

// FrameIndex recovers the frame index encoded by Retrieve, modulo 256.
func FrameIndex(img image.Image) int {
	return int(color.GrayModel.Convert(img.At(img.Bounds().Min.X, img.Bounds().Min.Y)).(color.Gray).Y)
}

// Opener always returns src.
func Opener(src video.Source) video.Opener {
	return func(ctx context.Context, path string) (video.Source, error) {
		return src, nil
	}
}

// FailingOpener always fails like an unreadable file.
func FailingOpener() video.Opener {
	return func(ctx context.Context, path string) (video.Source, error) {
		return nil, fmt.Errorf("%w: %s", types.ErrVideoOpen, path)
	}
}
