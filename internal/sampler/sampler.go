// Package sampler walks a video source and keeps one frame per sampling period.
package sampler

import (
	"context"
	"errors"
	"io"
	"math"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/video"
	"github.com/rs/zerolog"
)

const (
	DefaultPeriod      = 0.5
	DefaultFallbackFPS = 25.0
)

// Stride is the number of source frames between two samples: round(period*fps), at least 1.
func Stride(period, fps float64) int {
	n := int(math.Round(period * fps))
	if n < 1 {
		return 1
	}
	return n
}

// Stats counts what a walk saw.
type Stats struct {
	FramesRead    int `json:"frames_read"`
	FramesSampled int `json:"frames_sampled"`
	FramesSkipped int `json:"frames_skipped"`
}

// Sampler owns a Source for the duration of one Walk.
type Sampler struct {
	src      video.Source
	fps      float64
	stride   int
	onRead   func(video.Position)
	log      zerolog.Logger
	fallback bool
}

type Option func(*Sampler)

// OnRead is called for every frame pulled from the source, sampled or not.
func OnRead(fn func(video.Position)) Option {
	return func(s *Sampler) { s.onRead = fn }
}

// WithLogger sets the logger used for skipped frames.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sampler) { s.log = l }
}

// New resolves the effective frame rate and stride for src.
func New(src video.Source, period, fallbackFPS float64, opts ...Option) *Sampler {
	s := &Sampler{src: src, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	if fallbackFPS <= 0 {
		fallbackFPS = DefaultFallbackFPS
	}
	s.fps = src.FrameRate()
	if s.fps <= 0 || math.IsNaN(s.fps) || math.IsInf(s.fps, 0) {
		s.fps = fallbackFPS
		s.fallback = true
	}
	s.stride = Stride(period, s.fps)
	return s
}

// FPS is the effective frame rate, after fallback.
func (s *Sampler) FPS() float64 { return s.fps }

// Stride is the effective frame step.
func (s *Sampler) Stride() int { return s.stride }

// UsedFallback reports whether the source had no usable frame rate.
func (s *Sampler) UsedFallback() bool { return s.fallback }

// Walk reads the source to the end and calls fn for every sampled frame, in order.
// Undecodable frames are skipped. A read error other than io.EOF ends the walk
// early but is not returned: the frames already delivered stand.
// The source is closed before Walk returns, whatever the reason.
func (s *Sampler) Walk(ctx context.Context, fn func(types.SampledFrame) error) (stats Stats, err error) {
	defer func() {
		if cerr := s.src.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("video source did not close cleanly")
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := s.src.Grab(); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warn().Err(err).Int("frames_read", stats.FramesRead).Msg("frame stream ended early")
			}
			return stats, nil
		}

		pos := s.src.Position()
		stats.FramesRead++
		if s.onRead != nil {
			s.onRead(pos)
		}

		if pos.Frame%s.stride != 0 {
			continue
		}

		img, err := s.src.Retrieve()
		if err != nil {
			stats.FramesSkipped++
			s.log.Warn().Err(err).Int("frame", pos.Frame).Msg("skipping unreadable frame")
			continue
		}

		frame := types.SampledFrame{
			Index:     pos.Frame,
			Timestamp: s.timestamp(pos),
			Image:     img,
		}
		stats.FramesSampled++
		if err := fn(frame); err != nil {
			return stats, err
		}
	}
}

// timestamp prefers the source clock; without a known rate it derives one from the fallback fps.
func (s *Sampler) timestamp(pos video.Position) float64 {
	if s.fallback {
		return float64(pos.Frame) / s.fps
	}
	return pos.Elapsed.Seconds()
}
