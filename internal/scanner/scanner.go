// Package scanner runs the reference-face presence pipeline over one video.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/config"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/extract"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/matcher"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/reference"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/sampler"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/timeline"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/video"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options are the per-scan knobs. Zero values fall back to the package defaults.
type Options struct {
	Period           float64
	FallbackFPS      float64
	Tolerance        float64
	Gap              float64
	Metric           string
	Engines          int
	MaxReferenceSide int
	MaxFrameWidth    int
}

// OptionsFromConfig copies the scan-related parts of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Period:           cfg.Scan.Period,
		FallbackFPS:      cfg.Scan.FallbackFPS,
		Tolerance:        cfg.Scan.Tolerance,
		Gap:              cfg.Scan.Gap,
		Metric:           cfg.Scan.Metric,
		Engines:          cfg.Scan.Engines,
		MaxReferenceSide: cfg.Reference.MaxSide,
		MaxFrameWidth:    cfg.Scan.MaxFrameWidth,
	}
}

func (o Options) withDefaults() Options {
	if o.Period <= 0 {
		o.Period = sampler.DefaultPeriod
	}
	if o.FallbackFPS <= 0 {
		o.FallbackFPS = sampler.DefaultFallbackFPS
	}
	if o.Tolerance <= 0 {
		o.Tolerance = matcher.DefaultTolerance
	}
	if o.Gap <= 0 {
		o.Gap = timeline.DefaultGap
	}
	if o.Engines < 1 {
		o.Engines = 1
	}
	return o
}

// Request names the inputs of one scan.
// Known holds references that are already embedded, such as reference library
// faces; they are indexed after the images of ReferencePaths, in order.
type Request struct {
	VideoPath      string
	ReferencePaths []string
	Known          []types.ReferenceIdentity
}

// SkippedReference is a reference image that produced no embedding.
type SkippedReference struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type Stats struct {
	FramesRead        int           `json:"frames_read"`
	FramesSampled     int           `json:"frames_sampled"`
	FramesSkipped     int           `json:"frames_skipped"`
	FramesFailed      int           `json:"frames_failed"`
	Faces             int           `json:"faces"`
	Matches           int           `json:"matches"`
	ReferencesLoaded  int           `json:"references_loaded"`
	ReferencesSkipped int           `json:"references_skipped"`
	Elapsed           time.Duration `json:"elapsed"`
}

// Result is the outcome of a finished (or cancelled) scan.
type Result struct {
	ScanID            uuid.UUID                 `json:"scan_id"`
	VideoPath         string                    `json:"video_path"`
	FPS               float64                   `json:"fps"`
	Stride            int                       `json:"stride"`
	References        []types.ReferenceIdentity `json:"references"`
	SkippedReferences []SkippedReference        `json:"skipped_references,omitempty"`
	Timestamps        types.TimestampMap        `json:"timestamps"`
	Stats             Stats                     `json:"stats"`
}

// Scanner is reusable; each Run owns its own video source and extractors.
type Scanner struct {
	opts         Options
	open         video.Opener
	newExtractor extract.Factory
	log          zerolog.Logger
	onRead       func(video.Position)
	onState      func(State)
}

type Option func(*Scanner)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// WithProgress is called for every frame read from the video.
func WithProgress(fn func(video.Position)) Option {
	return func(s *Scanner) { s.onRead = fn }
}

// WithStateHook observes state transitions.
func WithStateHook(fn func(State)) Option {
	return func(s *Scanner) { s.onState = fn }
}

func New(opts Options, open video.Opener, newExtractor extract.Factory, options ...Option) *Scanner {
	s := &Scanner{
		opts:         opts.withDefaults(),
		open:         open,
		newExtractor: newExtractor,
		log:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// run carries the mutable state of one Run.
type run struct {
	*Scanner
	log    zerolog.Logger
	result *Result
	acc    *timeline.Accumulator

	mu    sync.Mutex // guards state; the merge stage runs beside the sampler
	state State
}

func (r *run) setState(next State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == next {
		return
	}
	r.log.Trace().Stringer("from", r.state).Stringer("to", next).Msg("state")
	r.state = next
	if r.onState != nil {
		r.onState(next)
	}
}

// Run scans one video. Only a video that cannot be opened (types.ErrVideoOpen),
// an unknown metric, or an extractor that cannot start fail the scan outright.
// On cancellation the partial result is returned together with ctx.Err().
func (s *Scanner) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	distance, err := matcher.ParseMetric(s.opts.Metric)
	if err != nil {
		return nil, err
	}

	r := &run{
		Scanner: s,
		result:  &Result{ScanID: uuid.New(), VideoPath: req.VideoPath},
	}
	log := s.log.With().Str("scan_id", r.result.ScanID.String()).Logger()
	r.log = log

	// 1. Open the video first so a bad path fails before any model work
	src, err := s.open(ctx, req.VideoPath)
	if err != nil {
		if !errors.Is(err, types.ErrVideoOpen) {
			err = fmt.Errorf("%w: %v", types.ErrVideoOpen, err)
		}
		return nil, err
	}

	// 2. Primary extractor, shared by the reference loader and engine 0
	primary, err := s.newExtractor(ctx, 0)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("start extractor: %w", err)
	}
	defer closeExtractor(log, 0, primary)

	// 3. References
	outcomes, err := reference.NewLoader(primary, s.opts.MaxReferenceSide, log).Load(ctx, req.ReferencePaths)
	if err != nil {
		src.Close()
		return nil, err
	}
	r.result.References = types.Values(outcomes)
	for i, o := range outcomes {
		if !o.IsOk() {
			r.result.SkippedReferences = append(r.result.SkippedReferences, SkippedReference{
				Path:   req.ReferencePaths[i],
				Reason: o.Reason.Error(),
			})
		}
	}
	for _, known := range req.Known {
		if len(known.Embedding) == 0 {
			r.result.SkippedReferences = append(r.result.SkippedReferences, SkippedReference{
				Path:   known.Path,
				Reason: "reference has no embedding",
			})
			continue
		}
		known.Index = len(r.result.References)
		r.result.References = append(r.result.References, known)
	}
	r.result.Stats.ReferencesLoaded = len(r.result.References)
	r.result.Stats.ReferencesSkipped = len(r.result.SkippedReferences)

	r.acc = timeline.New(len(r.result.References), s.opts.Gap)
	m := matcher.New(r.result.References, s.opts.Tolerance,
		matcher.WithDistance(distance),
		matcher.WithMaxFrameWidth(s.opts.MaxFrameWidth),
	)
	smp := sampler.New(src, s.opts.Period, s.opts.FallbackFPS,
		sampler.OnRead(s.onRead),
		sampler.WithLogger(log),
	)
	r.result.FPS, r.result.Stride = smp.FPS(), smp.Stride()
	if smp.UsedFallback() {
		log.Warn().Float64("fps", smp.FPS()).Msg("video has no usable frame rate, using fallback")
	}

	// 4. Walk
	var walkErr error
	if len(r.result.References) == 0 {
		// Nothing can match; skip decoding entirely
		log.Warn().Int("requested", len(req.ReferencePaths)+len(req.Known)).Msg("no usable reference faces, nothing to match")
		src.Close()
	} else {
		log.Info().
			Int("references", len(r.result.References)).
			Float64("fps", smp.FPS()).
			Int("stride", smp.Stride()).
			Int("engines", s.opts.Engines).
			Msg("scanning")

		var walked sampler.Stats
		if s.opts.Engines == 1 {
			walked, walkErr = r.sequential(ctx, smp, m, primary)
		} else {
			walked, walkErr = r.parallel(ctx, smp, m, primary)
		}
		r.result.Stats.FramesRead = walked.FramesRead
		r.result.Stats.FramesSampled = walked.FramesSampled
		r.result.Stats.FramesSkipped += walked.FramesSkipped
	}

	// 5. Finalize
	r.setState(Finalize)
	r.result.Timestamps = r.acc.Result()
	r.result.Stats.Elapsed = time.Since(started)
	if walkErr != nil {
		return r.result, walkErr
	}
	r.setState(Done)

	log.Info().
		Int("sampled", r.result.Stats.FramesSampled).
		Int("faces", r.result.Stats.Faces).
		Int("matched_references", r.acc.Matches()).
		Dur("elapsed", r.result.Stats.Elapsed).
		Msg("scan finished")
	return r.result, nil
}

// sequential is the default strictly ordered read → extract → match → accumulate loop.
func (r *run) sequential(ctx context.Context, smp *sampler.Sampler, m *matcher.Matcher, ex extract.Extractor) (sampler.Stats, error) {
	r.setState(Sampling)
	return smp.Walk(ctx, func(frame types.SampledFrame) error {
		r.setState(Extracting)
		faces := m.Extract(ctx, ex, frame)
		if !faces.IsOk() {
			r.skip(frame.Index, faces.Reason)
			r.setState(Sampling)
			return nil
		}

		r.setState(Matching)
		r.accumulate(matcher.FrameResult{
			Faces:  len(faces.Value),
			Events: m.Match(frame.Timestamp, faces.Value),
		})
		r.setState(Sampling)
		return nil
	})
}

type engineResult struct {
	seq   int
	index int
	out   types.Outcome[matcher.FrameResult]
}

// parallel fans sampled frames out to one goroutine per extractor and merges
// their results back into sampling order before they reach the accumulator.
func (r *run) parallel(ctx context.Context, smp *sampler.Sampler, m *matcher.Matcher, primary extract.Extractor) (sampler.Stats, error) {
	extractors := []extract.Extractor{primary}
	for id := 1; id < r.opts.Engines; id++ {
		ex, err := r.newExtractor(ctx, id)
		if err != nil {
			r.log.Warn().Err(err).Int("engine", id).Msg("engine failed to start, continuing with fewer")
			break
		}
		defer closeExtractor(r.log, id, ex)
		extractors = append(extractors, ex)
	}

	tasks := make(chan types.FrameTask, len(extractors))
	results := make(chan engineResult, len(extractors)*2)

	var wg sync.WaitGroup
	for _, ex := range extractors {
		wg.Add(1)
		go func(ex extract.Extractor) {
			defer wg.Done()
			for task := range tasks {
				results <- engineResult{
					seq:   task.Seq,
					index: task.Frame.Index,
					out:   m.ProcessFrame(ctx, ex, task.Frame),
				}
			}
		}(ex)
	}

	// Ordered merge: engine 2 may finish before engine 1
	mergeDone := make(chan struct{})
	go func() {
		defer close(mergeDone)
		buffer := make(map[int]engineResult)
		next := 0
		for res := range results {
			buffer[res.seq] = res
			for {
				head, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				if head.out.IsOk() {
					r.accumulate(head.out.Value)
				} else {
					r.skip(head.index, head.out.Reason)
				}
				next++
			}
		}
	}()

	r.setState(Sampling)
	seq := 0
	stats, err := smp.Walk(ctx, func(frame types.SampledFrame) error {
		select {
		case tasks <- types.FrameTask{Seq: seq, Frame: frame}:
			seq++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	close(tasks)
	wg.Wait()
	close(results)
	<-mergeDone
	return stats, err
}

// accumulate folds one frame's events; only ever called from a single goroutine.
func (r *run) accumulate(res matcher.FrameResult) {
	r.setState(Accumulating)
	r.result.Stats.Faces += res.Faces
	for _, ev := range res.Events {
		if err := r.acc.Add(ev); err != nil {
			r.log.Error().Err(err).Msg("dropping match event")
			continue
		}
		r.result.Stats.Matches++
	}
}

func (r *run) skip(frame int, reason error) {
	if errors.Is(reason, types.ErrFrameDecode) {
		r.result.Stats.FramesSkipped++
	} else {
		r.result.Stats.FramesFailed++
	}
	r.log.Warn().Err(reason).Int("frame", frame).Msg("skipping frame")
}

func closeExtractor(log zerolog.Logger, id int, ex extract.Extractor) {
	if err := ex.Close(); err != nil {
		log.Debug().Err(err).Int("engine", id).Msg("extractor close")
	}
}
