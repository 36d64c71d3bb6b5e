package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/config"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/imaging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/utils"
)

const megabyte = 1024 * 1024

const (
	ModeMJPEG = "mjpeg"
	ModeBGR24 = "bgr24"
)

// FFmpegSource streams frames out of an ffmpeg child process.
type FFmpegSource struct {
	cmd    *utils.SafeCommand
	cancel context.CancelFunc

	stdout io.ReadCloser
	mode   string
	fps    float64
	width  int
	height int

	scanner *bufio.Scanner // mjpeg
	reader  *bufio.Reader  // bgr24
	frame   []byte
	index   int
	eof     bool

	closeOnce sync.Once
	closeErr  error
}

// NewOpener binds ffmpeg settings into an Opener.
func NewOpener(cfg config.VideoConfig) Opener {
	return func(ctx context.Context, path string) (Source, error) {
		src, err := Open(ctx, path, cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// Open probes path and starts ffmpeg. Every failure here wraps types.ErrVideoOpen.
func Open(ctx context.Context, path string, cfg config.VideoConfig) (*FFmpegSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrVideoOpen, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", types.ErrVideoOpen, path)
	}

	meta, err := Probe(ctx, cfg.FFprobe, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrVideoOpen, path, err)
	}

	mode := cfg.PixelMode
	if mode == "" {
		mode = ModeMJPEG
	}
	if mode == ModeBGR24 && (meta.Width <= 0 || meta.Height <= 0) {
		return nil, fmt.Errorf("%w: %s: unknown frame size for raw mode", types.ErrVideoOpen, path)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", path}
	// Pin the output rate so frame index / fps is the frame's timestamp
	if meta.FPS > 0 {
		args = append(args, "-r", meta.Rate)
	}
	switch mode {
	case ModeMJPEG:
		args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-")
	case ModeBGR24:
		args = append(args, "-f", "rawvideo", "-pix_fmt", "bgr24", "-")
	default:
		return nil, fmt.Errorf("%w: unknown pixel mode %q", types.ErrVideoOpen, mode)
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := utils.NewSafeCommand(procCtx, cfg.FFmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", types.ErrVideoOpen, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", types.ErrVideoOpen, err)
	}

	src := newStreamSource(stdout, mode, meta.FPS, meta.Width, meta.Height)
	src.cmd = cmd
	src.cancel = cancel
	return src, nil
}

// newStreamSource wraps an already running frame stream.
func newStreamSource(r io.ReadCloser, mode string, fps float64, width, height int) *FFmpegSource {
	s := &FFmpegSource{
		stdout: r,
		mode:   mode,
		fps:    fps,
		width:  width,
		height: height,
		index:  -1,
	}
	switch mode {
	case ModeBGR24:
		s.reader = bufio.NewReaderSize(r, megabyte)
		s.frame = make([]byte, width*height*3)
	default:
		s.scanner = bufio.NewScanner(r)
		s.scanner.Buffer(make([]byte, megabyte), 64*megabyte)
		s.scanner.Split(utils.SplitJpeg)
	}
	return s
}

func (s *FFmpegSource) FrameRate() float64 { return s.fps }

func (s *FFmpegSource) Grab() error {
	if s.eof {
		return io.EOF
	}

	if s.scanner != nil {
		if !s.scanner.Scan() {
			s.eof = true
			if err := s.scanner.Err(); err != nil {
				return fmt.Errorf("frame stream: %w", err)
			}
			return io.EOF
		}
		s.frame = append(s.frame[:0], s.scanner.Bytes()...)
	} else {
		if _, err := io.ReadFull(s.reader, s.frame); err != nil {
			s.eof = true
			// A short trailing frame is treated as end of stream
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return fmt.Errorf("frame stream: %w", err)
		}
	}

	s.index++
	return nil
}

// Retrieve returns a copy of the grabbed frame, safe to hand to another goroutine.
func (s *FFmpegSource) Retrieve() (image.Image, error) {
	if s.index < 0 {
		return nil, fmt.Errorf("%w: no frame grabbed", types.ErrFrameDecode)
	}

	if s.mode == ModeBGR24 {
		pix := make([]byte, len(s.frame))
		copy(pix, s.frame)
		return &imaging.BGR{Pix: pix, Stride: s.width * 3, Rect: image.Rect(0, 0, s.width, s.height)}, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(s.frame))
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %v", types.ErrFrameDecode, s.index, err)
	}
	return img, nil
}

func (s *FFmpegSource) Position() Position {
	pos := Position{Frame: s.index}
	if s.fps > 0 && s.index > 0 {
		pos.Elapsed = time.Duration(math.Round(float64(s.index) / s.fps * float64(time.Second)))
	}
	return pos
}

// Close stops ffmpeg. A process that ran to completion reports its exit status;
// one stopped early is killed and its exit status ignored.
func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd == nil {
			s.closeErr = s.stdout.Close()
			return
		}
		if !s.eof {
			s.cancel()
			s.cmd.Wait()
			return
		}
		if err := s.cmd.Wait(); err != nil {
			s.closeErr = fmt.Errorf("ffmpeg exited: %w: %s", err, s.cmd.Stderr.String())
		}
		s.cancel()
	})
	return s.closeErr
}
