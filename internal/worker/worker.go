package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/imaging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/utils"
)

const (
	statusOK    = 0
	statusError = 1

	// Guards against a corrupt length header allocating gigabytes.
	maxResponseBytes = 64 << 20
	maxEmbeddingDim  = 4096

	// box (4 x int32) + dim (uint32), the smallest a face record can be
	minFaceRecord = 20
)

// ErrWorkerTimeout is returned when the python side does not answer in time.
var ErrWorkerTimeout = errors.New("python worker timed out")

// Config controls how the python process is spawned.
type Config struct {
	Python      string
	Script      string
	Model       string // detector passed to the script, e.g. "hog" or "cnn"
	ReadTimeout time.Duration
}

// PythonWorker is a long-lived face_recognition process.
// Requests go over stdin, responses come back on a dedicated fd 3 pipe
// so that stray prints on stdout never corrupt the stream.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	timeout   time.Duration
	mu        sync.Mutex
	closeOnce sync.Once
}

func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	args := []string{"-u", cfg.Script, "--worker-id", strconv.Itoa(id)}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	py := utils.NewSafeCommand(ctx, python, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		timeout:  cfg.ReadTimeout,
	}, nil
}

// Communicate sends one framed request and reads one framed response.
// Protocol both ways: [uint32 BE length][payload]
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // a crashed interpreter surfaces here as EOF
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponseBytes {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends one RGB frame and decodes the detected faces.
//
// Request payload:  [width u32][height u32][width*height*3 RGB bytes]
// Response payload: [status u8] then either
//
//	status 0: [numFaces u32] { [top,right,bottom,left int32] [dim u32] [dim x float32] }
//	status 1: [msgLen u32][msg]
func (w *PythonWorker) ProcessFrame(img *imaging.RGB) ([]types.DetectedFace, error) {
	width, height := img.Width(), img.Height()
	payload := make([]byte, 8, 8+width*height*3)
	binary.BigEndian.PutUint32(payload[0:4], uint32(width))
	binary.BigEndian.PutUint32(payload[4:8], uint32(height))
	for y := 0; y < height; y++ {
		start := y * img.Stride
		payload = append(payload, img.Pix[start:start+width*3]...)
	}

	resp, err := w.Communicate(payload)
	if err != nil {
		return nil, err
	}
	return decodeFaces(resp)
}

func decodeFaces(resp []byte) ([]types.DetectedFace, error) {
	r := bytes.NewReader(resp)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response: %w", err)
	}

	if status == statusError {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		if int64(msgLen) > int64(r.Len()) {
			return nil, fmt.Errorf("malformed worker error: message of %d bytes, %d left", msgLen, r.Len())
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var numFaces uint32
	if err := binary.Read(r, binary.BigEndian, &numFaces); err != nil {
		return nil, fmt.Errorf("failed to read face count: %w", err)
	}
	if int64(numFaces) > int64(r.Len()/minFaceRecord) {
		return nil, fmt.Errorf("face count %d does not fit in %d remaining bytes", numFaces, r.Len())
	}

	faces := make([]types.DetectedFace, 0, numFaces)
	for i := uint32(0); i < numFaces; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: failed to read box: %w", i, err)
		}
		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("face %d: failed to read dim: %w", i, err)
		}
		if dim > maxEmbeddingDim {
			return nil, fmt.Errorf("face %d: embedding dim %d exceeds limit", i, dim)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.BigEndian, vec); err != nil {
			return nil, fmt.Errorf("face %d: failed to read embedding: %w", i, err)
		}

		emb := make([]float64, dim)
		for j, v := range vec {
			if math.IsNaN(float64(v)) {
				return nil, fmt.Errorf("face %d: NaN in embedding", i)
			}
			emb[j] = float64(v)
		}
		faces = append(faces, types.DetectedFace{
			Box:       types.BoundingBox{Top: int(box[0]), Right: int(box[1]), Bottom: int(box[2]), Left: int(box[3])},
			Embedding: emb,
		})
	}
	return faces, nil
}

// Extract runs ProcessFrame, giving up after the configured read timeout or
// when ctx ends. A timed-out worker is killed because its stream is no longer aligned.
func (w *PythonWorker) Extract(ctx context.Context, img *imaging.RGB) ([]types.DetectedFace, error) {
	if w.timeout <= 0 && ctx.Done() == nil {
		return w.ProcessFrame(img)
	}

	type result struct {
		faces []types.DetectedFace
		err   error
	}
	done := make(chan result, 1)
	go func() {
		faces, err := w.ProcessFrame(img)
		done <- result{faces, err}
	}()

	var timeout <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-done:
		return res.faces, res.err
	case <-timeout:
		w.kill()
		return nil, fmt.Errorf("worker %d: %w after %s", w.ID, ErrWorkerTimeout, w.timeout)
	case <-ctx.Done():
		w.kill()
		return nil, ctx.Err()
	}
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		w.Cmd.Process.Kill()
	}
}

// Close shuts the pipes and reaps the process. Safe to call twice.
func (w *PythonWorker) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.Stdin.Close()
		w.DataPipe.Close()
		if w.Cmd != nil {
			err = w.Cmd.Wait()
		}
	})
	return err
}
