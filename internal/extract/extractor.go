// Package extract talks to the face-embedding collaborators.
package extract

import (
	"context"
	"fmt"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/config"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/imaging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/worker"
)

// Extractor finds faces in an RGB image and returns one embedding per face.
type Extractor interface {
	Extract(ctx context.Context, img *imaging.RGB) ([]types.DetectedFace, error)
	Close() error
}

// Factory builds the extractor used by engine id.
type Factory func(ctx context.Context, id int) (Extractor, error)

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, img *imaging.RGB) ([]types.DetectedFace, error)

func (f Func) Extract(ctx context.Context, img *imaging.RGB) ([]types.DetectedFace, error) {
	return f(ctx, img)
}

func (f Func) Close() error { return nil }

const (
	KindHTTP   = "http"
	KindPython = "python"
)

// NewFactory picks the collaborator named by cfg.Kind.
func NewFactory(cfg config.ExtractorConfig) (Factory, error) {
	switch cfg.Kind {
	case "", KindHTTP:
		return func(ctx context.Context, id int) (Extractor, error) {
			return NewHTTPExtractor(cfg.URL, cfg.Timeout), nil
		}, nil
	case KindPython:
		return func(ctx context.Context, id int) (Extractor, error) {
			w, err := worker.NewPythonWorker(ctx, id, worker.Config{
				Python:      cfg.Python,
				Script:      cfg.Script,
				Model:       cfg.Model,
				ReadTimeout: cfg.Timeout,
			})
			if err != nil {
				return nil, err
			}
			return w, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown extractor kind %q", cfg.Kind)
	}
}
