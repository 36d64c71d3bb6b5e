// Package reference turns reference face images into embeddings.
package reference

import (
	"context"
	"fmt"
	"image"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/extract"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/imaging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/rs/zerolog"
)

// DefaultMaxSide matches the size reference uploads were compressed to.
const DefaultMaxSide = 480

// Loader embeds reference images with an extractor.
type Loader struct {
	ex      extract.Extractor
	maxSide int
	log     zerolog.Logger
}

func NewLoader(ex extract.Extractor, maxSide int, log zerolog.Logger) *Loader {
	return &Loader{ex: ex, maxSide: maxSide, log: log}
}

// Load returns one outcome per path, in input order. Ok values carry indices
// numbered over the successful loads only. A failing image is logged and
// skipped; only ctx cancellation aborts the whole load.
func (l *Loader) Load(ctx context.Context, paths []string) ([]types.Outcome[types.ReferenceIdentity], error) {
	outcomes := make([]types.Outcome[types.ReferenceIdentity], 0, len(paths))
	next := 0

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		emb, err := l.EmbedFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}
			l.log.Warn().Err(err).Str("path", path).Msg("skipping reference image")
			outcomes = append(outcomes, types.Skipped[types.ReferenceIdentity](err))
			continue
		}

		ref := types.ReferenceIdentity{Index: next, Path: path, Embedding: emb}
		l.log.Debug().Int("index", next).Str("path", path).Int("dim", len(emb)).Msg("reference loaded")
		outcomes = append(outcomes, types.Ok(ref))
		next++
	}
	return outcomes, nil
}

// EmbedFile returns the embedding of the first face the extractor reports.
func (l *Loader) EmbedFile(ctx context.Context, path string) ([]float64, error) {
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrReferenceLoad, path, err)
	}
	return l.EmbedImage(ctx, img, path)
}

// EmbedImage embeds an already decoded image; name is only used in errors.
func (l *Loader) EmbedImage(ctx context.Context, img image.Image, name string) ([]float64, error) {
	rgb := imaging.ToRGB(imaging.Fit(img, l.maxSide))

	faces, err := l.ex.Extract(ctx, rgb)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrReferenceLoad, name, err)
	}
	if len(faces) == 0 || len(faces[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: %s: no face found", types.ErrReferenceLoad, name)
	}
	return faces[0].Embedding, nil
}
