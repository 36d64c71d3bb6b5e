package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/pgvector/pgvector-go"
)

// LibraryFace is a named reference embedding kept independently of any scan.
type LibraryFace struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"`
	Embedding  []float64 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Dim is the embedding dimension.
func (f LibraryFace) Dim() int { return len(f.Embedding) }

// Reference turns the face into a scan reference. The scanner assigns the index.
func (f LibraryFace) Reference() types.ReferenceIdentity {
	return types.ReferenceIdentity{Path: f.Name, LibraryID: f.ID, Embedding: f.Embedding}
}

// AddLibraryFace stores a named embedding and returns its id.
func (s *Store) AddLibraryFace(ctx context.Context, name, sourcePath string, embedding []float64) (int64, error) {
	if len(embedding) == 0 {
		return 0, fmt.Errorf("add library face: empty embedding")
	}
	if name == "" {
		name = defaultName(sourcePath)
	}

	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO library_faces (name, source_path, embedding)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, sourcePath, toVector(embedding)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add library face: %w", err)
	}
	return id, nil
}

// GetLibraryFaces loads the faces with the given ids, in the order asked for.
// Any missing id fails the whole call with ErrNotFound.
func (s *Store) GetLibraryFaces(ctx context.Context, ids []int64) ([]LibraryFace, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, name, source_path, embedding, created_at
		FROM library_faces
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("get library faces: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]LibraryFace, len(ids))
	for rows.Next() {
		f, err := scanLibraryFace(rows)
		if err != nil {
			return nil, fmt.Errorf("get library faces: %w", err)
		}
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get library faces: %w", err)
	}

	faces := make([]LibraryFace, 0, len(ids))
	for _, id := range ids {
		f, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: library face %d", ErrNotFound, id)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// ListLibraryFaces returns every library face, oldest first.
func (s *Store) ListLibraryFaces(ctx context.Context) ([]LibraryFace, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, source_path, embedding, created_at
		FROM library_faces
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list library faces: %w", err)
	}
	defer rows.Close()

	faces := []LibraryFace{}
	for rows.Next() {
		f, err := scanLibraryFace(rows)
		if err != nil {
			return nil, fmt.Errorf("list library faces: %w", err)
		}
		faces = append(faces, f)
	}
	return faces, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLibraryFace(row rowScanner) (LibraryFace, error) {
	var (
		f   LibraryFace
		vec pgvector.Vector
	)
	if err := row.Scan(&f.ID, &f.Name, &f.SourcePath, &vec, &f.CreatedAt); err != nil {
		return LibraryFace{}, err
	}
	f.Embedding = fromVector(vec)
	return f, nil
}
