package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrNotFound is returned when a reference id does not exist.
var ErrNotFound = errors.New("reference not found")

// DB is the subset of *pgx.Conn and *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// Store manages the PostgreSQL connection and pgvector operations.
// A Store from New is safe for concurrent use.
type Store struct {
	conn DB
}

// pool adapts *pgxpool.Pool to DB.
type pool struct {
	*pgxpool.Pool
}

func (p pool) Close(context.Context) error {
	p.Pool.Close()
	return nil
}

// New opens a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	p, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	conn := pool{p}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// NewWithDB wraps an existing connection without touching the schema.
func NewWithDB(db DB) *Store {
	return &Store{conn: db}
}

// initSchema creates the vector extension and tables if they don't exist (Auto-Migration).
// Embeddings are stored without a fixed dimension; lookups filter on vector_dims.
func initSchema(ctx context.Context, conn DB) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS reference_identities (
			id BIGSERIAL PRIMARY KEY,
			video_id TEXT NOT NULL REFERENCES video_metadata(id) ON DELETE CASCADE,
			ref_index INT NOT NULL,
			name TEXT NOT NULL,
			source_path TEXT NOT NULL,
			embedding VECTOR NOT NULL,
			UNIQUE (video_id, ref_index)
		);
		CREATE TABLE IF NOT EXISTS presence_intervals (
			id BIGSERIAL PRIMARY KEY,
			reference_id BIGINT NOT NULL REFERENCES reference_identities(id) ON DELETE CASCADE,
			start_time DOUBLE PRECISION NOT NULL,
			end_time DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS presence_intervals_reference_id_idx ON presence_intervals (reference_id);
		CREATE TABLE IF NOT EXISTS library_faces (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			source_path TEXT NOT NULL,
			embedding VECTOR NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// Reference is a stored reference identity with its video.
type Reference struct {
	ID         int64
	VideoID    string
	VideoPath  string
	Index      int
	Name       string
	SourcePath string
	Intervals  int
	Seconds    float64
	// Distance is only set by FindReferences.
	Distance float64
}

func toVector(vec []float64) pgvector.Vector {
	floats := make([]float32, len(vec))
	for i, v := range vec {
		floats[i] = float32(v)
	}
	return pgvector.NewVector(floats)
}

func fromVector(vec pgvector.Vector) []float64 {
	floats := vec.Slice()
	out := make([]float64, len(floats))
	for i, v := range floats {
		out[i] = float64(v)
	}
	return out
}

// defaultName is the reference file name without its extension.
func defaultName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SaveScan replaces everything stored for videoID with the given references and
// their intervals, in one transaction. It returns the new reference ids by index.
func (s *Store) SaveScan(ctx context.Context, videoID, path string, refs []types.ReferenceIdentity, timestamps types.TimestampMap) (map[int]int64, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("save scan: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	if err != nil {
		return nil, fmt.Errorf("save video metadata: %w", err)
	}

	// Re-scans replace the previous references; intervals go with them
	if _, err := tx.Exec(ctx, "DELETE FROM reference_identities WHERE video_id = $1", videoID); err != nil {
		return nil, fmt.Errorf("clear previous scan: %w", err)
	}

	ids := make(map[int]int64, len(refs))
	for _, ref := range refs {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO reference_identities (video_id, ref_index, name, source_path, embedding)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, videoID, ref.Index, defaultName(ref.Path), ref.Path, toVector(ref.Embedding)).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("save reference %d: %w", ref.Index, err)
		}
		ids[ref.Index] = id

		for _, iv := range timestamps[ref.Index] {
			_, err := tx.Exec(ctx, `
				INSERT INTO presence_intervals (reference_id, start_time, end_time)
				VALUES ($1, $2, $3)
			`, id, iv.Start, iv.End)
			if err != nil {
				return nil, fmt.Errorf("save interval for reference %d: %w", ref.Index, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("save scan: %w", err)
	}
	return ids, nil
}

// ListReferences returns every stored reference with its interval totals.
func (s *Store) ListReferences(ctx context.Context) ([]Reference, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT r.id, r.video_id, v.path, r.ref_index, r.name, r.source_path,
			COUNT(p.id), COALESCE(SUM(p.end_time - p.start_time), 0)
		FROM reference_identities r
		JOIN video_metadata v ON v.id = r.video_id
		LEFT JOIN presence_intervals p ON p.reference_id = r.id
		GROUP BY r.id, v.path
		ORDER BY r.video_id, r.ref_index
	`)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.ID, &r.VideoID, &r.VideoPath, &r.Index, &r.Name, &r.SourcePath, &r.Intervals, &r.Seconds); err != nil {
			return nil, fmt.Errorf("list references: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// FindReferences returns stored references whose embedding lies strictly within
// threshold of vec, nearest first. Embeddings of another dimension are ignored;
// the CASE keeps pgvector from ever comparing them, whatever order the planner picks.
func (s *Store) FindReferences(ctx context.Context, vec []float64, threshold float64, metric string, limit int) ([]Reference, error) {
	// <-> is euclidean (L2) distance, <=> cosine distance in pgvector
	op := "<->"
	switch metric {
	case "", "euclidean":
	case "cosine":
		op = "<=>"
	default:
		return nil, fmt.Errorf("unknown distance metric %q", metric)
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT r.id, r.video_id, v.path, r.ref_index, r.name, r.source_path, r.embedding ` + op + ` $1 AS distance
		FROM reference_identities r
		JOIN video_metadata v ON v.id = r.video_id
		WHERE CASE WHEN vector_dims(r.embedding) = $2 THEN r.embedding ` + op + ` $1 END < $3
		ORDER BY distance ASC
		LIMIT $4`

	rows, err := s.conn.Query(ctx, query, toVector(vec), len(vec), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("find references: %w", err)
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.ID, &r.VideoID, &r.VideoPath, &r.Index, &r.Name, &r.SourcePath, &r.Distance); err != nil {
			return nil, fmt.Errorf("find references: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// GetReferenceIntervals returns the stored intervals of one reference in time order.
func (s *Store) GetReferenceIntervals(ctx context.Context, id int64) ([]types.Interval, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT start_time, end_time FROM presence_intervals
		WHERE reference_id = $1
		ORDER BY start_time ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get intervals: %w", err)
	}
	defer rows.Close()

	intervals := []types.Interval{}
	for rows.Next() {
		var iv types.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("get intervals: %w", err)
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// RenameReference updates the display name of a stored reference.
func (s *Store) RenameReference(ctx context.Context, id int64, name string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE reference_identities SET name = $1 WHERE id = $2", name, id)
	if err != nil {
		return fmt.Errorf("rename reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// The next New recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS library_faces CASCADE;
		DROP TABLE IF EXISTS presence_intervals CASCADE;
		DROP TABLE IF EXISTS reference_identities CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
