package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newMock(t *testing.T) (pgxmock.PgxConnIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close(context.Background()) })
	return mock, NewWithDB(mock)
}

func TestSaveScan(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()

	refs := []types.ReferenceIdentity{
		{Index: 0, Path: "/refs/alice.jpg", Embedding: []float64{0.1, 0.2}},
		{Index: 1, Path: "/refs/bob.png", Embedding: []float64{0.3, 0.4}},
	}
	ts := types.TimestampMap{
		0: {{Start: 1.0, End: 2.0}, {Start: 4.0, End: 4.0}},
		1: {},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO video_metadata`).
		WithArgs("vid_1", "/tmp/clip.mp4").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM reference_identities WHERE video_id = \$1`).
		WithArgs("vid_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery(`INSERT INTO reference_identities`).
		WithArgs("vid_1", 0, "alice", "/refs/alice.jpg", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO presence_intervals`).
		WithArgs(int64(7), 1.0, 2.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO presence_intervals`).
		WithArgs(int64(7), 4.0, 4.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`INSERT INTO reference_identities`).
		WithArgs("vid_1", 1, "bob", "/refs/bob.png", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectCommit()

	ids, err := s.SaveScan(ctx, "vid_1", "/tmp/clip.mp4", refs, ts)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{0: 7, 1: 8}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveScanRollsBackOnError(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO video_metadata`).
		WithArgs("vid_1", "/tmp/clip.mp4").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.SaveScan(context.Background(), "vid_1", "/tmp/clip.mp4", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save video metadata")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListReferences(t *testing.T) {
	mock, s := newMock(t)

	rows := pgxmock.NewRows([]string{"id", "video_id", "path", "ref_index", "name", "source_path", "count", "seconds"}).
		AddRow(int64(1), "vid_1", "/tmp/clip.mp4", 0, "alice", "/refs/alice.jpg", 2, 1.5).
		AddRow(int64(2), "vid_1", "/tmp/clip.mp4", 1, "bob", "/refs/bob.png", 0, 0.0)
	mock.ExpectQuery(`SELECT r.id, r.video_id, v.path`).WillReturnRows(rows)

	refs, err := s.ListReferences(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, Reference{ID: 1, VideoID: "vid_1", VideoPath: "/tmp/clip.mp4", Index: 0, Name: "alice", SourcePath: "/refs/alice.jpg", Intervals: 2, Seconds: 1.5}, refs[0])
	assert.Equal(t, "bob", refs[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindReferences(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		op     string
	}{
		{"euclidean", "euclidean", `<->`},
		{"default is euclidean", "", `<->`},
		{"cosine", "cosine", `<=>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, s := newMock(t)

			rows := pgxmock.NewRows([]string{"id", "video_id", "path", "ref_index", "name", "source_path", "distance"}).
				AddRow(int64(3), "vid_2", "/tmp/b.mp4", 0, "carol", "/refs/carol.jpg", 0.21)
			mock.ExpectQuery(`r\.embedding `+tt.op+` \$1 AS distance`).
				WithArgs(pgxmock.AnyArg(), 2, 0.6, 10).
				WillReturnRows(rows)

			refs, err := s.FindReferences(context.Background(), []float64{0.5, 0.5}, 0.6, tt.metric, 0)
			require.NoError(t, err)
			require.Len(t, refs, 1)
			assert.Equal(t, "carol", refs[0].Name)
			assert.InDelta(t, 0.21, refs[0].Distance, 1e-9)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFindReferencesGuardsDimensions(t *testing.T) {
	mock, s := newMock(t)
	rows := pgxmock.NewRows([]string{"id", "video_id", "path", "ref_index", "name", "source_path", "distance"})
	mock.ExpectQuery(`WHERE CASE WHEN vector_dims\(r\.embedding\) = \$2 THEN r\.embedding <=> \$1 END < \$3`).
		WithArgs(pgxmock.AnyArg(), 3, 0.4, 5).
		WillReturnRows(rows)

	refs, err := s.FindReferences(context.Background(), []float64{1, 0, 0}, 0.4, "cosine", 5)
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindReferencesUnknownMetric(t *testing.T) {
	_, s := newMock(t)
	_, err := s.FindReferences(context.Background(), []float64{1}, 0.6, "manhattan", 5)
	assert.Error(t, err)
}

func TestGetReferenceIntervals(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectQuery(`SELECT start_time, end_time FROM presence_intervals`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time"}).
			AddRow(1.0, 2.0).
			AddRow(4.0, 4.0))

	got, err := s.GetReferenceIntervals(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []types.Interval{{Start: 1, End: 2}, {Start: 4, End: 4}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameReference(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectExec(`UPDATE reference_identities SET name = \$1 WHERE id = \$2`).
		WithArgs("Alice", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE reference_identities SET name = \$1 WHERE id = \$2`).
		WithArgs("Ghost", int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.RenameReference(context.Background(), 1, "Alice"))
	assert.ErrorIs(t, s.RenameReference(context.Background(), 99, "Ghost"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReset(t *testing.T) {
	mock, s := newMock(t)
	mock.ExpectExec(`DROP TABLE IF EXISTS presence_intervals`).
		WillReturnResult(pgxmock.NewResult("DROP", 0))

	require.NoError(t, s.Reset(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultName(t *testing.T) {
	assert.Equal(t, "alice", defaultName("/refs/alice.jpg"))
	assert.Equal(t, "bob.smith", defaultName("bob.smith.png"))
	assert.Equal(t, "noext", defaultName("noext"))
}

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	// Official pgvector image so the extension is available
	pgContainer, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("spotter_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	require.NoError(t, err, "start postgres container")
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, connStr)
	require.NoError(t, err)
	defer s.Close(ctx)

	refs := []types.ReferenceIdentity{
		{Index: 0, Path: "/refs/alice.jpg", Embedding: []float64{1, 0, 0}},
		{Index: 1, Path: "/refs/bob.jpg", Embedding: []float64{0, 1, 0}},
	}
	ts := types.TimestampMap{
		0: {{Start: 1.0, End: 2.0}, {Start: 4.0, End: 5.5}},
		1: {},
	}

	ids, err := s.SaveScan(ctx, "vid_123", "/tmp/video.mp4", refs, ts)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Saving again replaces instead of duplicating
	ids, err = s.SaveScan(ctx, "vid_123", "/tmp/video.mp4", refs, ts)
	require.NoError(t, err)

	listed, err := s.ListReferences(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "alice", listed[0].Name)
	assert.Equal(t, 2, listed[0].Intervals)
	assert.InDelta(t, 2.5, listed[0].Seconds, 1e-9)
	assert.Equal(t, 0, listed[1].Intervals)

	// Exact match for alice; bob is sqrt(2) away
	found, err := s.FindReferences(ctx, []float64{1, 0, 0}, 0.6, "euclidean", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ids[0], found[0].ID)
	assert.InDelta(t, 0, found[0].Distance, 1e-6)

	// Orthogonal under cosine is distance 1
	found, err = s.FindReferences(ctx, []float64{0, 0, 1}, 0.5, "cosine", 5)
	require.NoError(t, err)
	assert.Empty(t, found)

	// Other dimensions never match
	found, err = s.FindReferences(ctx, []float64{1, 0}, 10, "euclidean", 5)
	require.NoError(t, err)
	assert.Empty(t, found)

	// A stored 2-d embedding beside the 3-d ones must not trip pgvector's dimension check
	_, err = s.SaveScan(ctx, "vid_456", "/tmp/other.mp4",
		[]types.ReferenceIdentity{{Index: 0, Path: "/refs/flat.jpg", Embedding: []float64{1, 0}}},
		types.TimestampMap{0: {}})
	require.NoError(t, err)
	for _, metric := range []string{"euclidean", "cosine"} {
		found, err = s.FindReferences(ctx, []float64{1, 0, 0}, 10, metric, 5)
		require.NoError(t, err, metric)
		assert.Len(t, found, 2, metric)
	}

	// Reference library
	aliceID, err := s.AddLibraryFace(ctx, "Alice", "alice.jpg", []float64{0.5, 0.25})
	require.NoError(t, err)
	bobID, err := s.AddLibraryFace(ctx, "", "/refs/bob.png", []float64{0.25, 0.5})
	require.NoError(t, err)

	faces, err := s.GetLibraryFaces(ctx, []int64{bobID, aliceID})
	require.NoError(t, err)
	require.Len(t, faces, 2)
	assert.Equal(t, "bob", faces[0].Name)
	assert.Equal(t, []float64{0.5, 0.25}, faces[1].Embedding)

	_, err = s.GetLibraryFaces(ctx, []int64{aliceID, 424242})
	assert.ErrorIs(t, err, ErrNotFound)

	library, err := s.ListLibraryFaces(ctx)
	require.NoError(t, err)
	require.Len(t, library, 2)
	assert.Equal(t, aliceID, library[0].ID)

	intervals, err := s.GetReferenceIntervals(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ts[0], intervals)

	require.NoError(t, s.RenameReference(ctx, ids[1], "Bob"))
	assert.ErrorIs(t, s.RenameReference(ctx, 424242, "Nobody"), ErrNotFound)

	require.NoError(t, s.Reset(ctx))
	_, err = s.ListReferences(ctx)
	assert.Error(t, err, "tables are gone after reset")
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
