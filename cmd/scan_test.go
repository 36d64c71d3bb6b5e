package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/config"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/scanner"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/store"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFmtTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00.000"},
		{0.52, "00:00:00.520"},
		{1.8, "00:00:01.800"},
		{65, "00:01:05.000"},
		{3661, "01:01:01.000"},
	}

	for _, tt := range tests {
		if got := fmtTime(tt.seconds); got != tt.want {
			t.Errorf("fmtTime(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestValidateScanFlags(t *testing.T) {
	// Create a temp file for valid input
	tmpFile, err := os.CreateTemp("", "video.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	tmpDir := t.TempDir()

	valid := func() scanFlags {
		return scanFlags{
			InputPath: tmpFile.Name(),
			Period:    0.5,
			Tolerance: 0.6,
			Gap:       1.0,
			Metric:    "euclidean",
			Engines:   1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(f *scanFlags)
		wantErr bool
	}{
		{"Valid options", func(f *scanFlags) {}, false},
		{"Cosine metric", func(f *scanFlags) { f.Metric = "cosine" }, false},
		{"Input file does not exist", func(f *scanFlags) { f.InputPath = "nonexistent.mp4" }, true},
		{"Input is directory", func(f *scanFlags) { f.InputPath = tmpDir }, true},
		{"Zero period", func(f *scanFlags) { f.Period = 0 }, true},
		{"Negative tolerance", func(f *scanFlags) { f.Tolerance = -0.1 }, true},
		{"Zero gap", func(f *scanFlags) { f.Gap = 0 }, true},
		{"Unknown metric", func(f *scanFlags) { f.Metric = "manhattan" }, true},
		{"Library references", func(f *scanFlags) { f.RefIDs = []int64{1, 7} }, false},
		{"Non-positive library reference", func(f *scanFlags) { f.RefIDs = []int64{3, 0} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid()
			tt.mutate(&f)
			if err := validateScanFlags(&f); (err != nil) != tt.wantErr {
				t.Errorf("validateScanFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("Engines clamp to one", func(t *testing.T) {
		f := valid()
		f.Engines = 0
		require.NoError(t, validateScanFlags(&f))
		assert.Equal(t, 1, f.Engines)
	})
}

func TestScanOptionsOnlyAppliesChangedFlags(t *testing.T) {
	old := cfg
	defer func() { cfg = old }()
	cfg = config.Default()
	cfg.Scan.Tolerance = 0.45
	cfg.Scan.Engines = 3

	var f scanFlags
	c := &cobra.Command{Use: "scan"}
	addScanFlags(c, &f)
	require.NoError(t, c.Flags().Set("period", "0.25"))
	require.NoError(t, c.Flags().Set("metric", "cosine"))

	opts := scanOptions(c, f)
	assert.Equal(t, 0.25, opts.Period)
	assert.Equal(t, "cosine", opts.Metric)
	assert.Equal(t, 0.45, opts.Tolerance, "config value kept when flag unset")
	assert.Equal(t, 3, opts.Engines)
	assert.Equal(t, 1.0, opts.Gap)
}

func sampleResult() *scanner.Result {
	return &scanner.Result{
		VideoPath: "/videos/interview.mp4",
		FPS:       25,
		Stride:    13,
		References: []types.ReferenceIdentity{
			{Index: 0, Path: "alice.jpg", Embedding: []float64{0.1}},
			{Index: 1, Path: "bob.jpg", Embedding: []float64{0.2}},
		},
		SkippedReferences: []scanner.SkippedReference{{Path: "group.jpg", Reason: "no face found"}},
		Timestamps: types.TimestampMap{
			0: {{Start: 1.0, End: 1.8}, {Start: 65, End: 70.5}},
			1: {},
		},
		Stats: scanner.Stats{FramesRead: 100, FramesSampled: 8, Faces: 5, Elapsed: 1500 * time.Millisecond},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, sampleResult())
	out := buf.String()

	assert.Contains(t, out, "Reference 0 (alice.jpg)")
	assert.Contains(t, out, "00:00:01.000 -> 00:00:01.800")
	assert.Contains(t, out, "00:01:05.000 -> 00:01:10.500")
	assert.Contains(t, out, "Reference 1 (bob.jpg)")
	assert.Contains(t, out, "never on screen")
	assert.Contains(t, out, "Skipped group.jpg: no face found")
	assert.Contains(t, out, "8 of 100")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Reference 0")), bytes.Index(buf.Bytes(), []byte("Reference 1")))
}

func TestPrintSummaryLibraryReference(t *testing.T) {
	res := sampleResult()
	res.References = append(res.References, types.ReferenceIdentity{Index: 2, Path: "Carol", LibraryID: 9})
	res.Timestamps[2] = []types.Interval{{Start: 3, End: 4}}

	var buf bytes.Buffer
	printSummary(&buf, res)
	assert.Contains(t, buf.String(), "Reference 2 (Carol, library #9)")
}

func TestPrintLibrary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printLibrary(&buf, nil))
	assert.Contains(t, buf.String(), "library is empty")

	buf.Reset()
	require.NoError(t, printLibrary(&buf, []store.LibraryFace{
		{ID: 1, Name: "Alice", SourcePath: "alice.jpg", Embedding: make([]float64, 128)},
	}))
	out := buf.String()
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "alice.jpg")
	assert.Contains(t, out, "128")
}

func TestLibraryReferencesWithoutIDsSkipsDatabase(t *testing.T) {
	DB = nil
	known, err := libraryReferences(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, known)
	assert.Nil(t, DB, "no connection is opened")
}

func TestLibraryReferences(t *testing.T) {
	mock := useMockStore(t)
	mock.ExpectQuery(`FROM library_faces WHERE id = ANY`).
		WithArgs([]int64{4}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "source_path", "embedding", "created_at"}).
			AddRow(int64(4), "Dana", "dana.jpg", pgvector.NewVector([]float32{0.5, 0.25}), time.Now()))

	known, err := libraryReferences(context.Background(), []int64{4})
	require.NoError(t, err)
	require.Len(t, known, 1)
	assert.Equal(t, types.ReferenceIdentity{Path: "Dana", LibraryID: 4, Embedding: []float64{0.5, 0.25}}, known[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteResultJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeResultJSON(path, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got struct {
		Timestamps map[string][][2]float64 `json:"timestamps"`
		References []map[string]any        `json:"references"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, [][2]float64{{1.0, 1.8}, {65, 70.5}}, got.Timestamps["0"])
	assert.Empty(t, got.Timestamps["1"])
	require.Len(t, got.References, 2)
	assert.NotContains(t, got.References[0], "Embedding", "embeddings stay out of the report")
}

func TestLargestFace(t *testing.T) {
	faces := []types.DetectedFace{
		{Box: types.BoundingBox{Top: 0, Left: 0, Bottom: 10, Right: 10}, Embedding: []float64{1}},
		{Box: types.BoundingBox{Top: 0, Left: 0, Bottom: 30, Right: 20}, Embedding: []float64{2}},
		{Box: types.BoundingBox{Top: 5, Left: 5, Bottom: 25, Right: 35}, Embedding: []float64{3}},
	}
	assert.Equal(t, []float64{2}, largestFace(faces).Embedding)
	assert.Equal(t, []float64{1}, largestFace(faces[:1]).Embedding)
}

func TestDatabaseURLFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "")
	assert.Equal(t, "postgres://localhost:5432/spotter", databaseURLFromEnv())

	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "spotter")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "faces")
	t.Setenv("POSTGRES_PORT", "")
	assert.Equal(t, "postgres://spotter:secret@db:5432/faces", databaseURLFromEnv())

	t.Setenv("POSTGRES_PORT", "6543")
	assert.Equal(t, "postgres://spotter:secret@db:6543/faces", databaseURLFromEnv())
}

func TestConfirm(t *testing.T) {
	for input, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "yes": true} {
		assert.Equal(t, want, confirm(bufio.NewReader(strings.NewReader(input)), "Proceed?"), "input %q", input)
	}
}
