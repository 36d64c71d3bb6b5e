package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/extract"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/logging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/matcher"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/scanner"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/utils"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/video"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// scanFlags are the command-line overrides of a scan. Only flags the user
// actually set replace the configured values.
type scanFlags struct {
	InputPath  string
	References []string
	RefIDs     []int64
	Period     float64
	Tolerance  float64
	Gap        float64
	Metric     string
	Engines    int
	Save       bool
	OutputPath string
}

var scanOpts scanFlags

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Report when each reference face is on screen",
	Example: `  spotter scan -i interview.mp4 -r alice.jpg -r bob.png
  spotter scan -i clip.mp4 -r alice.jpg -p 0.25 -e 4 -o timestamps.json --save
  spotter scan -i clip.mp4 --ref-id 1 --ref-id 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runScan(cmd, scanOpts)
	},
}

func addScanFlags(c *cobra.Command, f *scanFlags) {
	c.Flags().StringVarP(&f.InputPath, "input", "i", "", "Path to video")
	c.Flags().StringArrayVarP(&f.References, "reference", "r", nil, "Reference face image (repeatable)")
	c.Flags().Int64SliceVar(&f.RefIDs, "ref-id", nil, "Reference library ID (repeatable or comma separated)")
	c.Flags().Float64VarP(&f.Period, "period", "p", 0.5, "Seconds between sampled frames")
	c.Flags().Float64VarP(&f.Tolerance, "tolerance", "t", matcher.DefaultTolerance, "Face matching tolerance (lower is stricter)")
	c.Flags().Float64Var(&f.Gap, "gap", 1.0, "Longest absence in seconds that still extends an interval")
	c.Flags().StringVar(&f.Metric, "metric", matcher.MetricEuclidean, "Distance metric: euclidean or cosine")
	c.Flags().IntVarP(&f.Engines, "engines", "e", 1, "Number of parallel extraction engines")
	c.Flags().BoolVar(&f.Save, "save", false, "Persist references and intervals to PostgreSQL")
	c.Flags().StringVarP(&f.OutputPath, "output", "o", "", "Write the result as JSON to this file ('-' for stdout)")
}

func init() {
	addScanFlags(scanCmd, &scanOpts)
	scanCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scanCmd)
}

// scanOptions layers the flags the user set over the configured scan options.
func scanOptions(c *cobra.Command, f scanFlags) scanner.Options {
	opts := scanner.OptionsFromConfig(cfg)
	changed := c.Flags().Changed
	if changed("period") {
		opts.Period = f.Period
	}
	if changed("tolerance") {
		opts.Tolerance = f.Tolerance
	}
	if changed("gap") {
		opts.Gap = f.Gap
	}
	if changed("metric") {
		opts.Metric = f.Metric
	}
	if changed("engines") {
		opts.Engines = f.Engines
	}
	return opts
}

// runScan runs the pipeline with a progress bar, prints the summary and
// optionally writes JSON and persists the result.
func runScan(cmd *cobra.Command, f scanFlags) error {
	if err := validateScanFlags(&f); err != nil {
		utils.ShowError("Invalid scan options", err, nil)
		return err
	}
	ctx := cmd.Context()
	opts := scanOptions(cmd, f)

	factory, err := extract.NewFactory(cfg.Extractor)
	if err != nil {
		utils.ShowError("Invalid extractor configuration", err, nil)
		return err
	}

	known, err := libraryReferences(ctx, f.RefIDs)
	if err != nil {
		utils.ShowError("Failed to load library references", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "📼 Processing %s with %d reference image(s) and %d library reference(s)\n", f.InputPath, len(f.References), len(known))
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Extraction Engine(s)...\n", max(opts.Engines, 1))

	// Fallback to a spinner if ffprobe cannot count frames
	total := utils.GetTotalFrames(ctx, cfg.Video.FFprobe, f.InputPath)
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🔍 Spotter Scanning"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	s := scanner.New(opts, video.NewOpener(cfg.Video), factory,
		scanner.WithLogger(logging.WithComponent("scanner")),
		scanner.WithProgress(func(video.Position) { bar.Add(1) }),
	)

	res, err := s.Run(ctx, scanner.Request{VideoPath: f.InputPath, ReferencePaths: f.References, Known: known})
	bar.Finish()
	if err != nil && res == nil {
		utils.ShowError("Scan failed", err, nil)
		return err
	}
	if err != nil {
		// Cancelled: report what was seen so far, then fail
		fmt.Fprintf(os.Stderr, "\n⚠️  Scan interrupted (%v). Results below are partial.\n", err)
	}

	printSummary(os.Stderr, res)

	if f.OutputPath != "" {
		if werr := writeResultJSON(f.OutputPath, res); werr != nil {
			utils.ShowError("Failed to write JSON output", werr, nil)
			return werr
		}
	}

	if f.Save && err == nil {
		if serr := saveResult(ctx, res); serr != nil {
			utils.ShowError("Failed to persist scan", serr, nil)
			return serr
		}
	}
	return err
}

// libraryReferences loads the given library faces; no ids means no database.
func libraryReferences(ctx context.Context, ids []int64) ([]types.ReferenceIdentity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	faces, err := db.GetLibraryFaces(ctx, ids)
	if err != nil {
		return nil, err
	}
	known := make([]types.ReferenceIdentity, 0, len(faces))
	for _, f := range faces {
		known = append(known, f.Reference())
	}
	return known, nil
}

func saveResult(ctx context.Context, res *scanner.Result) error {
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	videoID, err := utils.GenerateVideoID(res.VideoPath)
	if err != nil {
		return fmt.Errorf("generate video id: %w", err)
	}
	ids, err := db.SaveScan(ctx, videoID, res.VideoPath, res.References, res.Timestamps)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "💾 Saved %d reference(s) for video %s\n", len(ids), videoID[:12])
	return nil
}

func writeResultJSON(path string, res *scanner.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = fmt.Println(string(data))
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func printSummary(w io.Writer, res *scanner.Result) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 SCAN SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")

	paths := make(map[int]string, len(res.References))
	for _, ref := range res.References {
		paths[ref.Index] = ref.Path
		if ref.LibraryID != 0 {
			paths[ref.Index] = fmt.Sprintf("%s, library #%d", ref.Path, ref.LibraryID)
		}
	}

	var ids []int
	for id := range res.Timestamps {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		intervals := res.Timestamps[id]
		fmt.Fprintf(w, "\n👤 Reference %d (%s):\n", id, paths[id])
		if len(intervals) == 0 {
			fmt.Fprintf(w, "   never on screen\n")
			continue
		}
		for _, iv := range intervals {
			fmt.Fprintf(w, "   %s -> %s\n", fmtTime(iv.Start), fmtTime(iv.End))
		}
	}

	for _, sk := range res.SkippedReferences {
		fmt.Fprintf(w, "\n⚠️  Skipped %s: %s\n", sk.Path, sk.Reason)
	}

	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🎞️  Frames Sampled:          %d of %d (every %d at %.2f fps)\n", res.Stats.FramesSampled, res.Stats.FramesRead, res.Stride, res.FPS)
	fmt.Fprintf(w, "👁️  Total Face Detections:   %d\n", res.Stats.Faces)
	if n := res.Stats.FramesSkipped + res.Stats.FramesFailed; n > 0 {
		fmt.Fprintf(w, "🚧 Frames Skipped:          %d\n", n)
	}
	fmt.Fprintf(w, "⏱️  Elapsed:                 %s\n", res.Stats.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// validateScanFlags ensures all CLI arguments are valid before starting heavy processes.
func validateScanFlags(f *scanFlags) error {
	info, err := os.Stat(f.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return errors.New("input path is a directory, expected a video file")
	}
	if f.Period <= 0 {
		return fmt.Errorf("period must be > 0, got %v", f.Period)
	}
	if f.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be > 0, got %v", f.Tolerance)
	}
	if f.Gap <= 0 {
		return fmt.Errorf("gap must be > 0, got %v", f.Gap)
	}
	if _, err := matcher.ParseMetric(f.Metric); err != nil {
		return err
	}
	for _, id := range f.RefIDs {
		if id <= 0 {
			return fmt.Errorf("reference library IDs are positive, got %d", id)
		}
	}
	if f.Engines < 1 {
		f.Engines = 1
	}
	return nil
}

func fmtTime(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	sec := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, sec, ms%1000)
}
