package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/extract"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/imaging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/utils"
	"github.com/spf13/cobra"
)

type findFlags struct {
	Tolerance float64
	Metric    string
	Limit     int
}

var findOpts findFlags

var findCmd = &cobra.Command{
	Use:   "find <image_path>",
	Short: "Search saved scans for a face",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !cmd.Flags().Changed("tolerance") {
			findOpts.Tolerance = cfg.Scan.Tolerance
		}
		if !cmd.Flags().Changed("metric") {
			findOpts.Metric = cfg.Scan.Metric
		}
		return runFind(cmd.Context(), args[0], findOpts)
	},
}

func init() {
	findCmd.Flags().Float64VarP(&findOpts.Tolerance, "tolerance", "t", 0.6, "Face matching tolerance")
	findCmd.Flags().StringVar(&findOpts.Metric, "metric", "euclidean", "Distance metric: euclidean or cosine")
	findCmd.Flags().IntVarP(&findOpts.Limit, "limit", "n", 10, "Maximum number of matches")
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, imagePath string, opts findFlags) error {
	img, err := imaging.DecodeFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	factory, err := extract.NewFactory(cfg.Extractor)
	if err != nil {
		utils.ShowError("Invalid extractor configuration", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	// We use ID 0 for this ad-hoc extractor
	ex, err := factory(ctx, 0)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer ex.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	faces, err := ex.Extract(ctx, imaging.ToRGB(imaging.Fit(img, cfg.Reference.MaxSide)))
	if err != nil {
		utils.ShowError("AI processing failed", err, nil)
		return err
	}

	if len(faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}
	if len(faces) > 1 {
		fmt.Printf("⚠️  Multiple faces detected (%d). Using the largest face.\n", len(faces))
	}
	best := largestFace(faces)

	db, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🗄️  Searching database...")
	matches, err := db.FindReferences(ctx, best.Embedding, opts.Tolerance, opts.Metric, opts.Limit)
	if err != nil {
		utils.ShowError("Database search failed", err, nil)
		return err
	}

	if len(matches) == 0 {
		fmt.Println("❌ No match found in database.")
		return nil
	}

	wOut := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(wOut, "REFERENCE\tNAME\tDISTANCE\tVIDEO\tTIME RANGE\tDURATION")
	fmt.Fprintln(wOut, "---------\t----\t--------\t-----\t----------\t--------")

	for _, m := range matches {
		intervals, err := db.GetReferenceIntervals(ctx, m.ID)
		if err != nil {
			utils.ShowError("Failed to retrieve history", err, nil)
			return err
		}
		if len(intervals) == 0 {
			fmt.Fprintf(wOut, "%d\t%s\t%.3f\t%s\t-\t-\n", m.ID, m.Name, m.Distance, filepath.Base(m.VideoPath))
			continue
		}
		for _, iv := range intervals {
			fmt.Fprintf(wOut, "%d\t%s\t%.3f\t%s\t%s - %s\t%.1fs\n",
				m.ID, m.Name, m.Distance,
				filepath.Base(m.VideoPath),
				fmtTime(iv.Start),
				fmtTime(iv.End),
				iv.Duration(),
			)
		}
	}
	wOut.Flush()

	return nil
}

// largestFace picks the face with the biggest bounding box; ties keep the first.
func largestFace(faces []types.DetectedFace) types.DetectedFace {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.Area() > best.Box.Area() {
			best = f
		}
	}
	return best
}
