package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/extract"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/logging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/reference"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/store"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/utils"
	"github.com/spf13/cobra"
)

var addReferenceName string

var addReferenceCmd = &cobra.Command{
	Use:   "add-reference <image_path>",
	Short: "Store a reference face in the library for later scans",
	Example: `  spotter add-reference alice.jpg --name Alice
  spotter scan -i interview.mp4 --ref-id 1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()
		path := args[0]

		factory, err := extract.NewFactory(cfg.Extractor)
		if err != nil {
			utils.ShowError("Invalid extractor configuration", err, nil)
			return err
		}

		fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
		embedding, err := embedReference(ctx, factory, path)
		if err != nil {
			utils.ShowError("No usable face in the image", err, nil)
			return err
		}

		db, err := openStore(ctx)
		if err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		id, err := db.AddLibraryFace(ctx, addReferenceName, filepath.Base(path), embedding)
		if err != nil {
			utils.ShowError("Failed to store reference", err, nil)
			return err
		}

		fmt.Printf("✅ Reference stored with ID %d (%d dimensions)\n", id, len(embedding))
		return nil
	},
}

func init() {
	addReferenceCmd.Flags().StringVar(&addReferenceName, "name", "", "Display name (default: file name without extension)")
	rootCmd.AddCommand(addReferenceCmd)
}

// embedReference embeds the first face of one image with a short-lived extractor.
func embedReference(ctx context.Context, factory extract.Factory, path string) ([]float64, error) {
	ex, err := factory(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("start extractor: %w", err)
	}
	defer ex.Close()
	return reference.NewLoader(ex, cfg.Reference.MaxSide, logging.WithComponent("reference")).EmbedFile(ctx, path)
}

func printLibrary(w io.Writer, faces []store.LibraryFace) error {
	if len(faces) == 0 {
		fmt.Fprintln(w, "Reference library is empty.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tDIM")
	fmt.Fprintln(tw, "--\t----\t------\t---")
	for _, f := range faces {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", f.ID, f.Name, f.SourcePath, f.Dim())
	}
	return tw.Flush()
}
