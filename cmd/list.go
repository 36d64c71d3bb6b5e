package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/utils"
	"github.com/spf13/cobra"
)

var listLibrary bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved references",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		db, err := openStore(cmd.Context())
		if err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}

		if listLibrary {
			faces, err := db.ListLibraryFaces(cmd.Context())
			if err != nil {
				utils.ShowError("Failed to list the reference library", err, nil)
				return err
			}
			return printLibrary(os.Stdout, faces)
		}

		refs, err := db.ListReferences(cmd.Context())
		if err != nil {
			utils.ShowError("Failed to list references", err, nil)
			return err
		}

		if len(refs) == 0 {
			fmt.Println("No references found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVIDEO\tINTERVALS\tON SCREEN")
		fmt.Fprintln(w, "--\t----\t-----\t---------\t---------")

		for _, r := range refs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.1fs\n", r.ID, r.Name, filepath.Base(r.VideoPath), r.Intervals, r.Seconds)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().BoolVar(&listLibrary, "library", false, "List the reference library instead of scanned references")
	rootCmd.AddCommand(listCmd)
}
