package cmd

import (
	"fmt"
	"strconv"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <reference_id> <name>",
	Short: "Assign a name to a saved reference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			utils.ShowError("Invalid reference ID", err, nil)
			return err
		}
		name := args[1]

		db, err := openStore(cmd.Context())
		if err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return err
		}
		if err := db.RenameReference(cmd.Context(), id, name); err != nil {
			utils.ShowError("Failed to label reference", err, nil)
			return err
		}

		fmt.Printf("✅ Reference %d labeled as '%s'\n", id, name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}
