package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresmejia3/pupilscan/internal/store"
	"github.com/andresmejia3/pupilscan/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <result_id> <name>",
	Short: "Assign a patient name to a stored result",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		name := strings.TrimSpace(args[1])
		if name == "" {
			utils.Die("Invalid patient name", fmt.Errorf("name must not be empty"), nil)
		}
		runLabel(cmd.Context(), args[0], name)
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id, name string) {
	err := DB.RenamePatient(ctx, id, name)
	if errors.Is(err, store.ErrNotFound) {
		utils.Die(fmt.Sprintf("No result with ID %s", id), nil, nil)
	}
	if err != nil {
		utils.Die("Failed to label result", err, nil)
	}

	fmt.Printf("✅ Result %s labeled as '%s'\n", id, name)
}
