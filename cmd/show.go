package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/pupilscan/internal/export"
	"github.com/andresmejia3/pupilscan/internal/store"
	"github.com/andresmejia3/pupilscan/internal/utils"
	"github.com/spf13/cobra"
)

var showCSV string

var showCmd = &cobra.Command{
	Use:   "show <result_id>",
	Short: "Show the biomarker summary of a stored result",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runShow(cmd.Context(), args[0], showCSV)
	},
}

func init() {
	showCmd.Flags().StringVar(&showCSV, "csv", "", "Re-export the stored series to this CSV path")
	rootCmd.AddCommand(showCmd)
}

func runShow(ctx context.Context, id, csvPath string) {
	rec, err := DB.GetResult(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		utils.Die(fmt.Sprintf("No result with ID %s", id), nil, nil)
	}
	if err != nil {
		utils.Die("Failed to load result", err, nil)
	}

	fmt.Printf("👤 %s  (%s)\n", rec.PatientName, rec.RecordedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("📼 Video %s, %d samples\n", shortID(rec.VideoID), len(rec.Series))
	fmt.Println(renderSummary(rec.Summary))
	for _, n := range rec.Summary.Notes {
		fmt.Printf("⚠️  %s\n", n)
	}

	if csvPath == "" {
		return
	}
	f, err := os.Create(csvPath)
	if err != nil {
		utils.Die("Failed to create CSV", err, nil)
	}
	if err := export.WriteSeriesCSV(f, rec.Series); err != nil {
		f.Close()
		utils.Die("Failed to write CSV", err, nil)
	}
	if err := f.Close(); err != nil {
		utils.Die("Failed to write CSV", err, nil)
	}
	fmt.Printf("💾 Series written to %s\n", csvPath)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
