package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/andresmejia3/pupilscan/internal/store"
	"github.com/andresmejia3/pupilscan/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored test results, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) {
	results, err := DB.ListResults(ctx)
	if err != nil {
		utils.Die("Failed to list results", err, nil)
	}

	if len(results) == 0 {
		fmt.Println("No results found in database.")
		return
	}
	fmt.Println(renderResultList(results))
}

func renderResultList(results []store.Record) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.ID,
			r.PatientName,
			r.RecordedAt.Local().Format("2006-01-02 15:04"),
			formatFloat(r.Summary.Latency),
			formatFloat(r.Summary.ConstrictionAmplitude),
			formatOptional(r.Summary.PIPR),
			strconv.Itoa(r.Summary.Saccades),
		})
	}
	return renderTable([]column{
		{Title: "ID"},
		{Title: "PATIENT"},
		{Title: "RECORDED"},
		{Title: "LATENCY", Numeric: true},
		{Title: "AMPLITUDE", Numeric: true},
		{Title: "PIPR", Numeric: true},
		{Title: "SACCADES", Numeric: true},
	}, rows)
}
