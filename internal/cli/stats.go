package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// verdictOrder — порядок вывода вердиктов.
var verdictOrder = []string{"ALL_SUCCESS", "ALL_RETRYABLE", "ALL_NON_RETRYABLE", "MIXED"}

// resultOrder — порядок вывода результатов sub-tasks.
var resultOrder = []string{"SUCCESS", "FAILURE_RETRYABLE", "FAILURE_NON_RETRYABLE"}

// NewStatsCmd создаёт команду вывода статистики сервиса.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show runner state and verdict summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.Stats()
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(stats)
				return nil
			}

			if r := stats.Runner; r != nil {
				out.Heading("RUNNER")
				out.Table(
					[]string{"MAX", "AVAILABLE", "ACTIVE", "QUEUED"},
					[][]string{{strconv.Itoa(r.Max), strconv.Itoa(r.Available), strconv.FormatInt(r.Active, 10), strconv.FormatInt(r.Queued, 10)}},
				)
			}

			printSummary(out, stats.Summary)
			return nil
		},
	}
}

// printSummary выводит сводку по вердиктам и результатам.
func printSummary(out *Output, s SummaryResponse) {
	out.Heading("VERDICTS (" + strconv.Itoa(s.Events) + " events)")
	rows := make([][]string, 0, len(verdictOrder))
	for _, v := range verdictOrder {
		rows = append(rows, []string{out.Verdict(v), strconv.Itoa(s.Verdicts[v])})
	}
	out.Table([]string{"VERDICT", "COUNT"}, rows)

	out.Heading("SUB-TASKS")
	rows = make([][]string, 0, len(resultOrder))
	for _, r := range resultOrder {
		rows = append(rows, []string{r, strconv.Itoa(s.Results[r])})
	}
	out.Table([]string{"RESULT", "COUNT"}, rows)
}
