package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewEventCmd создаёт группу команд для просмотра events.
func NewEventCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Inspect processed events",
	}

	cmd.AddCommand(
		newEventListCmd(clientFn, outputFn),
		newEventShowCmd(clientFn, outputFn),
		newEventEnqueueCmd(clientFn, outputFn),
	)

	return cmd
}

func newEventListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently processed events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			events, err := client.ListEvents(limit)
			if err != nil {
				return err
			}

			headers := []string{"EVENT_ID", "VERDICT", "SUBMITTED", "SUCCESS", "RETRYABLE", "NON_RETRYABLE", "FINISHED"}
			rows := make([][]string, len(events))
			for i, e := range events {
				rows[i] = []string{
					e.EventID,
					out.Verdict(e.Verdict),
					strconv.Itoa(e.Submitted),
					strconv.Itoa(e.Success),
					strconv.Itoa(e.Retryable),
					strconv.Itoa(e.NonRetryable),
					e.FinishedAt,
				}
			}

			out.Print(headers, rows, events)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newEventShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show EVENT_ID",
		Short: "Show the outcome of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			event, err := client.GetEvent(args[0])
			if IsNotFound(err) {
				return fmt.Errorf("event %s has not been reported yet", args[0])
			}
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(event)
				return nil
			}

			out.Heading("EVENT " + event.EventID)
			out.Table(
				[]string{"VERDICT", "SUBMITTED", "SUCCESS", "RETRYABLE", "NON_RETRYABLE", "TIMED_OUT", "SOURCE"},
				[][]string{{
					out.Verdict(event.Verdict),
					strconv.Itoa(event.Submitted),
					strconv.Itoa(event.Success),
					strconv.Itoa(event.Retryable),
					strconv.Itoa(event.NonRetryable),
					strconv.Itoa(event.TimedOut),
					event.Source,
				}},
			)

			if event.Cause != "" {
				out.Heading("REJECTED")
				out.Table([]string{"CAUSE"}, [][]string{{event.Cause}})
			}

			if len(event.Failures) > 0 {
				out.Heading("FAILURES")
				rows := make([][]string, len(event.Failures))
				for i, f := range event.Failures {
					rows[i] = []string{f.Result, f.AssetID, f.RuleID, f.Cause}
				}
				out.Table([]string{"RESULT", "ASSET", "RULE", "CAUSE"}, rows)
			}
			return nil
		},
	}
}

func newEventEnqueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var assets string

	cmd := &cobra.Command{
		Use:   "enqueue EVENT_ID",
		Short: "Put an event on the pending queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateEventRequest{ID: args[0]}
			for _, a := range strings.Split(assets, ",") {
				if a = strings.TrimSpace(a); a != "" {
					req.AssetIDs = append(req.AssetIDs, a)
				}
			}
			if len(req.AssetIDs) == 0 {
				return fmt.Errorf("--assets is required")
			}

			if err := client.EnqueueEvent(req); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Event %s enqueued with %d assets", req.ID, len(req.AssetIDs)))
			return nil
		},
	}

	cmd.Flags().StringVar(&assets, "assets", "", "Comma-separated asset IDs")

	return cmd
}
