package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rteval-parser/internal/queue"
)

func queueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and feed the submission queue",
	}
	cmd.AddCommand(
		queueStatusCmd(a),
		queueShowCmd(a),
		queueStuckCmd(a),
		queueAddCmd(a),
	)
	return cmd
}

func queueStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the number of jobs per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			counts, err := queue.Counts(cmd.Context(), pool)
			if err != nil {
				return err
			}
			printCounts(cmd.OutOrStdout(), counts)
			return nil
		},
	}
}

func printCounts(out io.Writer, counts map[queue.Status]int64) {
	statuses := make([]queue.Status, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tJOBS")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
	}
	w.Flush()
}

func queueShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show SUBMID",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			submID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid submid %q", args[0])
			}

			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			e, err := queue.Get(cmd.Context(), pool, submID)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), []queue.Entry{*e})
			return nil
		},
	}
}

func queueStuckCmd(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List jobs assigned or in progress for too long",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				olderThan = a.cfg.Worker.StuckAfter
			}

			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			entries, err := queue.Stuck(cmd.Context(), pool, olderThan)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "threshold (default QUEUE_STUCK_AFTER)")
	return cmd
}

func printEntries(out io.Writer, entries []queue.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUBMID\tSTATUS\tRECEIVED\tASSIGNED\tPARSESTART\tPARSEEND\tFILE")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.SubmID, e.Status, e.Received.Format(time.RFC3339),
			formatTime(e.Assigned), formatTime(e.ParseStart), formatTime(e.ParseEnd), e.Filename)
	}
	w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func queueAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add FILE...",
		Short: "Queue report files for parsing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			for _, file := range args {
				submID, err := queue.Enqueue(cmd.Context(), pool, file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", submID, file)
			}
			return nil
		},
	}
}
