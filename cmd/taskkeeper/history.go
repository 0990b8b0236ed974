package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/digiflow/taskkeeper/internal/config"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/spf13/cobra"
)

// errHistoryDisabled is returned by history commands when no driver is configured
var errHistoryDisabled = errors.New("task history is disabled (history.driver is none)")

func newHistoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune the records of disposed tasks",
	}
	cmd.AddCommand(newHistoryListCmd(c), newHistoryPurgeCmd(c))
	return cmd
}

func newHistoryListCmd(c *cli) *cobra.Command {
	var (
		kind  string
		state string
		limit int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List task records, most recently terminated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.RecordFilter{Kind: kind, Limit: limit}
			if state != "" {
				s, err := task.ParseState(state)
				if err != nil {
					return err
				}
				filter.State = s
			}

			history, err := openConfiguredHistory(cmd, c.cfg.History)
			if err != nil {
				return err
			}
			defer history.Close()

			records, err := history.ListRecords(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), records, asJSON)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by task kind")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (stopped|crashed|finished)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}

func newHistoryPurgeCmd(c *cli) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete task records older than the retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("older-than") {
				olderThan = c.cfg.History.Retention
			}
			if olderThan <= 0 {
				return errors.New("no retention given: set --older-than or history.retention")
			}

			history, err := openConfiguredHistory(cmd, c.cfg.History)
			if err != nil {
				return err
			}
			defer history.Close()

			n, err := history.PurgeOlderThan(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			c.logger.Info("task history purged", "deleted", n, "older_than", olderThan)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Delete records terminated before now minus this duration (default history.retention)")
	return cmd
}

func openConfiguredHistory(cmd *cobra.Command, cfg config.HistoryConfig) (store.HistoryStore, error) {
	if cfg.Driver == config.HistoryDriverNone {
		return nil, errHistoryDisabled
	}
	return openHistory(cmd.Context(), cfg)
}

func printRecords(w io.Writer, records []*store.TaskRecord, asJSON bool) error {
	if asJSON {
		b, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%s  %-8s  %-14s  %3d%%  %s  reason=%s  err=%q\n",
			r.ID, r.State, r.Kind, r.Progress, r.TerminatedAt.Format(time.RFC3339), r.Reason, r.Error); err != nil {
			return err
		}
	}
	return nil
}
