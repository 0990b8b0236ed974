package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/digiflow/taskkeeper/internal/platform/redis"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newProgressCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "progress [task-id]",
		Short: "Show task progress as last published to the redis cache",
		Long: `Show task progress as last published to the redis cache by a running
supervisor. Without an argument every cached task is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.cfg.Redis.Enabled() {
				return errors.New("progress cache is disabled (redis.address is empty)")
			}

			cache, err := redis.New(cmd.Context(), c.cfg.Redis)
			if err != nil {
				return err
			}
			defer cache.Close()

			var snapshots []task.Snapshot
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid task id %q: %w", args[0], err)
				}
				snap, err := cache.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				snapshots = []task.Snapshot{snap}
			} else {
				snapshots, err = cache.List(cmd.Context())
				if err != nil {
					return err
				}
			}
			return printSnapshots(cmd.OutOrStdout(), snapshots, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}

func printSnapshots(w io.Writer, snapshots []task.Snapshot, asJSON bool) error {
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ID.String() < snapshots[j].ID.String()
	})
	if asJSON {
		b, err := json.MarshalIndent(snapshots, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	for _, s := range snapshots {
		if _, err := fmt.Fprintf(w, "%s  %-8s  %-14s  %3d%%  %s\n",
			s.ID, s.State, s.Kind, s.Progress, s.Detail); err != nil {
			return err
		}
	}
	return nil
}
