package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/process"
	"github.com/sells-group/techpack-cli/internal/workitem"
)

var (
	submitCSV   string
	submitSpawn bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a job for a style CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, err := filepath.Abs(submitCSV)
		if err != nil {
			return eris.Wrap(err, "resolve input path")
		}
		// Reject unreadable input before a job record exists.
		items, err := workitem.Read(path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		j, err := st.CreateJob(ctx, path)
		if err != nil {
			return eris.Wrap(err, "create job")
		}
		zap.L().Info("submit: job created",
			zap.String("job_id", j.ID),
			zap.String("input", path),
			zap.Int("styles", len(items.Keys)),
		)

		if submitSpawn {
			spawner, err := process.NewExecSpawner(cfg.Watchdog.LogDir)
			if err != nil {
				return err
			}
			if _, err := spawner.Start(ctx, j.ID); err != nil {
				return err
			}
		}

		fmt.Fprintln(os.Stdout, j.ID)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitCSV, "csv", "", "style CSV or XLSX file")
	_ = submitCmd.MarkFlagRequired("csv")
	submitCmd.Flags().BoolVar(&submitSpawn, "spawn", true, "start a detached worker for the new job")
	rootCmd.AddCommand(submitCmd)
}
