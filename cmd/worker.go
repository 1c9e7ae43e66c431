package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/techpack-cli/internal/acquire"
	"github.com/sells-group/techpack-cli/internal/assemble"
	"github.com/sells-group/techpack-cli/internal/extract"
	"github.com/sells-group/techpack-cli/internal/heartbeat"
	"github.com/sells-group/techpack-cli/internal/job"
	"github.com/sells-group/techpack-cli/internal/store"
	anthropicpkg "github.com/sells-group/techpack-cli/pkg/anthropic"
)

var workerOffline bool

var workerCmd = &cobra.Command{
	Use:   "worker <job-id>",
	Short: "Process one tech pack job",
	Long:  "Runs a job to completion, resuming from whatever a previous worker recorded. Normally started by submit or the watchdog.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		jobID := args[0]

		mode := "worker"
		if workerOffline {
			mode = "worker-offline"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// From here on every fault ends up on the job record.
		hb := heartbeat.New(st, jobID, cfg.Heartbeat.Interval())
		guard := heartbeat.NewGuard(st, jobID, hb)
		defer guard.Recover()
		guard.WatchSignals(ctx)

		runner, err := buildRunner(ctx, st)
		if err != nil {
			guard.Fail(eris.Wrap(err, "worker startup"))
			return err
		}
		hb.OnPanic = guard.Panic
		runner.OnPanic = guard.Panic

		hb.Start(ctx)
		summary, err := runner.Run(ctx, jobID)
		hb.Stop()
		if err != nil {
			guard.Fail(err)
			return err
		}

		zap.L().Info("worker: job finished",
			zap.String("job_id", summary.JobID),
			zap.Int("successful", summary.Successful),
			zap.Int("failed", summary.Failed),
			zap.Strings("files", summary.Files),
			zap.Bool("skipped", summary.Skipped),
		)
		return nil
	},
}

func buildRunner(ctx context.Context, st store.Store) (*job.Runner, error) {
	cache, err := initArtifacts(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := assemble.LoadFields(cfg.Fields.File)
	if err != nil {
		return nil, err
	}

	var (
		engine acquire.Engine
		model  extract.Model
	)
	if workerOffline {
		engine = acquire.OfflineEngine{}
		model = extract.OfflineModel{}
	} else {
		engine, err = acquire.NewEngine(cfg.Acquisition)
		if err != nil {
			return nil, err
		}
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		model = extract.NewAnthropicModel(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	}

	return &job.Runner{
		Store:  st,
		Cache:  cache,
		Engine: engine,
		Model:  model,
		Fields: fields,
		Config: job.Config{
			Parallelism: cfg.Worker.Parallelism,
			Extraction:  extract.StageConfigFrom(cfg.Extraction),
			OutputDir:   cfg.Output.Dir,
			XLSX:        cfg.Output.XLSX,
		},
	}, nil
}

func init() {
	workerCmd.Flags().BoolVar(&workerOffline, "offline", false, "skip network acquisition and model calls")
	rootCmd.AddCommand(workerCmd)
}
