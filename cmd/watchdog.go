package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/techpack-cli/internal/process"
	"github.com/sells-group/techpack-cli/internal/watchdog"
)

var watchdogHTTPAddr string

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Restart stalled and crashed workers",
	Long:  "Polls the job store, restarts workers whose heartbeat went stale or whose failure looks transient, and gives up on a job after a bounded number of restarts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("watchdog"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		spawner, err := process.NewExecSpawner(cfg.Watchdog.LogDir)
		if err != nil {
			return err
		}
		w := watchdog.New(st, spawner, watchdog.ConfigFrom(cfg.Watchdog))

		addr := watchdogHTTPAddr
		if addr == "" {
			addr = cfg.Watchdog.HTTPAddr
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return w.Run(gctx) })
		if addr != "" {
			g.Go(func() error {
				return watchdog.Serve(gctx, addr, watchdog.NewHandler(w, cfg.Server.CORSOrigins))
			})
		}
		return g.Wait()
	},
}

func init() {
	watchdogCmd.Flags().StringVar(&watchdogHTTPAddr, "http-addr", "", "serve the status API on this address (e.g. :8080)")
	rootCmd.AddCommand(watchdogCmd)
}
