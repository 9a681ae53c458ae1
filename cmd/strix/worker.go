package main

import (
	"log/slog"

	"github.com/casualjim/strix/pkg/tprl"
	"github.com/casualjim/strix/tool/remote"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker that executes tool calls",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tc, err := tprl.NewClient(cfg.Temporal.Address)
		if err != nil {
			return err
		}
		defer tc.Close()

		reg, err := localTools()
		if err != nil {
			return err
		}
		queue := cfg.Temporal.TaskQueue
		if queue == "" {
			queue = remote.DefaultTaskQueue
		}
		w := worker.New(tc, queue, worker.Options{})
		remote.NewWorker(reg).Register(w)

		slog.Info("tool worker started", slog.String("task_queue", queue))
		return w.Run(worker.InterruptCh())
	},
}
