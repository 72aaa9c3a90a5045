package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klimatdata/disclosure-pipeline/internal/queue"
	"github.com/klimatdata/disclosure-pipeline/internal/store"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the job queue consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		broker, client, err := initBroker()
		if err != nil {
			return err
		}
		defer broker.Close()

		pipe, err := initPipeline(client, st)
		if err != nil {
			return err
		}

		worker := queue.NewWorker(client, broker,
			queue.WithNotifier(initNotifier()),
			queue.WithFailureSink(store.NewSink(st)),
			queue.WithMaxAttempts(cfg.Queue.MaxAttempts),
			queue.WithConcurrency(cfg.Worker.Concurrency),
		)
		pipe.Register(worker)

		zap.L().Info("worker starting",
			zap.String("exchange", cfg.Queue.Exchange),
			zap.Int("concurrency", cfg.Worker.Concurrency),
		)
		return worker.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
