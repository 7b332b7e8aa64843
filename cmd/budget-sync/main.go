package main

import (
	"context"
	"os"

	"budget/internal/amqp"
	"budget/internal/cli"
	"budget/internal/config"
	"budget/internal/core"
	"budget/internal/expenses"
	applog "budget/internal/log"
	"budget/internal/recordstore"
	gsheet "budget/internal/sheets/google"
	"budget/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	cfg = cli.LoadAndValidateConfig(logger, (*config.Config).ValidateSync)

	if err := run(cfg, logger); err != nil {
		logger.Error("Sync worker exited with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Sync worker shutdown complete")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	logger.Info("Starting budget-sync", "sheet", cfg.GoogleSheetName, "interval", cfg.SyncInterval.String())

	records, err := cli.OpenRecordStore(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer records.Cleanup()

	mirror, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	}, logger.Slog())
	if err != nil {
		return err
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.Slog())
	if err != nil {
		return err
	}
	defer consumer.Close()

	syncWorker := worker.NewSyncWorker(snapshotOf(records.Store), mirror, logger.Slog())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return syncWorker.Run(gctx, cfg.SyncInterval) })
	g.Go(func() error {
		err := consumer.ConsumeExpenseEvents(gctx, syncWorker.HandleEvent)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	return g.Wait()
}

func snapshotOf(store recordstore.Store) worker.SnapshotFunc {
	return func(ctx context.Context) ([]core.Expense, error) {
		return expenses.Snapshot(ctx, store)
	}
}
