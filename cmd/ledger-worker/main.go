package main

import (
	"context"
	"errors"
	"os"
	"time"

	"committee/internal/amqp"
	"committee/internal/cli"
	"committee/internal/log"
	gsheet "committee/internal/sheets/google"
	"committee/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(log.ComponentWorker)

	logger.Info("Starting ledger-worker")

	if !cfg.EventsEnabled() {
		logger.Error("AMQP_URL is required for the ledger worker")
		os.Exit(1)
	}
	if !cfg.LedgerEnabled() {
		logger.Error("LEDGER_DB_PATH is required for the ledger worker")
		os.Exit(1)
	}

	store := cli.InitLedger(logger, cfg.LedgerDBPath)
	defer store.Close()

	// Sheets export is optional; without it events are only recorded.
	var exporter worker.Exporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ledgerWorker := worker.NewLedgerWorker(store, exporter, cfg.ExportBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if exporter != nil {
		// Catch up on changes recorded while the export was unavailable.
		logger.Info("Performing startup export check...")
		if _, err := ledgerWorker.StartupExportCheck(ctx); err != nil {
			logger.Error("Failed startup export check", log.FieldError, err)
		}
		go ledgerWorker.Run(ctx, cfg.ExportInterval)
	}

	go func() {
		err := amqpClient.ConsumePaymentStatus(ctx, ledgerWorker.HandlePaymentStatus)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
