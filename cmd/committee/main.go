package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"committee/internal/amqp"
	"committee/internal/backend"
	"committee/internal/cli"
	apphttp "committee/internal/http"
	"committee/internal/ledger"
	"committee/internal/log"
	"committee/internal/matrix"
	"committee/internal/metrics"
	"committee/internal/session"
	gsheet "committee/internal/sheets/google"
	"committee/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	dirResult, err := backend.NewFactory(logger).CreateDirectory(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize member directory", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if dirResult.Cleanup != nil {
		defer dirResult.Cleanup()
	}
	dir := dirResult.Directory

	// Optional payment ledger, fed in-process when AMQP is off.
	var (
		ledgerStore *ledger.Store
		history     apphttp.PaymentHistory
	)
	if cfg.LedgerEnabled() {
		ledgerStore = cli.InitLedger(logger, cfg.LedgerDBPath)
		defer ledgerStore.Close()
		history = ledgerStore
		logger.Info("Payment ledger initialized", "path", cfg.LedgerDBPath)
	}

	var (
		notifier     matrix.Notifier
		amqpClient   *amqp.Client
		ledgerWorker *worker.LedgerWorker
	)
	switch {
	case cfg.EventsEnabled():
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		notifier = amqpClient
		logger.Info("Publishing payment events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	case ledgerStore != nil:
		var exporter worker.Exporter
		if cfg.SheetsEnabled() {
			exporter = newExporter(logger, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName,
				cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
		}
		ledgerWorker = worker.NewLedgerWorker(ledgerStore, exporter, cfg.ExportBatchSize)
		notifier = ledgerWorker
		logger.Info("Recording payment events in-process", "sheets_export", exporter != nil)
	default:
		logger.Info("Payment events disabled")
	}

	engineOpts := []matrix.Option{matrix.WithLogger(logger)}
	if notifier != nil {
		engineOpts = append(engineOpts, matrix.WithNotifier(notifier))
	}
	engine := matrix.NewEngine(dir, matrix.Config{
		MaxBatch:    cfg.ReconcileMaxBatch,
		Concurrency: cfg.ReconcileConcurrency,
	}, engineOpts...)

	sessions := session.NewStore(cfg.SessionMax, cfg.SessionTTL, session.WithSecureCookie(cfg.SessionSecureCookie))
	if err := metrics.RegisterGauge("committee_sessions_live", "Viewer sessions currently held in memory",
		func() float64 { return float64(sessions.Len()) }); err != nil {
		logger.Warn("Failed to register session gauge", log.FieldError, err)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Directory: dir,
		Engine:    engine,
		Sessions:  sessions,
		Ledger:    history,
		Logger:    logger,
	})
	srv.Handler = otelhttp.NewHandler(srv.Handler, "committee")
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		sessions.Stop()
	})
	sessions.StartCleanup(ctx, time.Minute)
	if ledgerWorker != nil {
		go ledgerWorker.Run(ctx, cfg.ExportInterval)
	}

	logger.Info("Starting committee server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"ledger", cfg.LedgerEnabled(),
		"events", cfg.EventsEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// newExporter returns nil when the spreadsheet client cannot be created;
// changes then stay pending in the ledger.
func newExporter(logger *log.Logger, spreadsheetID, sheetName, credJSON, credFile string) worker.Exporter {
	client, err := gsheet.New(context.Background(), gsheet.Options{
		SpreadsheetID:   spreadsheetID,
		SheetName:       sheetName,
		CredentialsJSON: credJSON,
		CredentialsFile: credFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		return nil
	}
	logger.Info("Google Sheets export initialized", "spreadsheet_id", spreadsheetID)
	return client
}
