package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"kakeibo/internal/cli"
	"kakeibo/internal/log"
	gsheet "kakeibo/internal/sheets/google"
	"kakeibo/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()
	logger.Info("Starting kakeibo-worker",
		"sheets_enabled", cfg.SheetsEnabled(),
		"grant_recovery", cfg.GrantRecovery)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}

	var mirror *worker.MirrorWorker
	if cfg.SheetsEnabled() {
		if app.Events == nil {
			logger.Error("The sheets mirror needs AMQP, set AMQP_URL")
			_ = app.Close()
			os.Exit(1)
		}
		sheets, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			ExpenseSheet:    cfg.GoogleExpenseSheet,
			ConfigSheet:     cfg.GoogleConfigSheet,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			_ = app.Close()
			os.Exit(1)
		}
		mirror = worker.NewMirrorWorker(sheets, sheets, app.Store, app.Metrics, logger)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if cfg.GrantRecovery {
			if err := app.Recovery.Stop(ctx); err != nil {
				logger.Error("Grant recovery shutdown error", log.FieldError, err)
			}
		}
		wg.Wait()
		if err := app.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if mirror != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := app.Events.Consume(ctx, mirror.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
		go func() {
			defer wg.Done()
			mirror.RunBudgetRefresh(ctx, cfg.SheetsBudgetRefresh)
		}()
	}

	if cfg.GrantRecovery {
		if err := app.Recovery.Start(ctx); err != nil {
			logger.Error("Failed to start grant recovery", log.FieldError, err)
		}
	} else {
		logger.Info("Grant recovery disabled - set GACHA_GRANT_RECOVERY=true to retry failed grants")
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
