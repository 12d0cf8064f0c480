package worker

import (
	"context"
	"fmt"

	"tenniscourts/internal/config"
	"tenniscourts/internal/google"
	"tenniscourts/internal/logging"
	"tenniscourts/internal/models"
	"tenniscourts/internal/notify"

	"github.com/rs/zerolog"
)

// EnabledTaskTypes lists the outbox task types the configuration has a destination for.
func EnabledTaskTypes(cfg *config.Config) []string {
	var types []string
	if cfg.Telegram.BotToken != "" {
		types = append(types, models.TaskTelegramNotify)
	}
	if cfg.Google.SpreadsheetID != "" {
		types = append(types, models.TaskSheetsUpsert)
	}
	return types
}

// RegisterHandlers connects to every configured destination and binds it to its task type.
// A destination that cannot be reached is skipped; its tasks stay in the store until a
// worker with a working handler picks them up.
func RegisterHandlers(ctx context.Context, w *OutboxWorker, cfg *config.Config, logger *zerolog.Logger) []string {
	var registered []string

	if cfg.Telegram.BotToken != "" {
		if err := registerTelegram(w, cfg.Telegram, logger); err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		} else {
			registered = append(registered, models.TaskTelegramNotify)
		}
	}

	if cfg.Google.SpreadsheetID != "" {
		if err := registerSheets(ctx, w, cfg.Google, logger); err != nil {
			logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		} else {
			registered = append(registered, models.TaskSheetsUpsert)
		}
	}

	return registered
}

func registerTelegram(w *OutboxWorker, cfg config.TelegramConfig, logger *zerolog.Logger) error {
	bot, err := notify.NewBotAPI(cfg)
	if err != nil {
		return err
	}
	w.Register(models.TaskTelegramNotify, notify.NewTelegramNotifier(bot, cfg.ChatID, logging.Component(logger, "telegram")))
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram connected")
	return nil
}

func registerSheets(ctx context.Context, w *OutboxWorker, cfg config.GoogleConfig, logger *zerolog.Logger) error {
	ledger, err := google.NewSheetsLedger(ctx, cfg, logging.Component(logger, "sheets"))
	if err != nil {
		return err
	}
	if err := ledger.TestConnection(ctx); err != nil {
		return err
	}
	if err := ledger.EnsureHeader(ctx); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	if err := ledger.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("sheets row cache warm-up failed")
	}
	w.Register(models.TaskSheetsUpsert, ledger)
	logger.Info().Str("spreadsheet_id", cfg.SpreadsheetID).Msg("google sheets connected")
	return nil
}
