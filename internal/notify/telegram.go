package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tenniscourts/internal/config"
	"tenniscourts/internal/domain"
	"tenniscourts/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const timeLayout = "02.01.2006 15:04 MST"

// NewBotAPI connects to Telegram with the configured token.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// TelegramNotifier posts reservation changes to the staff chat.
type TelegramNotifier struct {
	sender domain.TelegramSender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(sender domain.TelegramSender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{sender: sender, chatID: chatID, logger: logger}
}

// Handle implements domain.TaskHandler for events.ReservationEventPayload tasks.
func (n *TelegramNotifier) Handle(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var p events.ReservationEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reservation payload: %w", err)
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatMessage(&p))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}

	n.logger.Debug().Int64("reservation_id", p.ReservationID).Str("event_type", p.EventType).Msg("telegram notification sent")
	return nil
}

// FormatMessage renders a reservation event for the staff chat.
func FormatMessage(p *events.ReservationEventPayload) string {
	var title string
	switch p.EventType {
	case events.EventReservationBooked:
		title = "🎾 *Новая бронь*"
	case events.EventReservationCancelled:
		title = "❌ *Бронь отменена*"
	case events.EventReservationRescheduled:
		title = "🔁 *Бронь перенесена*"
	default:
		title = "ℹ️ *" + escape(p.EventType) + "*"
	}

	guest := p.GuestName
	if guest == "" {
		guest = fmt.Sprintf("#%d", p.GuestID)
	}

	var b strings.Builder
	b.WriteString(title)
	fmt.Fprintf(&b, "\n\nБронь: #%d", p.ReservationID)
	if p.PreviousReservationID != 0 {
		fmt.Fprintf(&b, " (вместо #%d)", p.PreviousReservationID)
	}
	fmt.Fprintf(&b, "\nГость: %s", escape(guest))
	fmt.Fprintf(&b, "\nКорт: #%d", p.TennisCourtID)
	fmt.Fprintf(&b, "\nНачало: %s", p.StartDateTime.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "\nСтатус: %s", escape(p.Status))
	fmt.Fprintf(&b, "\nСумма: %s", p.Value)
	if p.RefundValue != "" && p.RefundValue != "0.00" {
		fmt.Fprintf(&b, "\nВозврат: %s", p.RefundValue)
	}
	return b.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
