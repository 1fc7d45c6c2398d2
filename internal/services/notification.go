package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/irfndi/volume-engine/internal/telemetry"
	"github.com/irfndi/volume-engine/internal/volume"
)

// MessageSender is the part of *bot.Bot the notifier uses.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// ShortfallNotifier tells the ops chat when a plan had to be cut for lack of
// fresh captions. Without a bot token or chat id it does nothing. Repeated
// send failures trip a breaker so a Telegram outage cannot slow planning.
type ShortfallNotifier struct {
	sender  MessageSender
	chatID  int64
	breaker *CircuitBreaker
	tracer  *telemetry.BusinessTracer
	logger  *slog.Logger
}

var telegramBreakerConfig = CircuitBreakerConfig{
	FailureThreshold: 3,
	SuccessThreshold: 1,
	Timeout:          5 * time.Minute,
	MaxRequests:      1,
	ResetTimeout:     10 * time.Minute,
}

// NewShortfallNotifier builds a notifier on a Telegram bot. An empty token
// yields a disabled notifier.
func NewShortfallNotifier(token string, chatID int64, logger *slog.Logger) (*ShortfallNotifier, error) {
	if token == "" || chatID == 0 {
		return NewShortfallNotifierWithSender(nil, 0, logger), nil
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewShortfallNotifierWithSender(b, chatID, logger), nil
}

// NewShortfallNotifierWithSender builds a notifier on any MessageSender.
func NewShortfallNotifierWithSender(sender MessageSender, chatID int64, logger *slog.Logger) *ShortfallNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShortfallNotifier{
		sender:  sender,
		chatID:  chatID,
		breaker: NewCircuitBreaker("telegram", telegramBreakerConfig, logger),
		tracer:  telemetry.NewBusinessTracer(),
		logger:  logger,
	}
}

// Enabled reports whether messages will actually be sent.
func (n *ShortfallNotifier) Enabled() bool {
	return n != nil && n.sender != nil && n.chatID != 0
}

// BreakerState reports whether sends are currently being attempted.
func (n *ShortfallNotifier) BreakerState() CircuitBreakerState {
	return n.breaker.GetState()
}

// NotifyShortfall sends one message per plan that raised a caption shortfall.
func (n *ShortfallNotifier) NotifyShortfall(ctx context.Context, plan *volume.VolumePlan) error {
	if !n.Enabled() || plan == nil || !plan.HasCondition(volume.ConditionCaptionShortfall) {
		return nil
	}

	ctx, span := n.tracer.TraceNotification(ctx, "caption_shortfall", "telegram")
	defer span.End()

	err := n.breaker.Execute(ctx, func(ctx context.Context) error {
		_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    n.chatID,
			Text:      formatShortfallMessage(plan),
			ParseMode: models.ParseModeMarkdown,
		})
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	n.logger.Info("Caption shortfall notification sent",
		"creator_id", plan.CreatorID,
		"prediction_id", plan.PredictionID,
		"warnings", len(plan.CaptionWarnings))
	return nil
}

func formatShortfallMessage(plan *volume.VolumePlan) string {
	var b strings.Builder
	b.WriteString("⚠️ *Caption shortfall*\n\n")
	fmt.Fprintf(&b, "Creator: `%s`\n", bot.EscapeMarkdown(plan.CreatorID))
	fmt.Fprintf(&b, "Prediction: `%s`\n", bot.EscapeMarkdown(plan.PredictionID))
	fmt.Fprintf(&b, "Weekly sends: %s\n\n", bot.EscapeMarkdown(fmt.Sprintf("revenue %d, engagement %d, retention %d",
		plan.WeeklyTotals.Revenue, plan.WeeklyTotals.Engagement, plan.WeeklyTotals.Retention)))

	shown := plan.CaptionWarnings
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, w := range shown {
		b.WriteString(bot.EscapeMarkdown("• " + w))
		b.WriteString("\n")
	}
	if extra := len(plan.CaptionWarnings) - len(shown); extra > 0 {
		b.WriteString(bot.EscapeMarkdown(fmt.Sprintf("...and %d more", extra)))
		b.WriteString("\n")
	}
	return b.String()
}
