// Package notification fans chat events out to push providers for users with
// no live session.
package notification

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatlink-backend/internal/domain"
	"chatlink-backend/internal/store"
	pkgcontext "chatlink-backend/pkg/context"
	"chatlink-backend/pkg/logger"
	"chatlink-backend/pkg/metrics"
	"chatlink-backend/pkg/push"
)

// TokenStore resolves and prunes device tokens
type TokenStore interface {
	GetPushTokens(ctx context.Context, userID uuid.UUID) ([]*store.PushToken, error)
	DeletePushToken(ctx context.Context, tokenValue string) error
}

// Service routes notifications to the provider matching each token's platform.
// Implements the delivery coordinator's Notifier.
type Service struct {
	tokens    TokenStore
	providers map[string]push.Provider
}

// NewService creates the notification service. Providers may be empty; users
// without a matching provider simply get no push.
func NewService(tokens TokenStore, providers map[string]push.Provider) *Service {
	if providers == nil {
		providers = make(map[string]push.Provider)
	}
	return &Service{tokens: tokens, providers: providers}
}

// NotifyMessage pushes a new-message notification to the recipient's devices.
// Best-effort: failures are logged, never surfaced to the sender.
func (s *Service) NotifyMessage(ctx context.Context, recipientID uuid.UUID, senderName string, msg *domain.Message) {
	body := msg.Body
	if msg.Attachment != nil && body == "" {
		if msg.Attachment.Duration > 0 {
			body = "Voice message"
		} else {
			body = "Attachment"
		}
	}

	notification := &push.Notification{
		Title: senderName,
		Body:  body,
		Data: map[string]string{
			"type":             "message",
			"conversation_key": msg.ConversationKey(),
			"message_id":       msg.MessageID.String(),
		},
		Sound: "default",
	}

	s.send(ctx, recipientID, notification)
}

func (s *Service) send(ctx context.Context, userID uuid.UUID, notification *push.Notification) {
	tokens, err := s.tokens.GetPushTokens(ctx, userID)
	if err != nil || len(tokens) == 0 {
		return
	}

	byPlatform := make(map[string][]string)
	for _, t := range tokens {
		byPlatform[t.Platform] = append(byPlatform[t.Platform], t.Token)
	}

	for platform, deviceTokens := range byPlatform {
		provider, ok := s.providers[platform]
		if !ok {
			continue
		}

		sendCtx, cancel := pkgcontext.WithMediumTimeout(ctx)
		result, err := provider.Send(sendCtx, notification, deviceTokens)
		cancel()
		if err != nil {
			metrics.PushSentTotal.WithLabelValues(platform, "error").Inc()
			logger.Warn("Push send failed",
				zap.String("platform", platform),
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}

		metrics.PushSentTotal.WithLabelValues(platform, "ok").Add(float64(result.SuccessCount))
		if result.FailureCount > 0 {
			metrics.PushSentTotal.WithLabelValues(platform, "failed").Add(float64(result.FailureCount))
		}
		for _, invalid := range result.InvalidTokens {
			if err := s.tokens.DeletePushToken(ctx, invalid); err == nil {
				logger.Info("Pruned invalid push token",
					zap.String("platform", platform),
					zap.String("user_id", userID.String()))
			}
		}
	}
}
