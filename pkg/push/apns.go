package push

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"chatlink-backend/pkg/logger"

	"go.uber.org/zap"
)

// APNsProvider sends through the Apple Push Notification Service using
// token-based authentication.
type APNsProvider struct {
	client *apns2.Client
	topic  string
}

// APNsConfig holds the .p8 key credentials and the app bundle id
type APNsConfig struct {
	KeyFile    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// NewAPNsProvider creates the APNs client
func NewAPNsProvider(cfg *APNsConfig) (*APNsProvider, error) {
	if cfg.KeyFile == "" || cfg.KeyID == "" || cfg.TeamID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("APNs key file, key id, team id and topic are required")
	}

	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	logger.Info("APNs provider initialized",
		zap.String("topic", cfg.Topic),
		zap.Bool("production", cfg.Production))

	return &APNsProvider{client: client, topic: cfg.Topic}, nil
}

// Send pushes to each token individually; APNs has no multicast
func (a *APNsProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	result := &SendResult{}

	body := payload.NewPayload().
		AlertTitle(notification.Title).
		AlertBody(notification.Body)
	if notification.Sound != "" {
		body = body.Sound(notification.Sound)
	}
	for k, v := range notification.Data {
		body = body.Custom(k, v)
	}

	for _, deviceToken := range tokens {
		note := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       a.topic,
			Payload:     body,
		}
		if notification.HighPriority {
			note.Priority = apns2.PriorityHigh
		}

		resp, err := a.client.PushWithContext(ctx, note)
		if err != nil {
			result.FailureCount++
			continue
		}
		if resp.Sent() {
			result.SuccessCount++
			continue
		}
		result.FailureCount++
		if resp.Reason == apns2.ReasonUnregistered || resp.Reason == apns2.ReasonBadDeviceToken {
			result.InvalidTokens = append(result.InvalidTokens, deviceToken)
		}
	}

	if result.FailureCount > 0 {
		logger.Warn("APNs send partially failed",
			zap.Int("success", result.SuccessCount),
			zap.Int("failure", result.FailureCount))
	}
	return result, nil
}
