package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"chatlink-backend/pkg/logger"
)

// FCMProvider sends through Firebase Cloud Messaging
type FCMProvider struct {
	app *firebase.App
}

// NewFCMProvider initializes the Firebase app from a service account file
func NewFCMProvider(credentialsFile string) (*FCMProvider, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("FCM credentials file is required")
	}

	app, err := firebase.NewApp(context.Background(), nil,
		option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	logger.Info("FCM provider initialized")
	return &FCMProvider{app: app}, nil
}

// Send delivers the notification to every token in one multicast
func (f *FCMProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	if len(tokens) == 0 {
		return &SendResult{}, nil
	}

	client, err := f.app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	msg := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data:   notification.Data,
		Tokens: tokens,
	}
	if notification.HighPriority || notification.Sound != "" {
		msg.Android = &messaging.AndroidConfig{}
		if notification.HighPriority {
			msg.Android.Priority = "high"
		}
		if notification.Sound != "" {
			msg.Android.Notification = &messaging.AndroidNotification{Sound: notification.Sound}
		}
	}

	batch, err := client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("FCM send failed: %w", err)
	}

	result := &SendResult{
		SuccessCount: batch.SuccessCount,
		FailureCount: batch.FailureCount,
	}
	for i, resp := range batch.Responses {
		if resp.Error != nil && messaging.IsUnregistered(resp.Error) {
			result.InvalidTokens = append(result.InvalidTokens, tokens[i])
		}
	}

	if result.FailureCount > 0 {
		logger.Warn("FCM multicast partially failed",
			zap.Int("success", result.SuccessCount),
			zap.Int("failure", result.FailureCount))
	}
	return result, nil
}
