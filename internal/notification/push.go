// internal/notification/push.go

package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// PushService delivers one push to every token of one user
type PushService interface {
	SendPush(ctx context.Context, notification *PushNotification) error
}

// FCMPushService implements push notifications using Firebase Cloud Messaging
type FCMPushService struct {
	client *messaging.Client
}

// NewFCMPushService creates a new FCM push service from a credentials file or inline JSON
func NewFCMPushService(ctx context.Context, credentialsPath, credentialsJSON string) (*FCMPushService, error) {
	var opt option.ClientOption
	switch {
	case credentialsPath != "":
		opt = option.WithCredentialsFile(credentialsPath)
	case credentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(credentialsJSON))
	default:
		return nil, errors.New("FIREBASE_CREDENTIALS_PATH or FIREBASE_CREDENTIALS_JSON must be set")
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMPushService{client: client}, nil
}

// SendPush sends a push notification to the given devices
func (s *FCMPushService) SendPush(ctx context.Context, notification *PushNotification) error {
	if len(notification.Tokens) == 0 {
		return errors.New("no tokens provided")
	}

	data := make(map[string]string, len(notification.Data))
	for k, v := range notification.Data {
		data[k] = v
	}

	msg := &messaging.MulticastMessage{
		Tokens: notification.Tokens,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority:    string(s.mapPriority(notification.Priority)),
			CollapseKey: notification.CollapseKey,
			Notification: &messaging.AndroidNotification{
				ClickAction: "FLUTTER_NOTIFICATION_CLICK",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": s.getAPNSPriority(notification.Priority),
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: notification.Title,
						Body:  notification.Body,
					},
					Sound: "default",
				},
			},
		},
	}

	resp, err := s.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}

	if resp.FailureCount > 0 {
		for idx, r := range resp.Responses {
			if r.Error != nil {
				log.Printf("⚠️  FCM delivery to token %d failed: %v", idx, r.Error)
			}
		}
		if resp.SuccessCount == 0 {
			return fmt.Errorf("fcm: all %d deliveries failed", resp.FailureCount)
		}
	}

	log.Printf("🔔 Sent %d push notifications", resp.SuccessCount)
	return nil
}

// mapPriority maps our priority to FCM priority
func (s *FCMPushService) mapPriority(priority Priority) Priority {
	if priority == PriorityNormal {
		return PriorityNormal
	}
	return PriorityHigh
}

// getAPNSPriority gets APNS priority string
func (s *FCMPushService) getAPNSPriority(priority Priority) string {
	if priority == PriorityNormal {
		return "5"
	}
	return "10"
}

// MockPushService records pushes instead of sending them
type MockPushService struct {
	mu                sync.Mutex
	SentNotifications []*PushNotification
	Err               error
}

func NewMockPushService() *MockPushService {
	return &MockPushService{SentNotifications: make([]*PushNotification, 0)}
}

func (m *MockPushService) SendPush(ctx context.Context, notification *PushNotification) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.SentNotifications = append(m.SentNotifications, notification)
	m.mu.Unlock()
	log.Printf("Mock: Sending push notification to %d devices: %s", len(notification.Tokens), notification.Title)
	return nil
}

// Sent returns a copy of the recorded pushes
func (m *MockPushService) Sent() []*PushNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*PushNotification(nil), m.SentNotifications...)
}
