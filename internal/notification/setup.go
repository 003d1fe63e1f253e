// internal/notification/setup.go
// Builds the dispatcher from configuration. Shared by the API and the operator CLI.

package notifications

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/imadgeboyega/kiekky-matchmaking/internal/config"
)

// BuildChannels creates the configured delivery channels. hub may be nil.
func BuildChannels(ctx context.Context, cfg *config.Config, hub *Hub) (Channels, error) {
	var ch Channels

	if cfg.EnableEmailNotifications {
		switch cfg.EmailProvider {
		case "smtp":
			svc, err := NewSMTPEmailService(SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPassword,
				From:     cfg.EmailFrom,
				FromName: cfg.EmailFromName,
			})
			if err != nil {
				return ch, err
			}
			ch.Email = svc
		case "sendgrid":
			svc, err := NewSendGridEmailService(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
			if err != nil {
				return ch, err
			}
			ch.Email = svc
		case "ses":
			svc, err := NewSESEmailService(SESConfig{
				Region:          cfg.AWSRegion,
				AccessKeyID:     cfg.AWSAccessKeyID,
				SecretAccessKey: cfg.AWSSecretAccessKey,
				From:            cfg.EmailFrom,
			})
			if err != nil {
				return ch, err
			}
			ch.Email = svc
		case "mock":
			ch.Email = NewMockEmailService()
		default:
			return ch, fmt.Errorf("invalid email provider: %s", cfg.EmailProvider)
		}
		log.Printf("   ✅ Email channel: %s", cfg.EmailProvider)
	}

	if cfg.EnableSMSNotifications {
		switch cfg.SMSProvider {
		case "twilio":
			svc, err := NewTwilioSMSService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
			if err != nil {
				return ch, err
			}
			ch.SMS = svc
		case "mock":
			ch.SMS = NewMockSMSService()
		default:
			return ch, fmt.Errorf("invalid SMS provider: %s", cfg.SMSProvider)
		}
		log.Printf("   ✅ SMS channel: %s", cfg.SMSProvider)
	}

	if cfg.EnablePushNotifications {
		switch cfg.PushProvider {
		case "fcm":
			svc, err := NewFCMPushService(ctx, cfg.FirebaseCredentialsPath, cfg.FirebaseCredentialsJSON)
			if err != nil {
				return ch, err
			}
			ch.Push = svc
		case "mock":
			ch.Push = NewMockPushService()
		default:
			return ch, fmt.Errorf("invalid push provider: %s", cfg.PushProvider)
		}
		log.Printf("   ✅ Push channel: %s", cfg.PushProvider)
	}

	if cfg.EnableInAppNotifications && hub != nil {
		ch.InApp = hub
		log.Println("   ✅ In-app channel: websocket")
	}

	return ch, nil
}

// NewDispatcherFromConfig wires the Postgres contact directory, the configured
// channels and dedup. Without Redis, dedup is per process.
func NewDispatcherFromConfig(ctx context.Context, cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, hub *Hub) (*Dispatcher, error) {
	channels, err := BuildChannels(ctx, cfg, hub)
	if err != nil {
		return nil, err
	}

	renderer, err := NewRenderer(nil)
	if err != nil {
		return nil, err
	}

	var dedup Deduper = NewMemoryDeduper()
	if redisClient != nil {
		dedup = NewRedisDeduper(redisClient)
	}

	return NewDispatcher(NewPostgresRepository(db), renderer, channels, dedup, Options{
		DedupTTL:   cfg.NotifyDedupTTL,
		BaseURL:    cfg.BaseURL,
		StoreInbox: cfg.EnableInAppNotifications,
	}), nil
}
