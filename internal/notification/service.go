// internal/notification/service.go

package notifications

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/imadgeboyega/kiekky-matchmaking/internal/suggestion"
)

// smsKinds are the only messages worth a text
var smsKinds = map[string]bool{
	suggestion.TemplateSuggestionReceived: true,
	suggestion.TemplateContactShared:      true,
}

// Channels are the enabled delivery channels. Nil disables a channel.
type Channels struct {
	Email EmailService
	SMS   SMSService
	Push  PushService
	InApp *Hub
}

// Options tunes the dispatcher
type Options struct {
	DedupTTL   time.Duration
	BaseURL    string
	StoreInbox bool
}

// Dispatcher renders a suggestion event and fans it out to every channel.
// It satisfies suggestion.Notifier.
type Dispatcher struct {
	repo      Repository
	templates *Renderer
	channels  Channels
	dedup     Deduper
	opts      Options
}

func NewDispatcher(repo Repository, templates *Renderer, channels Channels, dedup Deduper, opts Options) *Dispatcher {
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 24 * time.Hour
	}

	return &Dispatcher{
		repo:      repo,
		templates: templates,
		channels:  channels,
		dedup:     dedup,
		opts:      opts,
	}
}

var _ suggestion.Notifier = (*Dispatcher)(nil)

// Notify delivers kind to recipientID. A repeat of the same event inside
// the dedup window is dropped. Channel failures are joined into one error
// wrapping ErrDeliveryFailed.
func (d *Dispatcher) Notify(ctx context.Context, recipientID int64, kind string, payload map[string]string) error {
	key := dedupKey(recipientID, kind, payload)

	if d.dedup != nil {
		first, err := d.dedup.Claim(ctx, key, d.opts.DedupTTL)
		if err != nil {
			log.Printf("⚠️  Notification dedup unavailable, sending anyway: %v", err)
		} else if !first {
			recordDelivery("dedup", "skipped")
			return nil
		}
	}

	err := d.deliver(ctx, recipientID, kind, payload)
	if err != nil && d.dedup != nil {
		if rerr := d.dedup.Release(ctx, key); rerr != nil {
			log.Printf("⚠️  Failed to release dedup key %s: %v", key, rerr)
		}
	}
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, recipientID int64, kind string, payload map[string]string) error {
	var errs []error

	contact, err := d.repo.Contact(ctx, recipientID)
	if err != nil {
		if !errors.Is(err, ErrContactNotFound) {
			errs = append(errs, err)
		}
		contact = &Contact{UserID: recipientID}
	}

	data := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	if contact.FirstName != "" {
		data["name"] = contact.FirstName
	}

	msg, err := d.templates.Render(kind, data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	if d.opts.StoreInbox {
		n := &Notification{UserID: recipientID, Kind: kind, Title: msg.Title, Message: msg.Body, Data: data}
		if err := d.repo.CreateNotification(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("inbox: %w", err))
			recordDelivery(string(ChannelInApp), "failed")
		}
	}

	if d.channels.InApp != nil {
		online := d.channels.InApp.SendToUser(recipientID, WSMessage{
			Type:      kind,
			Data:      mustMarshalJSON(map[string]interface{}{"title": msg.Title, "body": msg.Body, "data": data}),
			Timestamp: time.Now(),
		})
		if online {
			recordDelivery(string(ChannelInApp), "sent")
		}
	}

	if d.channels.Email != nil && contact.Email != "" {
		errs = append(errs, d.sendEmail(ctx, contact, msg, payload["suggestion_id"]))
	}

	if d.channels.SMS != nil && contact.Phone != "" && smsKinds[kind] {
		err := d.channels.SMS.SendSMS(ctx, &SMSNotification{To: contact.Phone, Message: msg.Title + ": " + msg.Body})
		errs = append(errs, track(ChannelSMS, err))
	}

	if d.channels.Push != nil && len(contact.PushTokens) > 0 {
		priority := PriorityNormal
		if smsKinds[kind] {
			priority = PriorityHigh
		}
		err := d.channels.Push.SendPush(ctx, &PushNotification{
			Tokens:      contact.PushTokens,
			Title:       msg.Title,
			Body:        msg.Body,
			Data:        data,
			Priority:    priority,
			CollapseKey: payload["suggestion_id"],
		})
		errs = append(errs, track(ChannelPush, err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, contact *Contact, msg *Rendered, suggestionID string) error {
	actionURL := ""
	if d.opts.BaseURL != "" && suggestionID != "" {
		actionURL = d.opts.BaseURL + "/api/v1/suggestions/" + suggestionID
	}

	html, err := RenderEmailHTML(msg, actionURL)
	if err != nil {
		return track(ChannelEmail, fmt.Errorf("email layout: %w", err))
	}

	err = d.channels.Email.SendEmail(ctx, &EmailNotification{
		To:      contact.Email,
		Subject: msg.Title,
		Body:    msg.Body,
		HTML:    html,
	})
	return track(ChannelEmail, err)
}

// track counts the outcome and labels the error with its channel
func track(channel DeliveryChannel, err error) error {
	if err != nil {
		recordDelivery(string(channel), "failed")
		return fmt.Errorf("%s: %w", channel, err)
	}
	recordDelivery(string(channel), "sent")
	return nil
}

// dedupKey identifies one event for one recipient
func dedupKey(recipientID int64, kind string, payload map[string]string) string {
	return kind + ":" + strconv.FormatInt(recipientID, 10) + ":" + payload["suggestion_id"] + ":" + payload["previous_status"] + ">" + payload["status"]
}

// Inbox returns a page of the user's in-app notifications
func (d *Dispatcher) Inbox(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) (*NotificationsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	list, err := d.repo.GetUserNotifications(ctx, userID, limit+1, offset, unreadOnly)
	if err != nil {
		return nil, err
	}

	hasMore := len(list) > limit
	if hasMore {
		list = list[:limit]
	}

	unread, err := d.repo.UnreadCount(ctx, userID)
	if err != nil {
		unread = 0
	}

	return &NotificationsResponse{Notifications: list, UnreadCount: unread, HasMore: hasMore}, nil
}

func (d *Dispatcher) MarkAsRead(ctx context.Context, notificationID, userID int64) error {
	return d.repo.MarkAsRead(ctx, notificationID, userID)
}

func (d *Dispatcher) RegisterPushToken(ctx context.Context, userID int64, req *RegisterPushTokenRequest) error {
	return d.repo.SavePushToken(ctx, userID, req.Platform, req.Token)
}

func (d *Dispatcher) UnregisterPushToken(ctx context.Context, userID int64, token string) error {
	return d.repo.DeactivatePushToken(ctx, userID, token)
}
