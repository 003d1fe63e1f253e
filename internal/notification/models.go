// internal/notification/models.go

package notifications

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrDeliveryFailed       = errors.New("notification delivery failed")
	ErrContactNotFound      = errors.New("contact not found")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

// DeliveryChannel represents notification delivery channels
type DeliveryChannel string

const (
	ChannelPush  DeliveryChannel = "push"
	ChannelInApp DeliveryChannel = "in_app"
	ChannelEmail DeliveryChannel = "email"
	ChannelSMS   DeliveryChannel = "sms"
)

// Priority represents notification priority levels
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Contact is how a user can be reached
type Contact struct {
	UserID     int64    `db:"id"`
	Email      string   `db:"email"`
	Phone      string   `db:"phone"`
	FirstName  string   `db:"first_name"`
	PushTokens []string `db:"-"`
}

// Rendered is a template filled in for one recipient
type Rendered struct {
	Title string
	Body  string
}

// Notification is an in-app inbox entry
type Notification struct {
	ID        int64            `json:"id" db:"id"`
	UserID    int64            `json:"user_id" db:"user_id"`
	Kind      string           `json:"kind" db:"kind"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Data      NotificationData `json:"data" db:"data"`
	IsRead    bool             `json:"is_read" db:"is_read"`
	ReadAt    *time.Time       `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// NotificationData is the payload stored with an inbox entry
type NotificationData map[string]string

// Scan implements sql.Scanner interface
func (nd *NotificationData) Scan(value interface{}) error {
	if value == nil {
		*nd = make(NotificationData)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("notification data: expected []byte")
	}

	return json.Unmarshal(bytes, nd)
}

// Value implements driver.Valuer interface
func (nd NotificationData) Value() (driver.Value, error) {
	if nd == nil {
		return "{}", nil
	}
	b, err := json.Marshal(nd)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// EmailNotification represents an email notification
type EmailNotification struct {
	To      string
	Subject string
	Body    string
	HTML    string
}

// SMSNotification represents an SMS notification
type SMSNotification struct {
	To      string
	Message string
}

// PushNotification represents a push notification
type PushNotification struct {
	Tokens      []string
	Title       string
	Body        string
	Data        map[string]string
	Priority    Priority
	CollapseKey string
}

// WSMessage is the frame pushed to connected websocket clients
type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// RegisterPushTokenRequest represents request to register a push token
type RegisterPushTokenRequest struct {
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
	Token    string `json:"token" validate:"required"`
}

// UnregisterPushTokenRequest represents request to drop a push token
type UnregisterPushTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// NotificationsResponse represents paginated notifications response
type NotificationsResponse struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int             `json:"unread_count"`
	HasMore       bool            `json:"has_more"`
}
