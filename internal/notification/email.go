// internal/notification/email.go

package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

// EmailService delivers one email
type EmailService interface {
	SendEmail(ctx context.Context, notification *EmailNotification) error
}

// SMTPConfig holds the SMTP settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPEmailService implements email notifications using SMTP
type SMTPEmailService struct {
	from     string
	fromName string
	dialer   *gomail.Dialer
}

// NewSMTPEmailService creates a new SMTP email service
func NewSMTPEmailService(cfg SMTPConfig) (*SMTPEmailService, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" || cfg.From == "" {
		return nil, fmt.Errorf("incomplete SMTP configuration")
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}

	return &SMTPEmailService{
		from:     cfg.From,
		fromName: cfg.FromName,
		dialer:   dialer,
	}, nil
}

// SendEmail sends a single email
func (s *SMTPEmailService) SendEmail(ctx context.Context, notification *EmailNotification) error {
	m := gomail.NewMessage()

	m.SetHeader("From", m.FormatAddress(s.from, s.fromName))
	m.SetHeader("To", notification.To)
	m.SetHeader("Subject", notification.Subject)

	m.SetBody("text/plain", notification.Body)
	if notification.HTML != "" {
		m.AddAlternative("text/html", notification.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", notification.To, err)
	}

	log.Printf("📧 Sent email to %s via SMTP", notification.To)
	return nil
}

// SendGridEmailService implements email notifications using SendGrid
type SendGridEmailService struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewSendGridEmailService creates a new SendGrid email service
func NewSendGridEmailService(apiKey, from, fromName string) (*SendGridEmailService, error) {
	if apiKey == "" || from == "" {
		return nil, fmt.Errorf("incomplete SendGrid configuration")
	}

	return &SendGridEmailService{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}, nil
}

// SendEmail sends a single email via SendGrid
func (s *SendGridEmailService) SendEmail(ctx context.Context, notification *EmailNotification) error {
	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail("", notification.To)
	message := mail.NewSingleEmail(from, notification.Subject, to, notification.Body, notification.HTML)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email via SendGrid: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid returned error status: %d", response.StatusCode)
	}

	log.Printf("📧 Sent email to %s via SendGrid", notification.To)
	return nil
}

// SESConfig holds the AWS settings. Empty keys fall back to the default credential chain.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	From            string
}

// SESEmailService implements email notifications using Amazon SES
type SESEmailService struct {
	client *ses.SES
	from   string
}

// NewSESEmailService creates a new SES email service
func NewSESEmailService(cfg SESConfig) (*SESEmailService, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &SESEmailService{
		client: ses.New(sess),
		from:   cfg.From,
	}, nil
}

// SendEmail sends a single email via SES
func (s *SESEmailService) SendEmail(ctx context.Context, notification *EmailNotification) error {
	body := &ses.Body{
		Text: &ses.Content{Charset: aws.String("UTF-8"), Data: aws.String(notification.Body)},
	}
	if notification.HTML != "" {
		body.Html = &ses.Content{Charset: aws.String("UTF-8"), Data: aws.String(notification.HTML)}
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(s.from),
		Destination: &ses.Destination{ToAddresses: []*string{aws.String(notification.To)}},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String("UTF-8"), Data: aws.String(notification.Subject)},
			Body:    body,
		},
	}

	out, err := s.client.SendEmailWithContext(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}

	log.Printf("📧 Sent email to %s via SES (message %s)", notification.To, aws.StringValue(out.MessageId))
	return nil
}

// MockEmailService records emails instead of sending them
type MockEmailService struct {
	mu         sync.Mutex
	SentEmails []*EmailNotification
	Err        error
}

func NewMockEmailService() *MockEmailService {
	return &MockEmailService{SentEmails: make([]*EmailNotification, 0)}
}

func (m *MockEmailService) SendEmail(ctx context.Context, notification *EmailNotification) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.SentEmails = append(m.SentEmails, notification)
	m.mu.Unlock()
	log.Printf("Mock: Sending email to %s: %s", notification.To, notification.Subject)
	return nil
}

// Sent returns a copy of the recorded emails
func (m *MockEmailService) Sent() []*EmailNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*EmailNotification(nil), m.SentEmails...)
}

const baseEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
        .content { background: white; padding: 30px; border: 1px solid #e0e0e0; border-radius: 0 0 10px 10px; }
        .button { display: inline-block; padding: 12px 30px; background: #764ba2; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.Title}}</h1></div>
    <div class="content">
        <p>{{.Body}}</p>
        {{if .ActionURL}}<a class="button" href="{{.ActionURL}}">View suggestion</a>{{end}}
    </div>
</body>
</html>
`

var emailLayout = template.Must(template.New("email").Parse(baseEmailTemplate))

// RenderEmailHTML wraps a rendered message in the HTML layout
func RenderEmailHTML(msg *Rendered, actionURL string) (string, error) {
	var buf bytes.Buffer
	err := emailLayout.Execute(&buf, map[string]string{
		"Title":     msg.Title,
		"Body":      msg.Body,
		"ActionURL": actionURL,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
