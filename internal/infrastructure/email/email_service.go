package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"

	"github.com/avatarctic/identity-kv/internal/core/ports"
	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

// EmailConfig holds email service configuration
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	CompanyName    string
	BaseURL        string
}

// sendFunc delivers a message and reports the provider status code.
type sendFunc func(message *mail.SGMailV3) (int, error)

// EmailService implements NotificationService on top of SendGrid.
type EmailService struct {
	config    *EmailConfig
	logger    *logrus.Logger
	send      sendFunc
	templates *template.Template
}

var _ ports.NotificationService = (*EmailService)(nil)

// NewEmailService creates a new email service instance
func NewEmailService(config *EmailConfig, logger *logrus.Logger) (*EmailService, error) {
	client := sendgrid.NewSendClient(config.SendGridAPIKey)
	return newEmailService(config, logger, func(message *mail.SGMailV3) (int, error) {
		response, err := client.Send(message)
		if err != nil {
			return 0, err
		}
		return response.StatusCode, nil
	})
}

func newEmailService(config *EmailConfig, logger *logrus.Logger, send sendFunc) (*EmailService, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	return &EmailService{
		config:    config,
		logger:    logger,
		send:      send,
		templates: templates,
	}, nil
}

// loadTemplates parses every template from the embedded filesystem
func loadTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// sendEmail sends an email using SendGrid
func (e *EmailService) sendEmail(to, subject, htmlContent string) error {
	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	recipient := mail.NewEmail("", to)

	message := mail.NewSingleEmail(from, subject, recipient, "", htmlContent)

	status, err := e.send(message)
	if err == nil && status >= 300 {
		err = fmt.Errorf("provider responded with status %d", status)
	}
	if err != nil {
		if e.logger != nil {
			e.logger.WithFields(logrus.Fields{
				"to":      to,
				"subject": subject,
			}).WithError(err).Error("Failed to send email")
		}
		return fmt.Errorf("failed to send email: %w", err)
	}

	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"to":          to,
			"subject":     subject,
			"status_code": status,
		}).Info("Email sent successfully")
	}

	return nil
}

// renderTemplate renders an email template with the provided data
func (e *EmailService) renderTemplate(templateName string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, templateName+".html", data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}
	return buf.String(), nil
}

// messageData feeds every template.
type messageData struct {
	CompanyName string
	Email       string
	ActionURL   string
}

func (e *EmailService) deliver(templateName, subject, to, actionURL string) error {
	htmlContent, err := e.renderTemplate(templateName, messageData{
		CompanyName: e.config.CompanyName,
		Email:       to,
		ActionURL:   actionURL,
	})
	if err != nil {
		return err
	}
	return e.sendEmail(to, fmt.Sprintf("%s - %s", subject, e.config.CompanyName), htmlContent)
}

// SendEmailConfirmation links to the confirm-email endpoint.
func (e *EmailService) SendEmailConfirmation(ctx context.Context, userID uuid.UUID, email, token string) error {
	query := url.Values{"userId": {userID.String()}, "token": {token}}
	link := fmt.Sprintf("%s/api/identity/confirm-email?%s", e.config.BaseURL, query.Encode())
	return e.deliver("confirmation", "Confirm Your Email Address", email, link)
}

// SendPasswordReset carries the reset token; the client posts it back to reset-password.
func (e *EmailService) SendPasswordReset(ctx context.Context, userID uuid.UUID, email, token string) error {
	query := url.Values{"email": {email}, "token": {token}}
	link := fmt.Sprintf("%s/reset-password?%s", e.config.BaseURL, query.Encode())
	return e.deliver("password_reset", "Reset Your Password", email, link)
}

func (e *EmailService) SendPasswordChanged(ctx context.Context, userID uuid.UUID, email string) error {
	return e.deliver("password_changed", "Your Password Was Changed", email, "")
}

func (e *EmailService) SendWelcome(ctx context.Context, userID uuid.UUID, email string) error {
	return e.deliver("welcome", "Welcome", email, e.config.BaseURL)
}

// NoopNotifier logs notifications instead of delivering them. It is used
// when no SendGrid key is configured.
type NoopNotifier struct {
	logger *logrus.Logger
}

var _ ports.NotificationService = (*NoopNotifier)(nil)

func NewNoopNotifier(logger *logrus.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

func (n *NoopNotifier) log(kind string, userID uuid.UUID) error {
	if n.logger != nil {
		n.logger.WithFields(logrus.Fields{"user_id": userID, "notification": kind}).Warn("email delivery disabled, notification dropped")
	}
	return nil
}

func (n *NoopNotifier) SendEmailConfirmation(ctx context.Context, userID uuid.UUID, email, token string) error {
	return n.log("email_confirmation", userID)
}

func (n *NoopNotifier) SendPasswordReset(ctx context.Context, userID uuid.UUID, email, token string) error {
	return n.log("password_reset", userID)
}

func (n *NoopNotifier) SendPasswordChanged(ctx context.Context, userID uuid.UUID, email string) error {
	return n.log("password_changed", userID)
}

func (n *NoopNotifier) SendWelcome(ctx context.Context, userID uuid.UUID, email string) error {
	return n.log("welcome", userID)
}
