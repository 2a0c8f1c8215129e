package ports

import (
	"context"

	"github.com/google/uuid"
)

// NotificationService delivers identity notifications. Callers treat every
// method as best-effort: a returned error is logged, never propagated.
type NotificationService interface {
	SendEmailConfirmation(ctx context.Context, userID uuid.UUID, email, token string) error
	SendPasswordReset(ctx context.Context, userID uuid.UUID, email, token string) error
	SendPasswordChanged(ctx context.Context, userID uuid.UUID, email string) error
	SendWelcome(ctx context.Context, userID uuid.UUID, email string) error
}
