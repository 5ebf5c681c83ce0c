package port

import "context"

// Email kinds rendered by the sender.
const (
	EmailWelcome           = "welcome"
	EmailTwoFactorCode     = "two-factor-code"
	EmailPasswordResetLink = "password-reset-link"
)

// EmailSender delivers transactional mail. Payload carries template fields
// such as "code", "link" or "full_name" depending on kind.
type EmailSender interface {
	Send(ctx context.Context, kind, address string, payload map[string]string) error
}
