package email

import (
	"context"

	"go.uber.org/zap"

	"github.com/aryanndesai/FreshFarmMarket/internal/core/port"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/config"
	"github.com/aryanndesai/FreshFarmMarket/internal/infra/logger"
)

// LoggingSender implements port.EmailSender by writing structured log lines
// instead of talking to an SMTP relay. Delivery payloads never include the
// recipient address unmasked.
type LoggingSender struct {
	cfg config.EmailSettings
	log *zap.Logger
}

// NewLoggingSender constructs a log-backed email sender.
func NewLoggingSender(cfg config.EmailSettings, log *zap.Logger) *LoggingSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingSender{cfg: cfg, log: log}
}

// Send logs the outbound message. Secrets (codes, reset links) are masked so
// log aggregation never becomes an authentication bypass.
func (s *LoggingSender) Send(ctx context.Context, kind, address string, payload map[string]string) error {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("to", logger.MaskEmail(address)),
		zap.String("from", s.cfg.FromAddress),
	}

	for key, value := range payload {
		switch key {
		case "code", "token", "link":
			fields = append(fields, zap.String(key, logger.MaskString(value)))
		default:
			fields = append(fields, zap.String(key, value))
		}
	}

	s.log.Info("email dispatched", fields...)
	return nil
}

var _ port.EmailSender = (*LoggingSender)(nil)
