package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/wolfman30/rams-care-platform/internal/audit"
	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/internal/notify"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// BuildAuditRecorder returns the Postgres audit trail when AUDIT_ENABLED is
// set and a pool is available, and a no-op recorder otherwise.
func BuildAuditRecorder(cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) audit.Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || !cfg.AuditEnabled {
		return audit.NopRecorder{}
	}
	if pool == nil {
		logger.Warn("audit enabled but DATABASE_URL is empty; audit trail disabled")
		return audit.NopRecorder{}
	}
	return audit.NewService(stdlib.OpenDBFromPool(pool))
}

// BuildPublisher returns the SQS event publisher when EVENTS_QUEUE_URL is set.
func BuildPublisher(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) events.Publisher {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.EventsQueueURL) == "" {
		logger.Info("events queue not configured; domain events are dropped")
		return events.NopPublisher{}
	}
	return events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL)
}

// BuildEmailSender prefers SendGrid, then SES, then the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	if strings.TrimSpace(cfg.SendGridAPIKey) != "" && strings.TrimSpace(cfg.SendGridFromEmail) != "" {
		return notify.NewSendGridSender(cfg.SendGridAPIKey, notify.Sender{
			Email: cfg.SendGridFromEmail,
			Name:  cfg.SendGridFromName,
		}, logger)
	}
	if strings.TrimSpace(cfg.SESFromEmail) != "" {
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.Sender{
			Email: cfg.SESFromEmail,
			Name:  cfg.SendGridFromName,
		}, logger)
	}
	logger.Warn("no e-mail provider configured; using stub sender")
	return notify.NewStubEmailSender(logger)
}
