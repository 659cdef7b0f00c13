package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/notify"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// BuildNotifyService wires the e-mail consumer shared by the notify Lambda
// and the local notify worker.
func BuildNotifyService(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*notify.Service, func(), error) {
	pool, err := BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := BuildStore(ctx, cfg, awsCfg, pool, logger)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, err
	}
	closeFn := func() {
		closeStore()
		if pool != nil {
			pool.Close()
		}
	}

	// Only profile reads are needed here; the auth provider is never called.
	roles := identity.NewDirectory(store, identity.NewMemoryAuthProvider(), logger)

	var processed notify.ProcessedTracker
	if pool != nil {
		processed = events.NewProcessedStore(pool)
	} else {
		logger.Warn("DATABASE_URL is empty; redelivered events may send duplicate e-mails")
	}
	return notify.NewService(BuildEmailSender(cfg, awsCfg, logger), roles, processed, logger), closeFn, nil
}
