// Command notify-worker long-polls the events queue and sends e-mail
// notifications. Deployments use notify-lambda; this binary serves local
// development against LocalStack.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/rams-care-platform/cmd/mainconfig"
	"github.com/wolfman30/rams-care-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	notifyworker "github.com/wolfman30/rams-care-platform/internal/worker/notify"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

func main() {
	mainconfig.LoadEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.EventsQueueURL == "" {
		logger.Error("EVENTS_QUEUE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	svc, closeFn, err := bootstrap.BuildNotifyService(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build notify service", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	queue := notifyworker.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL)
	worker := notifyworker.New(queue, svc, logger)
	logger.Info("notify worker polling", "queue_url", cfg.EventsQueueURL)
	worker.Start(ctx)
	worker.Wait()
	logger.Info("notify worker stopped")
}
