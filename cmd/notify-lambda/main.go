package main

import (
	"context"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/rams-care-platform/cmd/mainconfig"
	"github.com/wolfman30/rams-care-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/rams-care-platform/internal/config"
	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// eventHandler is the part of notify.Service the Lambda drives.
type eventHandler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

func main() {
	mainconfig.LoadEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
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

	lambda.Start(func(ctx context.Context, evt lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
		return handle(ctx, svc, logger, evt), nil
	})
}

// handle processes a batch and reports the records SQS should redeliver.
// Bodies that are not envelopes are dropped; retrying them cannot succeed.
func handle(ctx context.Context, svc eventHandler, logger *logging.Logger, evt lambdaevents.SQSEvent) lambdaevents.SQSEventResponse {
	var resp lambdaevents.SQSEventResponse
	for _, record := range evt.Records {
		env, err := events.ParseEnvelope(record.Body)
		if err != nil {
			logger.Error("dropping malformed event", "message_id", record.MessageId, "error", err)
			continue
		}
		if err := svc.Handle(ctx, env); err != nil {
			logger.Warn("event handling failed; will retry",
				"message_id", record.MessageId,
				"event_id", env.EventID,
				"event_type", env.EventType,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp
}
