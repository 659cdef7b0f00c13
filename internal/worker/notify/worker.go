// Package notifyworker long-polls the events queue and feeds envelopes to
// the notification service. It is the local counterpart of the notify Lambda.
package notifyworker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 20
	defaultBatchSize    = 10
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
	deleteTimeout       = 5 * time.Second
	maxBackoff          = 5 * time.Second
)

// Handler consumes one decoded envelope.
type Handler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

type config struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// Option customizes worker behavior.
type Option func(*config)

// WithWorkerCount sets the number of concurrent pollers.
func WithWorkerCount(count int) Option {
	return func(cfg *config) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) Option {
	return func(cfg *config) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) Option {
	return func(cfg *config) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

type Worker struct {
	queue   queueClient
	handler Handler
	logger  *logging.Logger
	cfg     config
	wg      sync.WaitGroup
	sleep   func(context.Context, time.Duration) bool
}

func New(queue queueClient, handler Handler, logger *logging.Logger, opts ...Option) *Worker {
	if queue == nil {
		panic("notifyworker: queue cannot be nil")
	}
	if handler == nil {
		panic("notifyworker: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := config{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{queue: queue, handler: handler, logger: logger, cfg: cfg, sleep: sleepContext}
}

// Start launches the pollers; they stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("notify worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("notify worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive events", "error", err, "worker_id", workerID)
			if !w.sleep(ctx, backoff) {
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// sleepContext waits for d and reports false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// handleMessage deletes the message unless handling failed, in which case
// the visibility timeout returns it to the queue.
func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	env, err := events.ParseEnvelope(msg.Body)
	if err != nil {
		w.logger.Error("dropping malformed event", "message_id", msg.ID, "error", err)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	if err := w.handler.Handle(ctx, env); err != nil {
		w.logger.Warn("event handling failed; leaving for redelivery",
			"message_id", msg.ID,
			"event_id", env.EventID,
			"event_type", env.EventType,
			"error", err,
		)
		return
	}
	w.deleteMessage(ctx, msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete event", "error", err)
	}
}
