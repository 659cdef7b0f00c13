// Package ledger holds the side effects shared by every workflow ledger:
// domain events, the audit trail and operation metrics. All of them are
// best-effort and run only after the ledger write succeeded.
package ledger

import (
	"context"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/rams-care-platform/internal/audit"
	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/observability/metrics"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

// OutcomeOK labels successful operations in metrics.
const OutcomeOK = "ok"

// Hooks is embedded by value in each ledger. Zero fields are replaced by
// no-op implementations in Defaults.
type Hooks struct {
	Events  events.Publisher
	Audit   audit.Recorder
	Metrics *metrics.WorkflowMetrics
	Logger  *logging.Logger
	Now     func() time.Time
}

// Defaults fills unset collaborators.
func (h Hooks) Defaults() Hooks {
	if h.Events == nil {
		h.Events = events.NopPublisher{}
	}
	if h.Audit == nil {
		h.Audit = audit.NopRecorder{}
	}
	if h.Logger == nil {
		h.Logger = logging.Default()
	}
	if h.Now == nil {
		h.Now = time.Now
	}
	return h
}

// Publish emits evt for aggregate. Failures are logged and counted, never
// returned.
func (h Hooks) Publish(ctx context.Context, aggregate string, evt events.Event) {
	env, err := events.NewEnvelope(aggregate, evt,
		events.WithTimestamp(h.Now()),
		events.WithCorrelationID(chimw.GetReqID(ctx)))
	if err == nil {
		err = h.Events.Publish(context.WithoutCancel(ctx), env)
	}
	h.Metrics.ObservePublish(evt.EventType(), err)
	if err != nil {
		h.Logger.Warn("event publish failed", "event_type", evt.EventType(), "aggregate", aggregate, "error", err)
	}
}

// Record appends an audit event. Failures are logged, never returned.
func (h Hooks) Record(ctx context.Context, event audit.Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = h.Now().UTC()
	}
	if err := h.Audit.Record(context.WithoutCancel(ctx), event); err != nil {
		h.Logger.Warn("audit record failed", "action", event.Action, "entity_id", event.EntityID, "error", err)
	}
}

// Observe counts one operation. Use it as
// defer h.Observe("orders", "create", time.Now(), &err).
func (h Hooks) Observe(ledgerName, operation string, start time.Time, errp *error) {
	outcome := OutcomeOK
	if errp != nil && *errp != nil {
		outcome = string(failure.KindOf(*errp))
	}
	h.Metrics.ObserveOperation(ledgerName, operation, outcome, time.Since(start))
}

// StoreFailure maps a store error to a failure and logs it when it is not
// something the caller can act on.
func (h Hooks) StoreFailure(err error, msg string, args ...any) *failure.Error {
	fe := failure.From(err)
	if fe.Kind == failure.KindUnexpected || fe.Kind == failure.KindTimeout {
		h.Logger.Error(msg, append(args, "error", err)...)
	}
	return fe
}
