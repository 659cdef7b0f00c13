package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/rams-care-platform/internal/events"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

type stubHandler struct {
	fail map[string]bool
	seen []string
}

func (s *stubHandler) Handle(_ context.Context, env events.Envelope) error {
	s.seen = append(s.seen, env.Aggregate)
	if s.fail[env.Aggregate] {
		return errors.New("smtp unavailable")
	}
	return nil
}

func envelopeBody(t *testing.T, aggregate string) string {
	t.Helper()
	env, err := events.NewEnvelope(aggregate, events.OrderStatusChangedV1{
		OrderID:    aggregate,
		PharmacyID: "pharmacy-1",
		PatientID:  "patient-1",
		From:       "pending",
		To:         "fulfilled",
	}, events.WithTimestamp(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestHandleReportsOnlyFailedRecords(t *testing.T) {
	svc := &stubHandler{fail: map[string]bool{"order-2": true}}
	evt := lambdaevents.SQSEvent{Records: []lambdaevents.SQSMessage{
		{MessageId: "m1", Body: envelopeBody(t, "order-1")},
		{MessageId: "m2", Body: envelopeBody(t, "order-2")},
		{MessageId: "m3", Body: "not json"},
	}}

	resp := handle(context.Background(), svc, logging.Discard(), evt)

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m2" {
		t.Fatalf("unexpected failures: %+v", resp.BatchItemFailures)
	}
	if len(svc.seen) != 2 {
		t.Fatalf("expected two envelopes handled, got %v", svc.seen)
	}
}

func TestHandleEmptyBatch(t *testing.T) {
	resp := handle(context.Background(), &stubHandler{}, logging.Discard(), lambdaevents.SQSEvent{})
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures")
	}
}
