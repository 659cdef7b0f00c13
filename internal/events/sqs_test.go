package events

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisherSendsEnvelope(t *testing.T) {
	client := &mockSQS{}
	pub := newSQSPublisher(client, "https://sqs.local/rams-events")

	env, err := NewEnvelope("order:o-1", OrderPlacedV1{OrderID: "o-1", PatientID: "p-1", PharmacyID: "ph-1"})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := pub.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if aws.ToString(client.input.QueueUrl) != "https://sqs.local/rams-events" {
		t.Fatalf("unexpected queue url %q", aws.ToString(client.input.QueueUrl))
	}
	if got := aws.ToString(client.input.MessageAttributes["event_type"].StringValue); got != TypeOrderPlaced {
		t.Fatalf("unexpected event_type attribute %q", got)
	}

	parsed, err := ParseEnvelope(aws.ToString(client.input.MessageBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.EventID != env.EventID {
		t.Fatalf("event id mismatch: %s vs %s", parsed.EventID, env.EventID)
	}
	decoded, err := parsed.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.(*OrderPlacedV1).PharmacyID != "ph-1" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestSQSPublisherWrapsErrors(t *testing.T) {
	pub := newSQSPublisher(&mockSQS{err: errors.New("throttled")}, "q")
	env, _ := NewEnvelope("order:o-1", OrderPlacedV1{OrderID: "o-1"})
	if err := pub.Publish(context.Background(), env); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := ParseEnvelope("not json"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ParseEnvelope(`{"payload":{}}`); err == nil {
		t.Fatal("expected missing type error")
	}
}
