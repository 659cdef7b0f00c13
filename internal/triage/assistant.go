// Package triage holds the advisory AI collaborators: symptom triage for
// patients and medication suggestions for doctors. Neither writes anything.
package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/rams-care-platform/internal/directory"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/observability/metrics"
	"github.com/wolfman30/rams-care-platform/internal/prescriptions"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

var tracer = otel.Tracer("rams.internal.triage")

const (
	defaultTimeout   = 20 * time.Second
	defaultMaxTokens = 1024
	maxInputRunes    = 4000
)

var (
	ErrRecommendationUnavailable = failure.New(failure.KindUnavailable, "recommendation_unavailable",
		"AI suggestions are unavailable right now. Please try again later.")
	ErrSymptomsRequired = failure.Validation("symptoms_required",
		"Please describe your symptoms.")
	ErrDiagnosisRequired = failure.Validation("diagnosis_required",
		"Please enter a diagnosis before asking for suggestions.")
	ErrInputTooLong = failure.Validation("input_too_long",
		"Please shorten the description and try again.")
)

// Recommendation is the symptom checker's answer.
type Recommendation struct {
	Specialty string `json:"specialty"`
	Reasoning string `json:"reasoning"`
}

// SymptomChecker maps free-text symptoms to a doctor specialty.
type SymptomChecker interface {
	RecommendSpecialty(ctx context.Context, symptoms string) (Recommendation, error)
}

// PrescriptionAssistant suggests medications for a diagnosis. Suggestions
// are input for the doctor, never a prescription.
type PrescriptionAssistant interface {
	SuggestMedications(ctx context.Context, diagnosis string) ([]prescriptions.Medication, error)
}

// Options tune an Assistant. Zero values pick the defaults.
type Options struct {
	Model     string
	Timeout   time.Duration
	MaxTokens int32
	Metrics   *metrics.WorkflowMetrics
}

// Assistant implements both collaborators over one LLMClient. A nil client
// answers every request with ErrRecommendationUnavailable.
type Assistant struct {
	llm     LLMClient
	opts    Options
	logger  *logging.Logger
	metrics *metrics.WorkflowMetrics
}

var (
	_ SymptomChecker        = (*Assistant)(nil)
	_ PrescriptionAssistant = (*Assistant)(nil)
)

// NewAssistant builds the AI collaborators.
func NewAssistant(llm LLMClient, opts Options, logger *logging.Logger) *Assistant {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &Assistant{llm: llm, opts: opts, logger: logger, metrics: opts.Metrics}
}

func symptomSystemPrompt() string {
	return fmt.Sprintf(`You are an AI assistant that analyzes a patient's symptoms and suggests the most appropriate doctor specialty.
Choose exactly one specialty from this list: %s.
Be concise and specific in your recommendation and reasoning.
Respond with a JSON object with "recommendedDoctorSpecialty" and "reasoning" fields only.`,
		strings.Join(directory.Specialties, ", "))
}

const medicationSystemPrompt = `You are an AI medical assistant. You assist doctors by suggesting common, standard medications for a given diagnosis.
You are providing suggestions to a qualified medical professional who will review, approve and modify them.
Do not include warnings or disclaimers. For each medication provide a name, dosage, frequency and duration.
Respond with a JSON object of the form {"medications":[{"name":"","dosage":"","frequency":"","duration":""}]} and nothing else.`

// RecommendSpecialty asks the model for the specialty best suited to the
// described symptoms.
func (a *Assistant) RecommendSpecialty(ctx context.Context, symptoms string) (rec Recommendation, err error) {
	defer a.observe("recommend_specialty", time.Now(), &err)
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		return Recommendation{}, ErrSymptomsRequired
	}
	if len([]rune(symptoms)) > maxInputRunes {
		return Recommendation{}, ErrInputTooLong
	}

	ctx, span := tracer.Start(ctx, "triage.recommend_specialty")
	defer span.End()

	text, err := a.complete(ctx, symptomSystemPrompt(), "Symptoms: "+symptoms)
	if err != nil {
		span.RecordError(err)
		return Recommendation{}, err
	}

	var out struct {
		RecommendedDoctorSpecialty string `json:"recommendedDoctorSpecialty"`
		Specialty                  string `json:"specialty"`
		Reasoning                  string `json:"reasoning"`
	}
	if err := decodeJSONObject(text, &out); err != nil {
		a.logger.Warn("triage: unparseable specialty response", "error", err)
		return Recommendation{}, ErrRecommendationUnavailable.Wrap(err)
	}
	specialty := out.RecommendedDoctorSpecialty
	if specialty == "" {
		specialty = out.Specialty
	}
	specialty = canonicalSpecialty(specialty)
	if specialty == "" {
		return Recommendation{}, ErrRecommendationUnavailable.Wrap(errors.New("triage: empty specialty"))
	}
	span.SetAttributes(attribute.String("triage.specialty", specialty))
	return Recommendation{Specialty: specialty, Reasoning: strings.TrimSpace(out.Reasoning)}, nil
}

// SuggestMedications asks the model for a medication list. Lines missing a
// name are dropped; the rest are returned trimmed for the doctor to edit.
func (a *Assistant) SuggestMedications(ctx context.Context, diagnosis string) (meds []prescriptions.Medication, err error) {
	defer a.observe("suggest_medications", time.Now(), &err)
	diagnosis = strings.TrimSpace(diagnosis)
	if diagnosis == "" {
		return nil, ErrDiagnosisRequired
	}
	if len([]rune(diagnosis)) > maxInputRunes {
		return nil, ErrInputTooLong
	}

	ctx, span := tracer.Start(ctx, "triage.suggest_medications")
	defer span.End()

	text, err := a.complete(ctx, medicationSystemPrompt, "Diagnosis: "+diagnosis)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out struct {
		Medications []prescriptions.Medication `json:"medications"`
	}
	if err := decodeJSONObject(text, &out); err != nil {
		a.logger.Warn("triage: unparseable medication response", "error", err)
		return nil, ErrRecommendationUnavailable.Wrap(err)
	}
	meds = make([]prescriptions.Medication, 0, len(out.Medications))
	for _, m := range out.Medications {
		m = prescriptions.Medication{
			Name:      strings.TrimSpace(m.Name),
			Dosage:    strings.TrimSpace(m.Dosage),
			Frequency: strings.TrimSpace(m.Frequency),
			Duration:  strings.TrimSpace(m.Duration),
		}
		if m.Name == "" {
			continue
		}
		meds = append(meds, m)
	}
	span.SetAttributes(attribute.Int("triage.medications", len(meds)))
	return meds, nil
}

// complete runs one completion. Provider errors are not retried here.
func (a *Assistant) complete(ctx context.Context, system, prompt string) (string, error) {
	if a.llm == nil {
		return "", ErrRecommendationUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	resp, err := a.llm.Complete(ctx, LLMRequest{
		Model:       a.opts.Model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   a.opts.MaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		a.logger.Warn("triage: completion failed", "error", err)
		return "", ErrRecommendationUnavailable.Wrap(err)
	}
	model := a.opts.Model
	if model == "" {
		model = "default"
	}
	a.metrics.ObserveCompletion(model, resp.StopReason, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	a.logger.Debug("triage: completion done", "model", model, "stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return resp.Text, nil
}

func (a *Assistant) observe(op string, start time.Time, errp *error) {
	outcome := "ok"
	if errp != nil && *errp != nil {
		outcome = string(failure.KindOf(*errp))
	}
	a.metrics.ObserveOperation("triage", op, outcome, time.Since(start))
}

// decodeJSONObject tolerates markdown fences and chatter around the object.
func decodeJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("triage: no json object in response %q", truncate(text, 80))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("triage: decode response: %w", err)
	}
	return nil
}

// canonicalSpecialty snaps the model's answer onto the directory's spelling
// when it names a listed specialty; anything else is passed through trimmed.
func canonicalSpecialty(s string) string {
	s = strings.TrimSpace(s)
	for _, known := range directory.Specialties {
		if strings.EqualFold(s, known) {
			return known
		}
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
