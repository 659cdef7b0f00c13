package triage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/rams-care-platform/internal/caller"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

type stubRoles map[string]identity.Role

func (s stubRoles) ResolveRole(_ context.Context, accountID string) identity.Resolution {
	return identity.Resolution{Role: s[accountID]}
}

func newTestRouter(llm LLMClient) http.Handler {
	a := NewAssistant(llm, Options{}, logging.Discard())
	h := NewHandler(a, a, stubRoles{"doctor-1": identity.RoleDoctor, "patient-1": identity.RolePatient}, logging.Discard())
	r := chi.NewRouter()
	r.Post("/triage/specialty", h.RecommendSpecialty)
	r.Post("/triage/medications", h.SuggestMedications)
	return r
}

func doRequest(h http.Handler, path, accountID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if accountID != "" {
		req = req.WithContext(caller.WithAccountID(req.Context(), accountID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRecommendSpecialty(t *testing.T) {
	h := newTestRouter(&stubLLMClient{response: LLMResponse{Text: `{"recommendedDoctorSpecialty":"Dermatology","reasoning":"Itchy rash."}`}})

	rec := doRequest(h, "/triage/specialty", "", `{"symptoms":"itchy rash on both arms"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"specialty":"Dermatology"`)

	rec = doRequest(h, "/triage/specialty", "", `{"symptoms":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerRecommendSpecialtyUnavailable(t *testing.T) {
	h := newTestRouter(nil)

	rec := doRequest(h, "/triage/specialty", "", `{"symptoms":"fever"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "AI suggestions are unavailable")
}

func TestHandlerSuggestMedicationsDoctorOnly(t *testing.T) {
	h := newTestRouter(&stubLLMClient{response: LLMResponse{Text: `{"medications":[{"name":"Ibuprofen","dosage":"400mg","frequency":"Thrice a day","duration":"3 days"}]}`}})
	body := `{"diagnosis":"Tension headache with neck stiffness"}`

	rec := doRequest(h, "/triage/medications", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, "/triage/medications", "patient-1", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(h, "/triage/medications", "doctor-1", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Ibuprofen"`)
}
