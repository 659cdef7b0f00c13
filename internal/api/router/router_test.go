package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/rams-care-platform/internal/api/router"
	"github.com/wolfman30/rams-care-platform/internal/directory"
	"github.com/wolfman30/rams-care-platform/internal/docstore"
	httpmiddleware "github.com/wolfman30/rams-care-platform/internal/http/middleware"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/internal/workflow"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

type testServer struct {
	handler http.Handler
	auth    *identity.MemoryAuthProvider
	jwt     *httpmiddleware.CallerJWT
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	auth := identity.NewMemoryAuthProvider()
	engine := workflow.New(workflow.Deps{
		Store:  docstore.NewMemoryStore(),
		Auth:   auth,
		Cache:  directory.NewMemoryCache(),
		Clock:  func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) },
		Logger: logging.Discard(),
	})
	jwt := httpmiddleware.NewCallerJWT("router-test-secret", time.Hour)
	cfg := engine.RouterConfig(jwt)
	cfg.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	return &testServer{handler: router.New(cfg), auth: auth, jwt: jwt}
}

// signIn creates an auth account and returns its id and bearer token.
func (s *testServer) signIn(t *testing.T, phone string) (string, string) {
	t.Helper()
	id, err := s.auth.CreateAccount(context.Background(), phone, "", "")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	token, err := s.jwt.IssueToken(id)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return id, token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, rr.Body.String(), err)
		}
	}
	return rr.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
	return v
}

func TestRouterHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected request id header")
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/nope", "", nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if env.Success || env.Code != "route_not_found" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestRouterRequiresTokenOnSignedInRoutes(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/me", "/appointments", "/orders", "/prescriptions", "/pharmacies"} {
		code, env := s.do(t, http.MethodGet, path, "", nil)
		if code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, code)
		}
		if env.Success {
			t.Errorf("%s: expected failure envelope", path)
		}
	}
	code, _ := s.do(t, http.MethodGet, "/me", "not-a-token", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", code)
	}
}

func TestRouterPublicDirectory(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/specialties", "", nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("specialties: %d %+v", code, env)
	}
	code, env = s.do(t, http.MethodGet, "/doctors?city=Pune", "", nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("doctors: %d %+v", code, env)
	}
	code, _ = s.do(t, http.MethodGet, "/doctors/missing", "", nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown doctor, got %d", code)
	}
	code, env = s.do(t, http.MethodGet, "/ambulances/available", "", nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("ambulances: %d %+v", code, env)
	}
}

func TestRouterTriageUnavailableWithoutProvider(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPost, "/triage/specialty", "", map[string]string{"symptoms": "persistent cough and fever"})
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d (%+v)", code, env)
	}
	if env.Error == "" {
		t.Fatalf("expected a user-facing message")
	}
}

func TestRouterPrescriptionToOrderFlow(t *testing.T) {
	s := newTestServer(t)

	_, patientToken := s.signIn(t, "+919876543210")
	doctorID, doctorToken := s.signIn(t, "+919123456780")
	pharmacyID, pharmacyToken := s.signIn(t, "+919000011111")

	mustStatus := func(t *testing.T, want, got int, env envelope) {
		t.Helper()
		if got != want {
			t.Fatalf("expected %d, got %d (%+v)", want, got, env)
		}
	}

	code, env := s.do(t, http.MethodPost, "/profiles/patient", patientToken, identity.PatientInput{
		Name: "Asha Rao", Mobile: "9876543210", Email: "asha@example.com", Age: 34, Gender: "female", City: "Pune",
	})
	mustStatus(t, http.StatusCreated, code, env)
	code, env = s.do(t, http.MethodPost, "/profiles/doctor", doctorToken, identity.DoctorInput{
		Name: "Dr. Vikram Mehta", Mobile: "9123456780", Email: "vikram@example.com",
		ProfileType: identity.ProfileTypePractitioner, Specialization: "General Physician", Qualification: "MBBS",
		RegistrationNumber: "MCI-55821", ExperienceYears: 12, ConsultationFee: 500, City: "Pune",
	})
	mustStatus(t, http.StatusCreated, code, env)
	code, env = s.do(t, http.MethodPost, "/profiles/pharmacy", pharmacyToken, identity.PharmacyInput{
		PharmacyName: "Wellness Pharmacy", Mobile: "9000011111", Email: "orders@wellness.example.com",
		Address: "22 MG Road, Camp", City: "Pune", LicenseNumber: "MH-PH-90210",
	})
	mustStatus(t, http.StatusCreated, code, env)

	code, env = s.do(t, http.MethodGet, "/me", patientToken, nil)
	mustStatus(t, http.StatusOK, code, env)
	if me := decode[map[string]any](t, env.Data); me["role"] != "patient" {
		t.Fatalf("expected patient role, got %v", me["role"])
	}

	code, env = s.do(t, http.MethodPost, "/appointments", patientToken, map[string]string{
		"doctorId":            doctorID,
		"appointmentDate":     "2025-03-01",
		"appointmentTimeSlot": "10:00 AM",
		"consultationType":    "video",
	})
	mustStatus(t, http.StatusCreated, code, env)
	appt := decode[map[string]any](t, env.Data)
	apptID, _ := appt["appointmentId"].(string)
	if appt["status"] != "confirmed" || apptID == "" {
		t.Fatalf("unexpected appointment %v", appt)
	}

	// a patient cannot write prescriptions
	draft := map[string]any{
		"diagnosis": "Seasonal allergy",
		"medications": []map[string]string{
			{"name": "Cetirizine", "dosage": "10mg", "frequency": "once daily", "duration": "5 days"},
		},
	}
	code, env = s.do(t, http.MethodPost, "/appointments/"+apptID+"/prescription", patientToken, draft)
	if code == http.StatusCreated {
		t.Fatalf("patient should not be able to prescribe")
	}
	code, env = s.do(t, http.MethodPost, "/appointments/"+apptID+"/prescription", doctorToken, draft)
	mustStatus(t, http.StatusCreated, code, env)
	rxID, _ := decode[map[string]any](t, env.Data)["prescriptionId"].(string)
	code, env = s.do(t, http.MethodPost, "/appointments/"+apptID+"/prescription", doctorToken, draft)
	mustStatus(t, http.StatusConflict, code, env)

	code, env = s.do(t, http.MethodGet, "/pharmacies", patientToken, nil)
	mustStatus(t, http.StatusOK, code, env)
	if list := decode[[]map[string]any](t, env.Data); len(list) != 1 {
		t.Fatalf("expected one pharmacy, got %d", len(list))
	}

	code, env = s.do(t, http.MethodPost, "/orders", patientToken, map[string]string{
		"pharmacyId":     pharmacyID,
		"prescriptionId": rxID,
	})
	mustStatus(t, http.StatusCreated, code, env)
	orderID, _ := decode[map[string]any](t, env.Data)["orderId"].(string)

	code, env = s.do(t, http.MethodGet, "/orders", pharmacyToken, nil)
	mustStatus(t, http.StatusOK, code, env)
	if list := decode[[]map[string]any](t, env.Data); len(list) != 1 || list[0]["patientName"] != "Asha Rao" {
		t.Fatalf("unexpected pharmacy queue %v", list)
	}

	code, env = s.do(t, http.MethodGet, "/orders/"+orderID+"/prescription", pharmacyToken, nil)
	mustStatus(t, http.StatusOK, code, env)

	code, env = s.do(t, http.MethodPut, "/orders/"+orderID+"/status", pharmacyToken, map[string]string{"status": "fulfilled"})
	mustStatus(t, http.StatusOK, code, env)
	code, env = s.do(t, http.MethodPut, "/orders/"+orderID+"/status", pharmacyToken, map[string]string{"status": "cancelled"})
	mustStatus(t, http.StatusConflict, code, env)

	code, env = s.do(t, http.MethodGet, "/prescriptions", patientToken, nil)
	mustStatus(t, http.StatusOK, code, env)
	if list := decode[[]map[string]any](t, env.Data); len(list) != 1 {
		t.Fatalf("expected one medical record, got %d", len(list))
	}
}
