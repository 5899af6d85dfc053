package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/pathway100k/intake/internal/model"
	"github.com/pathway100k/intake/internal/observability"
)

type memRecorder struct {
	mu      sync.Mutex
	records []model.SubmissionRecord
	err     error
	panics  bool
}

func (m *memRecorder) Record(_ context.Context, rec model.SubmissionRecord) error {
	if m.panics {
		panic("sink exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecorder) all() []model.SubmissionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SubmissionRecord(nil), m.records...)
}

var (
	fixedNow  = time.Date(2024, 3, 5, 14, 7, 9, 123_000_000, time.UTC)
	idPattern = regexp.MustCompile(`^APP-\d+$`)
)

const validBody = `{"full_name":"Jane Smith","email":"jane@example.com","country_code":"+44","phone":"7700 900123","plan":"growth","experience":"3-5 years"}`

func newTestEcho(rec *memRecorder, m *observability.Metrics) *echo.Echo {
	h := NewIntakeHandler(rec, "+1", zerolog.Nop(), m)
	h.Now = func() time.Time { return fixedNow }
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(e.DefaultHTTPErrorHandler, "/", "/api")
	e.Any("/", h.Handle)
	e.Any("/api", h.Handle)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "192.0.2.10:54321"
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestIntakeHandler_AcceptsValidSubmission(t *testing.T) {
	rec := &memRecorder{}
	e := newTestEcho(rec, nil)

	w := do(e, http.MethodPost, "/", validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	if out["success"] != true || out["message"] != "Application received!" {
		t.Errorf("unexpected body %v", out)
	}
	id, _ := out["id"].(string)
	if !idPattern.MatchString(id) {
		t.Errorf("id = %q", id)
	}

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	r := got[0]
	if r.ID != id {
		t.Errorf("record id %q != response id %q", r.ID, id)
	}
	if r.FullName != "Jane Smith" || r.Email != "jane@example.com" || r.Phone != "7700 900123" ||
		r.Plan != "growth" || r.Experience != "3-5 years" {
		t.Errorf("fields not copied verbatim: %+v", r)
	}
	if r.CountryCode != "+44" {
		t.Errorf("country_code = %q, want +44", r.CountryCode)
	}
	if !r.SubmittedAt.Equal(fixedNow) {
		t.Errorf("submitted_at = %v", r.SubmittedAt)
	}
	if r.SourceIP != "192.0.2.10" {
		t.Errorf("source_ip = %q", r.SourceIP)
	}
}

func TestIntakeHandler_DefaultsCountryCode(t *testing.T) {
	rec := &memRecorder{}
	e := newTestEcho(rec, nil)

	body := `{"full_name":"Raj","email":"r@x.io","phone":"5550001","plan":"starter","experience":"1-2 years"}`
	w := do(e, http.MethodPost, "/api", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := rec.all()[0].CountryCode; got != "+1" {
		t.Errorf("country_code = %q, want +1", got)
	}
}

func TestIntakeHandler_RejectsEachMissingField(t *testing.T) {
	for _, field := range []string{"full_name", "email", "phone", "plan", "experience"} {
		t.Run(field, func(t *testing.T) {
			var payload map[string]any
			if err := json.Unmarshal([]byte(validBody), &payload); err != nil {
				t.Fatal(err)
			}
			delete(payload, field)
			b, _ := json.Marshal(payload)

			rec := &memRecorder{}
			w := do(newTestEcho(rec, nil), http.MethodPost, "/", string(b))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			if got := strings.TrimSpace(w.Body.String()); got != `{"success":false,"message":"All fields are required."}` {
				t.Errorf("body = %s", got)
			}
			if n := len(rec.all()); n != 0 {
				t.Errorf("expected no record, got %d", n)
			}
		})
	}
}

func TestIntakeHandler_EmptyStringIsMissing(t *testing.T) {
	rec := &memRecorder{}
	body := strings.Replace(validBody, `"plan":"growth"`, `"plan":""`, 1)
	w := do(newTestEcho(rec, nil), http.MethodPost, "/", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestIntakeHandler_MalformedBodyIsBadRequest(t *testing.T) {
	for _, body := range []string{`{not json`, `[]`, `"text"`, ``} {
		rec := &memRecorder{}
		w := do(newTestEcho(rec, nil), http.MethodPost, "/", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", body, w.Code)
		}
		if len(rec.all()) != 0 {
			t.Errorf("body %q: recorded", body)
		}
	}
}

func TestIntakeHandler_SinkFailureIsGenericServerError(t *testing.T) {
	rec := &memRecorder{err: errors.New("connection refused to db.internal:5432")}
	w := do(newTestEcho(rec, nil), http.MethodPost, "/", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	body := strings.TrimSpace(w.Body.String())
	if body != `{"success":false,"message":"Server error. Please try again."}` {
		t.Errorf("body = %s", body)
	}
	if strings.Contains(body, "db.internal") {
		t.Error("internal error leaked to client")
	}
}

func TestIntakeHandler_PanicIsGenericServerError(t *testing.T) {
	rec := &memRecorder{panics: true}
	w := do(newTestEcho(rec, nil), http.MethodPost, "/", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if out := decode(t, w); out["message"] != "Server error. Please try again." {
		t.Errorf("body = %v", out)
	}
}

func TestIntakeHandler_ServesPage(t *testing.T) {
	e := newTestEcho(&memRecorder{}, nil)
	for _, target := range []string{"/", "/?utm_source=ads&plan=elite", "/api"} {
		w := do(e, http.MethodGet, target, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, w.Code)
		}
		if ct := w.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s: content type = %q", target, ct)
		}
		if !strings.Contains(w.Body.String(), "<form") {
			t.Errorf("%s: page has no form", target)
		}
	}

	w := do(e, http.MethodHead, "/", "")
	if w.Code != http.StatusOK {
		t.Errorf("HEAD status = %d", w.Code)
	}
}

func TestIntakeHandler_OtherMethodsNotAllowed(t *testing.T) {
	rec := &memRecorder{}
	e := newTestEcho(rec, nil)
	methods := []string{
		http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions, http.MethodTrace,
		"PROPFIND", "REPORT", "PURGE", "LINK", "FOO",
	}
	for _, m := range methods {
		w := do(e, m, "/", validBody)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d", m, w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != `{"error":"Method not allowed"}` {
			t.Errorf("%s: body = %s", m, got)
		}
	}
	if len(rec.all()) != 0 {
		t.Error("non-POST method recorded a submission")
	}
}

func TestIntakeHandler_OversizedBodyKeepsContract(t *testing.T) {
	rec := &memRecorder{}
	e := newTestEcho(rec, nil)
	e.Use(middleware.BodyLimit("1K"))
	big := `{"full_name":"` + strings.Repeat("x", 4096) + `"}`

	// declared length is rejected by the middleware, unknown length while reading
	for _, contentLength := range []int64{int64(len(big)), -1} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		req.ContentLength = contentLength
		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("content length %d: status = %d", contentLength, w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != `{"success":false,"message":"All fields are required."}` {
			t.Errorf("content length %d: body = %s", contentLength, got)
		}
	}
	if len(rec.all()) != 0 {
		t.Error("oversized body was recorded")
	}
}

func TestErrorHandler_LeavesOtherPathsAlone(t *testing.T) {
	e := newTestEcho(&memRecorder{}, nil)
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	w := do(e, http.MethodPost, "/healthz", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), `"error":"Method not allowed"`) {
		t.Errorf("intake body used outside intake paths: %s", w.Body.String())
	}
}

func TestIntakeHandler_IDsUniqueWithinMillisecond(t *testing.T) {
	rec := &memRecorder{}
	e := newTestEcho(rec, nil)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id, _ := decode(t, do(e, http.MethodPost, "/", validBody))["id"].(string)
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestIntakeHandler_CountsOutcomes(t *testing.T) {
	m := observability.NewMetrics()
	e := newTestEcho(&memRecorder{}, m)
	do(e, http.MethodPost, "/", validBody)
	do(e, http.MethodPost, "/", `{}`)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, want := range []string{
		`intake_submissions_total{outcome="accepted"} 1`,
		`intake_submissions_total{outcome="invalid"} 1`,
	} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestSourceIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first entry", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, "10.0.0.2:1", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:1", "198.51.100.4"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.4"}, "", "203.0.113.7"},
		{"remote addr", nil, "192.0.2.1:8080", "192.0.2.1"},
		{"remote addr ipv6", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote addr without port", nil, "192.0.2.9", "192.0.2.9"},
		{"unknown", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := SourceIP(r); got != tt.want {
				t.Errorf("SourceIP = %q, want %q", got, tt.want)
			}
		})
	}
}
