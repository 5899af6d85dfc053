package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pathway100k/intake/internal/config"
	"github.com/pathway100k/intake/internal/infrastructure/sinks"
	"github.com/pathway100k/intake/internal/model"
	"github.com/pathway100k/intake/internal/observability"
)

type stubSink struct {
	mu      sync.Mutex
	records []model.SubmissionRecord
	pingErr error
	closed  bool
}

func (s *stubSink) Record(_ context.Context, rec model.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *stubSink) Ping(context.Context) error { return s.pingErr }

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newTestServer(t *testing.T, sink *stubSink) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.BodyLimit = "1K"
	fan := &sinks.Fanout{}
	fan.Add("stub", sink)
	return newServer(cfg, zerolog.Nop(), fan, observability.NewMetrics(), nil, nil)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Echo.ServeHTTP(w, req)
	return w
}

const submission = `{"full_name":"Ana Lima","email":"ana@example.com","phone":"11 98888 7777","country_code":"+55","plan":"elite","experience":"10+ years"}`

func TestServer_SubmitThroughMiddleware(t *testing.T) {
	sink := &stubSink{}
	s := newTestServer(t, sink)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(submission))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXForwardedFor, "203.0.113.50")
	w := serve(s, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("missing request id header")
	}
	if len(sink.records) != 1 || sink.records[0].SourceIP != "203.0.113.50" {
		t.Fatalf("records = %+v", sink.records)
	}
}

func TestServer_ApiRouteAndMethods(t *testing.T) {
	s := newTestServer(t, &stubSink{})

	if w := serve(s, httptest.NewRequest(http.MethodGet, "/api", nil)); w.Code != http.StatusOK {
		t.Errorf("GET /api status = %d", w.Code)
	}
	w := serve(s, httptest.NewRequest(http.MethodPut, "/api", strings.NewReader(submission)))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /api status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"error":"Method not allowed"}` {
		t.Errorf("PUT /api body = %s", got)
	}
}

func TestServer_OptionsWithoutPreflightIsNotAllowed(t *testing.T) {
	s := newTestServer(t, &stubSink{})
	if w := serve(s, httptest.NewRequest(http.MethodOptions, "/", nil)); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("OPTIONS status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set(echo.HeaderOrigin, "https://pathway.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	if w := serve(s, req); w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
}

func TestServer_BodyLimitKeepsIntakeContract(t *testing.T) {
	sink := &stubSink{}
	s := newTestServer(t, sink)

	big := `{"full_name":"` + strings.Repeat("x", 4096) + `"}`
	w := serve(s, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"success":false,"message":"All fields are required."}` {
		t.Errorf("body = %s", got)
	}
	if len(sink.records) != 0 {
		t.Error("oversized body was recorded")
	}
}

func TestServer_UnroutableMethodsKeepIntakeContract(t *testing.T) {
	s := newTestServer(t, &stubSink{})
	for _, path := range []string{"/", "/api"} {
		for _, m := range []string{"PURGE", "LINK", "FOO", "PROPFIND", http.MethodTrace} {
			w := serve(s, httptest.NewRequest(m, path, nil))
			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s %s: status = %d", m, path, w.Code)
			}
			if got := strings.TrimSpace(w.Body.String()); got != `{"error":"Method not allowed"}` {
				t.Errorf("%s %s: body = %s", m, path, got)
			}
		}
	}
}

func TestServer_HealthAndReadiness(t *testing.T) {
	sink := &stubSink{}
	s := newTestServer(t, sink)

	if w := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}
	if w := serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil)); w.Code != http.StatusOK {
		t.Errorf("readyz status = %d", w.Code)
	}

	sink.pingErr = errors.New("dial tcp db.internal:5432: no route to host")
	w := serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing sink status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "db.internal") {
		t.Errorf("readyz leaked the sink error: %s", w.Body.String())
	}
}

func TestServer_MetricsAndSinks(t *testing.T) {
	s := newTestServer(t, &stubSink{})
	serve(s, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(submission)))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `intake_sink_duration_seconds_count{sink="stub",status="success"} 1`) {
		t.Errorf("metrics missing sink histogram:\n%s", w.Body.String())
	}

	w = serve(s, httptest.NewRequest(http.MethodGet, "/sinks", nil))
	var out struct {
		Data struct {
			Sinks []string `json:"sinks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Data.Sinks) != 1 || out.Data.Sinks[0] != "stub" {
		t.Errorf("sinks = %v", out.Data.Sinks)
	}

	if w := serve(s, httptest.NewRequest(http.MethodGet, "/sinks/types/log", nil)); w.Code != http.StatusOK {
		t.Errorf("/sinks/types/log status = %d", w.Code)
	}
}

func TestServer_ShutdownClosesSinks(t *testing.T) {
	sink := &stubSink{}
	s := newTestServer(t, sink)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !sink.closed {
		t.Error("sink not closed on shutdown")
	}
}

func TestNew_BuildsConfiguredSinks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sinks.Enabled = []string{"sqlite"}
	cfg.Sinks.SQLite.Path = t.TempDir() + "/intake.db"

	s, err := New(context.Background(), cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown(context.Background())

	names := s.Sinks.Names()
	if len(names) != 2 || names[0] != "log" || names[1] != "sqlite" {
		t.Errorf("sinks = %v", names)
	}
}
