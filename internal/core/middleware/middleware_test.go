package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	mylog "github.com/mohammed-shakir/viewport-layers/internal/logger"
)

func TestLogging_SetsRequestID(t *testing.T) {
	var seen string
	h := Logging(mylog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get("X-Request-ID")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/layers", nil))
	if seen == "" || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("request id not propagated: %q", seen)
	}
}

func TestRecover_Returns500(t *testing.T) {
	h := Recover(mylog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/viewport", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("preflight must not reach the handler")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/layers/shadows/mode", nil))
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Methods") != "GET,POST,OPTIONS" {
		t.Fatalf("preflight got %d %v", rr.Code, rr.Header())
	}
}

func TestCORS_AllowList(t *testing.T) {
	h := CORS("https://visor.example")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for origin, want := range map[string]string{
		"https://visor.example": "https://visor.example",
		"https://other.example": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/layers", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("%s: allow-origin got %q want %q", origin, got, want)
		}
	}
}

func TestLogging_RouteStatusAndLayer(t *testing.T) {
	var buf bytes.Buffer
	zl := mylog.Build(mylog.Config{Level: "debug"}, &buf)

	r := chi.NewRouter()
	r.Use(Logging(mylog.NewSlog(&zl)))
	r.Post("/layers/{id}/toggle", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream", http.StatusBadGateway)
	})
	req := httptest.NewRequest(http.MethodPost, "/layers/shadows/toggle", nil)
	req.Header.Set("X-Request-ID", "req-9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	checks := map[string]any{
		"msg":        "http request",
		"level":      "warn",
		"route":      "/layers/{id}/toggle",
		"status":     float64(http.StatusBadGateway),
		"layer":      "shadows",
		"request_id": "req-9",
		"component":  "http",
	}
	for k, want := range checks {
		if line[k] != want {
			t.Fatalf("field %q got %v want %v (%v)", k, line[k], want, line)
		}
	}
}
