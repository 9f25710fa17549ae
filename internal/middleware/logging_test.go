package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/postboard/internal/metrics"
)

// statusMetrics はRecordHTTPStatusのみを記録するテスト用コレクター。
type statusMetrics struct {
	metrics.MetricsCollector
	statuses []int
}

func (m *statusMetrics) RecordHTTPStatus(statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

// TestLoggingMiddleware_LogsRequestFields はリクエストログに必要なフィールドが含まれることを検証する。
func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := NewLoggingMiddleware(logger, nil)(okHandler)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/home", nil))

	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %q, want %q", entry["msg"], "http_request")
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %q, want %q", entry["method"], "GET")
	}
	if entry["path"] != "/home" {
		t.Errorf("path = %q, want %q", entry["path"], "/home")
	}
	if status, ok := entry["status"].(float64); !ok || status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v, want >= 0", entry["duration_ms"])
	}
	if _, ok := entry["client_id"]; ok {
		t.Error("client_id should be omitted when no client is resolved")
	}
}

// TestLoggingMiddleware_IncludesClientID は内側のクライアントミドルウェアが解決したIDを記録することを検証する。
func TestLoggingMiddleware_IncludesClientID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	reg, _ := newTestRegistry(t)

	chain := NewLoggingMiddleware(logger, nil)(NewClientMiddleware(reg, CookieConfig{})(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: "5f0c6c8e-3c1a-4c55-9b1e-2f7d8b1f0a11"})
	chain.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["client_id"] != "5f0c6c8e-3c1a-4c55-9b1e-2f7d8b1f0a11" {
		t.Errorf("client_id = %v", entry["client_id"])
	}
}

// TestLoggingMiddleware_LevelAndMetricsByStatus はステータスに応じたログレベルとメトリクス記録を検証する。
func TestLoggingMiddleware_LevelAndMetricsByStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		wantLevel  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusSeeOther, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			m := &statusMetrics{}

			handler := NewLoggingMiddleware(logger, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			entry := decodeLogEntry(t, &buf)
			if status := int(entry["status"].(float64)); status != tt.statusCode {
				t.Errorf("status = %d, want %d", status, tt.statusCode)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if len(m.statuses) != 1 || m.statuses[0] != tt.statusCode {
				t.Errorf("recorded statuses = %v", m.statuses)
			}
		})
	}
}

// TestLoggingMiddleware_BodyWriteCapture はWriteHeaderなしの書き込みで200が記録されることを検証する。
func TestLoggingMiddleware_BodyWriteCapture(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.Write([]byte("hello"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	entry := decodeLogEntry(t, &buf)
	if status := int(entry["status"].(float64)); status != 200 {
		t.Errorf("status = %d, want 200", status)
	}
	if d := entry["duration_ms"].(float64); d <= 0 {
		t.Errorf("duration_ms = %v, want > 0", d)
	}
}

// TestRecoveryMiddleware_Returns500 はpanicを500に変換してログに残すことを検証する。
func TestRecoveryMiddleware_Returns500(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/home", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "panic recovered" || entry["panic"] != "boom" {
		t.Errorf("unexpected log entry: %v", entry)
	}
}

// TestRecoveryMiddleware_AbortHandlerPropagates は接続中断のpanicを握りつぶさないことを検証する。
func TestRecoveryMiddleware_AbortHandlerPropagates(t *testing.T) {
	handler := NewRecoveryMiddleware(slog.New(slog.NewJSONHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recover() = %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/home", nil))
}

// TestSecurityHeadersMiddleware はセキュリティヘッダーの付与を検証する。
func TestSecurityHeadersMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(false)(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/home", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "same-origin",
		"Content-Security-Policy": contentSecurityPolicy,
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("Strict-Transport-Security should not be set over http, got %q", got)
	}
}

func TestSecurityHeadersMiddleware_HTTPS(t *testing.T) {
	w := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(true)(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/home", nil))

	if got := w.Header().Get("Strict-Transport-Security"); got != hstsValue {
		t.Errorf("Strict-Transport-Security = %q, want %q", got, hstsValue)
	}
}
