package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	hrerrors "github.com/hrload/hrload/internal/errors"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestDefaultMiddleware_RecoveryKnowsRequestID(t *testing.T) {
	logs := captureLog(t)

	handler := DefaultMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status mismatch: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID mismatch: got %q, want req-123", got)
	}
	if !strings.Contains(logs.String(), "request req-123") {
		t.Errorf("expected panic log to carry the request ID, got %q", logs.String())
	}
}

func TestWriteError_BodyCarriesOnlyError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, invalidTableMessage)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 || body["error"] != invalidTableMessage {
		t.Errorf("body mismatch: got %v, want {error: %q}", body, invalidTableMessage)
	}
}

func TestFail_StatusAndLogging(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
		logged  string
	}{
		{"invalid table", hrerrors.NewInvalidTableError("payroll"), http.StatusBadRequest, invalidTableMessage, ""},
		{"backup not found", hrerrors.NewBackupNotFoundError("backups/jobs.snap"), http.StatusNotFound, "Backup not found", ""},
		{"corrupt", hrerrors.NewCorruptSnapshotError("bad magic", nil), http.StatusUnprocessableEntity, "Corrupt snapshot", "[SNAPSHOT/CORRUPT_SNAPSHOT]"},
		{"store", fmt.Errorf("insert: %w", hrerrors.NewStoreError("locked", nil)), http.StatusInternalServerError, internalErrorMessage, "[STORE/STORE_UNAVAILABLE]"},
		{"plain", fmt.Errorf("disk on fire"), http.StatusInternalServerError, internalErrorMessage, "[UNCLASSIFIED/-]"},
	}

	h := NewHandler(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLog(t)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), requestIDKey, "req-9"))
			rec := httptest.NewRecorder()
			h.fail(rec, req, "op", tt.err)

			if rec.Code != tt.status {
				t.Errorf("status mismatch: got %d, want %d", rec.Code, tt.status)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.message {
				t.Errorf("message mismatch: got %q, want %q", body.Error, tt.message)
			}
			if tt.logged == "" {
				if logs.Len() != 0 {
					t.Errorf("expected no log, got %q", logs.String())
				}
				return
			}
			if !strings.Contains(logs.String(), tt.logged) || !strings.Contains(logs.String(), "request req-9") {
				t.Errorf("log mismatch: got %q, want it to contain %q", logs.String(), tt.logged)
			}
		})
	}
}
