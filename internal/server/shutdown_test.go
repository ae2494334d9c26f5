package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestShutdownManager_ClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{ShutdownTimeout: time.Second, DrainTimeout: 100 * time.Millisecond})

	var order []string
	sm.RegisterCloser("store", CloserFunc(func() error {
		order = append(order, "store")
		return nil
	}))
	sm.RegisterCloser("http", CloserFunc(func() error {
		order = append(order, "http")
		return nil
	}))

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(order) != 2 || order[0] != "http" || order[1] != "store" {
		t.Errorf("close order mismatch: got %v, want [http store]", order)
	}

	// Second call is a no-op.
	if err := sm.Shutdown(context.Background(), "again"); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
	if len(order) != 2 {
		t.Errorf("closers ran twice: %v", order)
	}
}

func TestShutdownManager_ReportsCloseErrors(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	boom := errors.New("boom")
	sm.RegisterCloser("broken", CloserFunc(func() error { return boom }))

	if err := sm.Shutdown(context.Background(), "test"); !errors.Is(err, boom) {
		t.Errorf("expected close error to be reported, got %v", err)
	}
}

func TestShutdownManager_DrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{ShutdownTimeout: time.Second, DrainTimeout: 100 * time.Millisecond})
	if !sm.TrackRequest() {
		t.Fatal("expected request to be tracked")
	}

	if err := sm.Shutdown(context.Background(), "test"); err == nil {
		t.Error("expected drain timeout error with a request in flight")
	}
	if sm.TrackRequest() {
		t.Error("expected new requests to be rejected after shutdown")
	}
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	handler := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := sm.InFlightCount(); got != 1 {
			t.Errorf("in-flight mismatch: got %d, want 1", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status mismatch: got %d, want %d", rec.Code, http.StatusNoContent)
	}

	sm.Shutdown(context.Background(), "test")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status mismatch after shutdown: got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestShutdownManager_ServeHTTP(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})}
	errCh := sm.ServeHTTP("http", srv, lis)

	resp, err := http.Get("http://" + lis.Addr().String() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Errorf("unexpected serve error: %v", err)
	}
}
