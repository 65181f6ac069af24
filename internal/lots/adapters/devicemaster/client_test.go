package devicemaster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
	lots "devicelab/internal/lots/domain"
)

func TestMarkBenchTestVerified(t *testing.T) {
	type call struct {
		method, path, auth string
		body               verifiedRequest
	}
	calls := make(chan call, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body verifiedRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		calls <- call{method: r.Method, path: r.URL.EscapedPath(), auth: r.Header.Get("Authorization"), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/", "secret", time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := client.MarkBenchTestVerified(context.Background(), "SN 1", at); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	got := <-calls
	if got.method != http.MethodPost || got.path != "/api/devices/SN%201/bench-test-verified" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.auth != "Bearer secret" || !got.body.BenchTestVerified || !got.body.VerifiedAt.Equal(at) {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestClientMapsStatusCodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/devices/missing/bench-test-status":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "", 0)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = client.RecordBenchTestStatus(context.Background(), "missing", benchtest.DeviceCompleted, time.Now())
	if !errors.Is(err, lots.ErrDeviceNotFound) {
		t.Fatalf("expected device not found, got %v", err)
	}
	if err := client.MarkBenchTestVerified(context.Background(), "SN-2", time.Now()); err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("", "", 0); err == nil {
		t.Fatalf("expected error")
	}
}
