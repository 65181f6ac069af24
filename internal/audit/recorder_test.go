package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devicelab/internal/auth"
	benchevents "devicelab/internal/benchtest/application/events"
	benchtest "devicelab/internal/benchtest/domain"
	lotevents "devicelab/internal/lots/application/events"
)

type failingLogger struct{}

func (failingLogger) Log(context.Context, Entry) error { return errors.New("disk full") }

func TestRecorderCapturesRequestDetails(t *testing.T) {
	store := NewMemoryLog()
	recorder, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/BenchTest/StopTest/4", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	req.Header.Set("User-Agent", "rig-console/1.2")
	var ctx context.Context
	Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	})).ServeHTTP(httptest.NewRecorder(), req)
	ctx = auth.WithIdentity(ctx, auth.RoleOperator, "alice")

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err = recorder.HandleBoardUpdated(ctx, benchevents.BoardUpdated{
		BoardID: 4, Transition: "stop", PreviousStatus: benchtest.StatusRunning,
		Status: benchtest.StatusComplete, Actor: "alice", OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Action != "board.stop" || entry.ResourceID != "4" || entry.ResourceType != "bench_test_board" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.IP != "10.0.0.9" || entry.UserAgent != "rig-console/1.2" || entry.Role != "operator" {
		t.Fatalf("request details missing: %+v", entry)
	}
	if entry.PayloadDigest == "" || !entry.CreatedAt.Equal(at) {
		t.Fatalf("expected digest and event time: %+v", entry)
	}
}

func TestRecorderLotEvents(t *testing.T) {
	store := NewMemoryLog()
	recorder, err := NewRecorder(store, nil)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	_ = recorder.HandleLotVerified(ctx, lotevents.LotVerified{LotSeqID: 12, Actor: "admin"})
	_ = recorder.HandleRequiredPercentageChanged(ctx, lotevents.RequiredPercentageChanged{Previous: 2, Percentage: 5, Actor: "admin"})

	entries := store.Entries()
	if len(entries) != 2 || entries[0].Action != "lot.verify" || entries[1].Action != "settings.required_percentage" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].IP != "" {
		t.Fatalf("expected no request details outside a request")
	}
}

func TestRecorderSwallowsWriteErrors(t *testing.T) {
	recorder, err := NewRecorder(failingLogger{}, nil)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := recorder.HandleBoardCleared(context.Background(), benchevents.BoardCleared{BoardID: 1}); err != nil {
		t.Fatalf("expected audit failure to be swallowed, got %v", err)
	}
	if _, err := NewRecorder(nil, nil); err == nil {
		t.Fatalf("expected nil logger rejected")
	}
}
