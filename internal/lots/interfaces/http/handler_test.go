package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"devicelab/internal/api/envelope"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/lots/application"
	lots "devicelab/internal/lots/domain"
	"devicelab/internal/lots/infrastructure/memory"
)

type brokenMaster struct {
	*memory.Store
	broken string
}

func (m brokenMaster) MarkBenchTestVerified(ctx context.Context, serial string, at time.Time) error {
	if serial == m.broken {
		return errors.New("device master unavailable")
	}
	return m.Store.MarkBenchTestVerified(ctx, serial, at)
}

func newRouter(t *testing.T, store *memory.Store, master lots.DeviceMaster) *mux.Router {
	t.Helper()
	engine, err := application.NewEngine(store, master, store.Settings())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	handler, err := NewHandler(engine, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	router := mux.NewRouter()
	handler.Register(router)
	return router
}

func seed(store *memory.Store, statuses ...benchtest.DeviceStatus) lots.DeviceLot {
	lot := store.AddLot(lots.DeviceLot{Name: "Intake", Type: lots.LotReturned, Status: lots.LotActive})
	for i, status := range statuses {
		store.AssignDevice(lot.SeqID, fmt.Sprintf("R%d-%02d", lot.SeqID, i), status)
	}
	return lot
}

func call(t *testing.T, router *mux.Router, method, path, body string) (*httptest.ResponseRecorder, envelope.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var resp envelope.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return rec, resp
}

func TestVerifyBenchTestStatusCodes(t *testing.T) {
	store := memory.NewStore()
	tested := seed(store, benchtest.DeviceCompleted, benchtest.DeviceError, benchtest.DeviceQueued)
	untested := seed(store, benchtest.DeviceQueued)
	router := newRouter(t, store, store)

	rec, resp := call(t, router, http.MethodPost, "/BenchTest/VerifyBenchTest", fmt.Sprintf(`{"lotSeqId":%d}`, tested.SeqID))
	if rec.Code != http.StatusOK || resp.Messages.ErrorCode != "" {
		t.Fatalf("verify: %d %+v", rec.Code, resp.Messages)
	}
	data := resp.Data.(map[string]any)
	if data["successfulUpdates"] != float64(2) || data["lotMarkedComplete"] != true {
		t.Fatalf("unexpected result %v", data)
	}

	rec, resp = call(t, router, http.MethodPost, "/BenchTest/VerifyBenchTest", fmt.Sprintf(`{"lotSeqId":%d}`, untested.SeqID))
	if rec.Code != http.StatusNotFound || resp.Messages.ErrorCode != envelope.CodeNoDevicesFound {
		t.Fatalf("expected no devices found, got %d %+v", rec.Code, resp.Messages)
	}

	rec, resp = call(t, router, http.MethodPost, "/BenchTest/VerifyBenchTest", `{"lotSeqId":0}`)
	if rec.Code != http.StatusBadRequest || resp.Messages.ErrorCode != envelope.CodeInvalidRequest {
		t.Fatalf("expected invalid request, got %d %+v", rec.Code, resp.Messages)
	}

	rec, resp = call(t, router, http.MethodPost, "/BenchTest/VerifyBenchTest", `{"lotSeqId":1,"lotType":"Bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad lot type rejected, got %d %+v", rec.Code, resp.Messages)
	}

	rec, resp = call(t, router, http.MethodPost, "/BenchTest/VerifyBenchTest", `{"lotSeqId":999}`)
	if rec.Code != http.StatusNotFound || resp.Messages.ErrorCode != envelope.CodeNotFound {
		t.Fatalf("expected missing lot, got %d %+v", rec.Code, resp.Messages)
	}
}

func TestVerifyBenchTestPartialFailure(t *testing.T) {
	store := memory.NewStore()
	lot := seed(store, benchtest.DeviceCompleted, benchtest.DeviceCompleted)
	router := newRouter(t, store, brokenMaster{Store: store, broken: "R1-01"})

	rec, resp := call(t, router, http.MethodPost, "/BenchTest/VerifyBenchTest", fmt.Sprintf(`{"lotSeqId":%d}`, lot.SeqID))
	if rec.Code != http.StatusOK || resp.Messages.ErrorCode != "" {
		t.Fatalf("partial failure must still succeed: %d %+v", rec.Code, resp.Messages)
	}
	if !strings.HasPrefix(resp.Messages.StatusDescription, envelope.CodePartialFailure) {
		t.Fatalf("expected partial failure description, got %q", resp.Messages.StatusDescription)
	}
	if resp.Data.(map[string]any)["lotMarkedComplete"] != false {
		t.Fatalf("lot must not be marked complete on failures")
	}
}

func TestVerifyBenchTestPDF(t *testing.T) {
	store := memory.NewStore()
	lot := seed(store, benchtest.DeviceCompleted)
	router := newRouter(t, store, store)

	rec, _ := call(t, router, http.MethodPost, "/BenchTest/VerifyBenchTest?format=pdf", fmt.Sprintf(`{"lotSeqId":%d}`, lot.SeqID))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected pdf body")
	}
}

func TestLotManagementQueries(t *testing.T) {
	store := memory.NewStore()
	lot := seed(store, benchtest.DeviceCompleted, benchtest.DeviceRunning)
	router := newRouter(t, store, store)

	rec, resp := call(t, router, http.MethodGet, "/LotManagement/GetLotsForMarkBenchTestComplete", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("eligible lots: %d", rec.Code)
	}
	listed := resp.Data.(map[string]any)["lots"].([]any)
	if len(listed) != 1 {
		t.Fatalf("expected one eligible lot, got %v", listed)
	}

	rec, resp = call(t, router, http.MethodGet, fmt.Sprintf("/LotManagement/GetDevicesByLot?lotSeqId=%d", lot.SeqID), "")
	if rec.Code != http.StatusOK || len(resp.Data.([]any)) != 2 {
		t.Fatalf("devices: %d %v", rec.Code, resp.Data)
	}

	rec, resp = call(t, router, http.MethodGet, fmt.Sprintf("/LotManagement/GetLotProgress?lotSeqId=%d&lotType=Returned", lot.SeqID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("progress: %d", rec.Code)
	}
	progress := resp.Data.(map[string]any)
	if progress["testedCount"] != float64(1) || progress["percentTested"] != float64(50) {
		t.Fatalf("unexpected progress %v", progress)
	}

	rec, _ = call(t, router, http.MethodGet, "/LotManagement/GetLotProgress?lotSeqId=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRequiredPercentageRoundTrip(t *testing.T) {
	store := memory.NewStore()
	router := newRouter(t, store, store)

	_, resp := call(t, router, http.MethodGet, "/LotManagement/RequiredPercentage", "")
	if resp.Data.(map[string]any)["requiredPercentage"] != float64(lots.DefaultRequiredPercentage) {
		t.Fatalf("expected default, got %v", resp.Data)
	}

	rec, _ := call(t, router, http.MethodPut, "/LotManagement/RequiredPercentage", `{"requiredPercentage":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set: %d", rec.Code)
	}
	_, resp = call(t, router, http.MethodGet, "/LotManagement/RequiredPercentage", "")
	if resp.Data.(map[string]any)["requiredPercentage"] != float64(10) {
		t.Fatalf("expected 10, got %v", resp.Data)
	}

	for _, body := range []string{`{"requiredPercentage":101}`, `{}`, `not json`} {
		rec, resp := call(t, router, http.MethodPut, "/LotManagement/RequiredPercentage", body)
		if rec.Code != http.StatusBadRequest || resp.Messages.ErrorCode != envelope.CodeInvalidRequest {
			t.Fatalf("%s: expected invalid request, got %d %+v", body, rec.Code, resp.Messages)
		}
	}
}
