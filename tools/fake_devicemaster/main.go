package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// fakeDeviceMaster stands in for the legacy device master API during local
// runs and load tests of lot verification.
type fakeDeviceMaster struct {
	start    time.Time
	latency  time.Duration
	failRate float64
	strict   bool

	mu      sync.Mutex
	devices map[string]*deviceRecord
	calls   map[string]int64
	failed  int64
}

type deviceRecord struct {
	SerialNumber        string     `json:"serialNumber"`
	BenchTestStatusCode string     `json:"benchTestStatusCode"`
	BenchTestVerified   bool       `json:"benchTestVerified"`
	VerifiedAt          *time.Time `json:"benchTestVerifiedDateTime,omitempty"`
	UpdatedAt           time.Time  `json:"updateDateTime"`
}

func main() {
	addr := getenvDefault("FAKE_DM_ADDR", ":18081")
	srv := &fakeDeviceMaster{
		start:    time.Now().UTC(),
		latency:  time.Duration(getenvIntDefault("FAKE_DM_LATENCY_MS", 0)) * time.Millisecond,
		failRate: getenvFloatDefault("FAKE_DM_FAIL_RATE", 0),
		strict:   getenvDefault("FAKE_DM_STRICT", "") == "1",
		devices:  make(map[string]*deviceRecord),
		calls:    make(map[string]int64),
	}
	for _, serial := range strings.Split(os.Getenv("FAKE_DM_SERIALS"), ",") {
		if serial = strings.TrimSpace(serial); serial != "" {
			srv.devices[serial] = &deviceRecord{SerialNumber: serial}
		}
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/metrics", srv.handleMetrics).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/{serial}", srv.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/api/devices/{serial}/bench-test-verified", srv.handleVerified).Methods(http.MethodPost)
	router.HandleFunc("/api/devices/{serial}/bench-test-status", srv.handleStatus).Methods(http.MethodPut)

	log.Printf("fake device master listening on %s (strict=%t fail_rate=%.2f)", addr, srv.strict, srv.failRate)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeDeviceMaster) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeDeviceMaster) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"devices":    len(s.devices),
		"calls":      s.calls,
		"failed":     s.failed,
	})
}

func (s *fakeDeviceMaster) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.devices[mux.Vars(r)["serial"]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *fakeDeviceMaster) handleVerified(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BenchTestVerified bool      `json:"benchTestVerified"`
		VerifiedAt        time.Time `json:"benchTestVerifiedDateTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.update(w, r, "verified", func(record *deviceRecord) {
		record.BenchTestVerified = body.BenchTestVerified
		at := body.VerifiedAt
		record.VerifiedAt = &at
		record.UpdatedAt = at
	})
}

func (s *fakeDeviceMaster) handleStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BenchTestStatusCode string    `json:"benchTestStatusCode"`
		UpdatedAt           time.Time `json:"updateDateTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.update(w, r, "status", func(record *deviceRecord) {
		record.BenchTestStatusCode = body.BenchTestStatusCode
		record.UpdatedAt = body.UpdatedAt
	})
}

// update applies mutate to the device record, creating it unless strict.
func (s *fakeDeviceMaster) update(w http.ResponseWriter, r *http.Request, kind string, mutate func(*deviceRecord)) {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	serial := mux.Vars(r)["serial"]

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[kind]++
	if s.failRate > 0 && rand.Float64() < s.failRate {
		s.failed++
		http.Error(w, "injected failure", http.StatusServiceUnavailable)
		return
	}
	record, ok := s.devices[serial]
	if !ok {
		if s.strict {
			http.NotFound(w, r)
			return
		}
		record = &deviceRecord{SerialNumber: serial}
		s.devices[serial] = record
	}
	mutate(record)
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
