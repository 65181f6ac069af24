package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "devicelab_"

	resultSuccess = "success"
	resultError   = "error"

	pollResultComplete = "complete"
	pollResultPending  = "pending"
	pollResultError    = "error"

	verifyResultSuccess = "success"
	verifyResultPartial = "partial"
	verifyResultFailed  = "failed"
	verifyResultError   = "error"
)

var (
	registerOnce sync.Once

	transitionsTotal *prometheus.CounterVec

	pollChecksTotal  *prometheus.CounterVec
	pollCheckLatency *prometheus.HistogramVec
	activePolls      prometheus.Gauge

	verifyTotal         *prometheus.CounterVec
	verifyLatency       *prometheus.HistogramVec
	verifyDeviceUpdates *prometheus.CounterVec

	deviceStatusReports *prometheus.CounterVec

	reportExportTotal *prometheus.CounterVec
)

// Init registers service metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		transitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "board_transitions_total",
				Help: "Board state machine transitions by transition and result",
			},
			[]string{"transition", "result"},
		)

		pollChecksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "board_poll_checks_total",
				Help: "Completion checks by trigger and result",
			},
			[]string{"trigger", "result"},
		)
		pollCheckLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "board_poll_check_latency_seconds",
				Help:    "Completion check latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		)
		activePolls = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "board_polls_active",
				Help: "Boards currently being polled for completion",
			},
		)

		verifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lot_verify_total",
				Help: "Lot verification calls by result",
			},
			[]string{"result"},
		)
		verifyLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "lot_verify_latency_seconds",
				Help:    "Lot verification latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		verifyDeviceUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lot_verify_device_updates_total",
				Help: "Per-device verification writes by result",
			},
			[]string{"result"},
		)

		deviceStatusReports = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_status_reports_total",
				Help: "Device bench test status reports by source and result",
			},
			[]string{"source", "result"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Report exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			transitionsTotal,
			pollChecksTotal,
			pollCheckLatency,
			activePolls,
			verifyTotal,
			verifyLatency,
			verifyDeviceUpdates,
			deviceStatusReports,
			reportExportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveTransition counts a board transition attempt.
func ObserveTransition(transition string, err error) {
	if transition == "" {
		transition = "unknown"
	}
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(transition, resultOf(err)).Inc()
	}
}

// ObservePollCheck records a completion check.
func ObservePollCheck(trigger string, complete bool, err error, duration time.Duration) {
	if trigger == "" {
		trigger = "unknown"
	}
	result := pollResultPending
	switch {
	case err != nil:
		result = pollResultError
	case complete:
		result = pollResultComplete
	}
	if pollChecksTotal != nil {
		pollChecksTotal.WithLabelValues(trigger, result).Inc()
	}
	if pollCheckLatency != nil {
		pollCheckLatency.WithLabelValues(trigger).Observe(duration.Seconds())
	}
}

// SetActivePolls sets the number of boards being polled.
func SetActivePolls(count int) {
	if count < 0 {
		count = 0
	}
	if activePolls != nil {
		activePolls.Set(float64(count))
	}
}

// ObserveVerify records a lot verification call.
func ObserveVerify(succeeded, failed int, err error, duration time.Duration) {
	result := verifyResultSuccess
	switch {
	case err != nil:
		result = verifyResultError
	case failed > 0 && succeeded == 0:
		result = verifyResultFailed
	case failed > 0:
		result = verifyResultPartial
	}
	if verifyTotal != nil {
		verifyTotal.WithLabelValues(result).Inc()
	}
	if verifyLatency != nil {
		verifyLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if verifyDeviceUpdates != nil {
		if succeeded > 0 {
			verifyDeviceUpdates.WithLabelValues(resultSuccess).Add(float64(succeeded))
		}
		if failed > 0 {
			verifyDeviceUpdates.WithLabelValues(resultError).Add(float64(failed))
		}
	}
}

// IncDeviceStatusReport counts a device status report.
func IncDeviceStatusReport(source string, err error) {
	if source == "" {
		source = "unknown"
	}
	if deviceStatusReports != nil {
		deviceStatusReports.WithLabelValues(source, resultOf(err)).Inc()
	}
}

// IncReportExport counts a report export.
func IncReportExport(format string, err error) {
	if format == "" {
		format = "unknown"
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, resultOf(err)).Inc()
	}
}

func resultOf(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// Exported constants for callers.
const (
	TriggerTick     = "tick"
	TriggerOnDemand = "on_demand"

	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)
