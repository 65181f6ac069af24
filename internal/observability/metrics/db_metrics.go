package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(collectors.NewDBStatsCollector(db, "devicelab"))

	for _, status := range []string{"Open", "Running", "Complete"} {
		status := status
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "boards",
				Help:        "Boards by status",
				ConstLabels: prometheus.Labels{"status": status},
			},
			func() float64 {
				return queryCount(db, logger, "SELECT COUNT(*) FROM bench_test_boards WHERE status = $1", status)
			},
		))
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "board_devices_in_progress",
			Help: "Devices on boards that have not reached a terminal bench test status",
		},
		func() float64 {
			return queryCount(db, logger, `
SELECT COUNT(*) FROM bench_test_board_devices
WHERE bench_test_status_code NOT IN ('Completed', 'Error', 'FirmwareError')`)
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string, args ...any) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query, args...).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
