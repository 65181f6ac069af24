package mqtt

import (
	"context"
	"errors"
	"testing"

	"devicelab/internal/benchtest/application"
	benchtest "devicelab/internal/benchtest/domain"
	"devicelab/internal/config"
)

type recordingReporter struct {
	reports []application.StatusReport
	err     error
}

func (r *recordingReporter) ReportDeviceStatus(_ context.Context, report application.StatusReport) (*benchtest.BoardDevice, error) {
	r.reports = append(r.reports, report)
	if r.err != nil {
		return nil, r.err
	}
	return &benchtest.BoardDevice{BoardID: report.BoardID, SerialNumber: report.SerialNumber}, nil
}

func TestParseStatusMessage(t *testing.T) {
	report, err := ParseStatusMessage("benchtest/12/SN-0042/status", []byte(`{"status":"Completed"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if report.BoardID != 12 || report.SerialNumber != "SN-0042" || report.Status != "Completed" || report.Source != "mqtt" {
		t.Fatalf("unexpected report %+v", report)
	}

	cases := []struct {
		topic   string
		payload string
	}{
		{"benchtest/12/SN-1", `{"status":"Completed"}`},
		{"benchtest/abc/SN-1/status", `{"status":"Completed"}`},
		{"benchtest/0/SN-1/status", `{"status":"Completed"}`},
		{"benchtest/12//status", `{"status":"Completed"}`},
		{"benchtest/12/SN-1/telemetry", `{"status":"Completed"}`},
		{"benchtest/12/SN-1/status", `Completed`},
		{"benchtest/12/SN-1/status", `{}`},
	}
	for _, tc := range cases {
		if _, err := ParseStatusMessage(tc.topic, []byte(tc.payload)); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("%s %s: expected invalid message, got %v", tc.topic, tc.payload, err)
		}
	}
}

func TestHandleReportsStatus(t *testing.T) {
	reporter := &recordingReporter{}
	consumer, err := NewStatusConsumer(config.MQTTConfig{Broker: "tcp://localhost:1883"}, reporter, nil)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := consumer.Handle(context.Background(), "benchtest/3/SN-7/status", []byte(`{"status":"Firmware Error"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(reporter.reports) != 1 || reporter.reports[0].BoardID != 3 {
		t.Fatalf("unexpected reports %+v", reporter.reports)
	}

	if err := consumer.Handle(context.Background(), "bad/topic", nil); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected invalid message, got %v", err)
	}
	if len(reporter.reports) != 1 {
		t.Fatalf("invalid message must not be reported")
	}

	reporter.err = benchtest.ErrDeviceNotFound
	if err := consumer.Handle(context.Background(), "benchtest/3/SN-8/status", []byte(`{"status":"Running"}`)); !errors.Is(err, benchtest.ErrDeviceNotFound) {
		t.Fatalf("expected reporter error, got %v", err)
	}
}

func TestNewStatusConsumerValidates(t *testing.T) {
	if _, err := NewStatusConsumer(config.MQTTConfig{}, &recordingReporter{}, nil); err == nil {
		t.Fatalf("expected broker required")
	}
	if _, err := NewStatusConsumer(config.MQTTConfig{Broker: "tcp://x:1883"}, nil, nil); err == nil {
		t.Fatalf("expected reporter required")
	}
}
