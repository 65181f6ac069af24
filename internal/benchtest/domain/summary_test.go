package benchtest

import (
	"errors"
	"testing"
)

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.SuccessCount != 0 || summary.TestedCount != 0 || summary.Total != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
	if !summary.AllTerminal() {
		t.Fatalf("expected empty summary to be vacuously terminal")
	}
}

func TestSummarizeCounts(t *testing.T) {
	statuses := []DeviceStatus{
		DeviceQueued, DeviceConfigUpdating, DeviceRunning,
		DeviceCompleted, DeviceCompleted, DeviceError, DeviceFirmwareError,
	}
	summary := Summarize(statuses)
	if summary.SuccessCount != 2 {
		t.Fatalf("expected 2 successes, got %d", summary.SuccessCount)
	}
	if summary.TestedCount != 4 {
		t.Fatalf("expected 4 tested, got %d", summary.TestedCount)
	}
	if summary.InProgressCount != 3 {
		t.Fatalf("expected 3 in progress, got %d", summary.InProgressCount)
	}
	if summary.AllTerminal() {
		t.Fatalf("expected not all terminal")
	}
}

func TestSummarizeBounds(t *testing.T) {
	all := []DeviceStatus{DeviceQueued, DeviceConfigUpdating, DeviceRunning, DeviceCompleted, DeviceError, DeviceFirmwareError}
	// every list of up to three statuses drawn from the domain
	var lists [][]DeviceStatus
	for _, a := range all {
		lists = append(lists, []DeviceStatus{a})
		for _, b := range all {
			lists = append(lists, []DeviceStatus{a, b})
			for _, c := range all {
				lists = append(lists, []DeviceStatus{a, b, c})
			}
		}
	}
	for _, list := range lists {
		summary := Summarize(list)
		if summary.TestedCount < summary.SuccessCount {
			t.Fatalf("tested < success for %v: %+v", list, summary)
		}
		if summary.TestedCount > len(list) || summary.SuccessCount > len(list) {
			t.Fatalf("counts exceed length for %v: %+v", list, summary)
		}
		if summary.TestedCount+summary.InProgressCount != len(list) {
			t.Fatalf("counts do not partition %v: %+v", list, summary)
		}
	}
}

func TestAllTerminalScenario(t *testing.T) {
	devices := []BoardDevice{
		{SerialNumber: "A", Status: DeviceCompleted},
		{SerialNumber: "B", Status: DeviceCompleted},
		{SerialNumber: "C", Status: DeviceRunning},
	}
	if AllTerminal(devices) {
		t.Fatalf("expected running device to block completion")
	}
	devices[2].Status = DeviceFirmwareError
	if !AllTerminal(devices) {
		t.Fatalf("expected all terminal")
	}
}

func TestParseDeviceStatus(t *testing.T) {
	cases := map[string]DeviceStatus{
		"Completed":       DeviceCompleted,
		"firmware_error":  DeviceFirmwareError,
		"Config Updating": DeviceConfigUpdating,
		" QUEUED ":        DeviceQueued,
	}
	for input, want := range cases {
		got, err := ParseDeviceStatus(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", input, want, got)
		}
	}
	if _, err := ParseDeviceStatus("Exploded"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestTransitionCheck(t *testing.T) {
	board := &Board{ID: 1, Status: StatusOpen}
	if err := TransitionStart.Check(board); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected empty board start to fail, got %v", err)
	}
	board.DeviceCount = 2
	if err := TransitionStart.Check(board); err != nil {
		t.Fatalf("expected start allowed, got %v", err)
	}
	if err := TransitionStop.Check(board); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected stop from open to fail, got %v", err)
	}
	if err := TransitionClear.Check(nil); !errors.Is(err, ErrBoardNotFound) {
		t.Fatalf("expected not found for nil board, got %v", err)
	}
	if err := board.CanDelete(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected delete of loaded board to fail, got %v", err)
	}
}
