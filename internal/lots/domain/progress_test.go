package lots

import (
	"errors"
	"testing"

	benchtest "devicelab/internal/benchtest/domain"
)

func TestCalculatePercentTested(t *testing.T) {
	cases := []struct {
		tested, size, want int
	}{
		{5, 10, 50},
		{1, 3, 33},
		{2, 3, 67},
		{10, 0, 0},
		{100, 100, 100},
		{1, 8, 13},
		{0, 5, 0},
	}
	for _, tc := range cases {
		if got := CalculatePercentTested(tc.tested, tc.size); got != tc.want {
			t.Fatalf("CalculatePercentTested(%d, %d) = %d, want %d", tc.tested, tc.size, got, tc.want)
		}
	}
}

func TestCalculateRequiredCount(t *testing.T) {
	cases := []struct {
		percentage, size, want int
	}{
		{2, 100, 2},
		{2, 99, 2},
		{1, 1, 1},
		{0, 100, 0},
		{2, 0, 0},
		{100, 7, 7},
		{33, 10, 4},
	}
	for _, tc := range cases {
		if got := CalculateRequiredCount(tc.percentage, tc.size); got != tc.want {
			t.Fatalf("CalculateRequiredCount(%d, %d) = %d, want %d", tc.percentage, tc.size, got, tc.want)
		}
	}
}

func TestRequiredCountNeverTruncates(t *testing.T) {
	for size := 1; size <= 200; size++ {
		for pct := 0; pct <= 100; pct++ {
			got := CalculateRequiredCount(pct, size)
			if got*100 < pct*size {
				t.Fatalf("(%d, %d) = %d falls short", pct, size, got)
			}
			if got > 0 && (got-1)*100 >= pct*size {
				t.Fatalf("(%d, %d) = %d is not the ceiling", pct, size, got)
			}
		}
	}
}

func TestComputeProgressSampledLot(t *testing.T) {
	statuses := make([]benchtest.DeviceStatus, 100)
	for i := range statuses {
		statuses[i] = benchtest.DeviceQueued
	}
	statuses[3] = benchtest.DeviceCompleted
	statuses[40] = benchtest.DeviceCompleted

	progress := ComputeProgress(statuses, DefaultRequiredPercentage)
	if progress.LotSize != 100 || progress.TestedCount != 2 || progress.SuccessCount != 2 {
		t.Fatalf("unexpected counts %+v", progress)
	}
	if progress.PercentTested != 2 || progress.RequiredCount != 2 || !progress.MeetsRequirement {
		t.Fatalf("unexpected progress %+v", progress)
	}
}

func TestParseLotType(t *testing.T) {
	if got, err := ParseLotType("rma"); err != nil || got != LotRMA {
		t.Fatalf("expected RMA, got %q %v", got, err)
	}
	if got, err := ParseLotType(""); err != nil || got != "" {
		t.Fatalf("expected empty type accepted, got %q %v", got, err)
	}
	if _, err := ParseLotType("Bogus"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}
