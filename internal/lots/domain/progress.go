package lots

import benchtest "devicelab/internal/benchtest/domain"

// DefaultRequiredPercentage is used when no percentage is configured.
const DefaultRequiredPercentage = 2

// Progress is how far a lot's bench test sampling has got.
type Progress struct {
	LotSize            int  `json:"lotSize"`
	SuccessCount       int  `json:"successCount"`
	TestedCount        int  `json:"testedCount"`
	PercentTested      int  `json:"percentTested"`
	RequiredPercentage int  `json:"requiredPercentage"`
	RequiredCount      int  `json:"requiredCount"`
	MeetsRequirement   bool `json:"meetsRequirement"`
}

// CalculatePercentTested returns tested/size as a percentage rounded half up.
// An empty lot is 0 percent tested.
func CalculatePercentTested(tested, size int) int {
	if size <= 0 || tested <= 0 {
		return 0
	}
	return (200*tested + size) / (2 * size)
}

// CalculateRequiredCount returns how many devices must be tested to reach
// percentage of size, rounded up.
func CalculateRequiredCount(percentage, size int) int {
	if size <= 0 || percentage <= 0 {
		return 0
	}
	return (percentage*size + 99) / 100
}

// ComputeProgress derives progress from a lot's device statuses.
func ComputeProgress(statuses []benchtest.DeviceStatus, requiredPercentage int) Progress {
	summary := benchtest.Summarize(statuses)
	required := CalculateRequiredCount(requiredPercentage, summary.Total)
	return Progress{
		LotSize:            summary.Total,
		SuccessCount:       summary.SuccessCount,
		TestedCount:        summary.TestedCount,
		PercentTested:      CalculatePercentTested(summary.TestedCount, summary.Total),
		RequiredPercentage: requiredPercentage,
		RequiredCount:      required,
		MeetsRequirement:   summary.TestedCount > 0 && summary.TestedCount >= required,
	}
}

// ValidatePercentage checks a required percentage.
func ValidatePercentage(percentage int) error {
	if percentage < 0 || percentage > 100 {
		return InvalidRequestf("requiredPercentage must be between 0 and 100")
	}
	return nil
}
