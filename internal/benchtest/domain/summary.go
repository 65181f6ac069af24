package benchtest

// Summary counts bench test outcomes over a set of devices.
type Summary struct {
	Total           int `json:"total"`
	SuccessCount    int `json:"successCount"`
	TestedCount     int `json:"testedCount"`
	InProgressCount int `json:"inProgressCount"`
}

// Summarize classifies statuses. Completed devices count as successes, all
// terminal devices count as tested, everything else is in progress.
func Summarize(statuses []DeviceStatus) Summary {
	summary := Summary{Total: len(statuses)}
	for _, status := range statuses {
		if !status.IsTerminal() {
			summary.InProgressCount++
			continue
		}
		summary.TestedCount++
		if status.IsSuccess() {
			summary.SuccessCount++
		}
	}
	return summary
}

// SummarizeDevices summarizes board device rows.
func SummarizeDevices(devices []BoardDevice) Summary {
	statuses := make([]DeviceStatus, len(devices))
	for i, device := range devices {
		statuses[i] = device.Status
	}
	return Summarize(statuses)
}

// AllTerminal reports whether no device in the summary is still in progress.
// An empty summary is vacuously terminal; callers treat an empty running
// board as a configuration error.
func (s Summary) AllTerminal() bool {
	return s.TestedCount == s.Total
}

// AllTerminal reports whether every device has reached a terminal status.
func AllTerminal(devices []BoardDevice) bool {
	return SummarizeDevices(devices).AllTerminal()
}
