package lots

// DeviceUpdateResult is the outcome of one device's verified write.
type DeviceUpdateResult struct {
	SerialNumber string `json:"serialNumber"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// VerificationResult reports one Verify call. It is never persisted.
type VerificationResult struct {
	LotSeqID          int64                `json:"lotSeqId"`
	LotType           LotType              `json:"lotType"`
	TotalDevices      int                  `json:"totalDevices"`
	SuccessfulUpdates int                  `json:"successfulUpdates"`
	FailedUpdates     int                  `json:"failedUpdates"`
	Results           []DeviceUpdateResult `json:"results"`
	LotMarkedComplete bool                 `json:"lotMarkedComplete"`
}

// PartialFailure reports whether some but not all writes failed.
func (r VerificationResult) PartialFailure() bool {
	return r.FailedUpdates > 0 && r.SuccessfulUpdates > 0
}
