package http

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	lots "devicelab/internal/lots/domain"
)

// BuildVerificationPDF renders a verification result with one row per device.
func BuildVerificationPDF(result lots.VerificationResult) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Bench Test Verification: Lot %d (%s)", result.LotSeqID, result.LotType))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Devices in lot: %d  Updated: %d  Failed: %d",
		result.TotalDevices, result.SuccessfulUpdates, result.FailedUpdates))
	pdf.Ln(5)
	marked := "no"
	if result.LotMarkedComplete {
		marked = "yes"
	}
	pdf.Cell(0, 6, fmt.Sprintf("Lot marked bench test complete: %s", marked))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Serial Number", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Result", "1", 0, "C", false, 0, "")
	pdf.CellFormat(95, 6, "Error", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, r := range result.Results {
		outcome := "OK"
		if !r.Success {
			outcome = "FAILED"
		}
		pdf.CellFormat(60, 6, r.SerialNumber, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, outcome, "1", 0, "C", false, 0, "")
		pdf.CellFormat(95, 6, r.ErrorMessage, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
