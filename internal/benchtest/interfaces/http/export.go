package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"devicelab/internal/benchtest/application"
)

// BuildBoardReportPDF renders a board and its devices.
func BuildBoardReportPDF(report *application.BoardReport) ([]byte, error) {
	board := report.Board
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Bench Test Board %d", board.ID))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Name: %s", board.Name))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Location: %s", board.LocationCode))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", board.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Updated: %s", board.UpdatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Devices: %d  Tested: %d  Passed: %d  In progress: %d",
		report.Summary.Total, report.Summary.TestedCount, report.Summary.SuccessCount, report.Summary.InProgressCount))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(20, 6, "Slot", "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 6, "Serial Number", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Updated", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, device := range report.Devices {
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", device.LocationOnBoard), "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, device.SerialNumber, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, string(device.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, device.UpdatedAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBoardReportXLSX renders a board summary sheet and a devices sheet.
func BuildBoardReportXLSX(report *application.BoardReport) ([]byte, error) {
	board := report.Board
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "board"
	devicesSheet := "devices"
	_ = f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(devicesSheet); err != nil {
		return nil, err
	}

	rows := [][2]any{
		{"Board", board.ID},
		{"Name", board.Name},
		{"Location", board.LocationCode},
		{"Owner", board.OwnerUserID},
		{"Status", string(board.Status)},
		{"Devices", report.Summary.Total},
		{"Tested", report.Summary.TestedCount},
		{"Passed", report.Summary.SuccessCount},
		{"In Progress", report.Summary.InProgressCount},
		{"Updated", board.UpdatedAt.Format(time.RFC3339)},
	}
	for i, row := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}

	_ = f.SetCellValue(devicesSheet, "A1", "Slot")
	_ = f.SetCellValue(devicesSheet, "B1", "Serial Number")
	_ = f.SetCellValue(devicesSheet, "C1", "Status")
	_ = f.SetCellValue(devicesSheet, "D1", "Updated")
	for i, device := range report.Devices {
		row := i + 2
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("A%d", row), device.LocationOnBoard)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("B%d", row), device.SerialNumber)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("C%d", row), string(device.Status))
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("D%d", row), device.UpdatedAt.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
