package reports

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportOrganisationBudgetExcel renders the organisation budget report
// as a spreadsheet, one row per accepted project.
func ExportOrganisationBudgetExcel(ctx context.Context, toYear, toWeek int) (*excelize.File, error) {

	report, err := GetOrganisationBudgetReport(ctx, toYear, toWeek)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	// Add headers
	headings := []string{
		"Code", "ContractAmount", "Reservation", "Profit",
		"SoftwareDevelopment", "PlannedCost", "ActualCost",
		"ThirdPartyEstimated", "ThirdPartyInvoiced", "RemainingBudget",
	}
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	// Add data
	for i, row := range report.Projects {
		rowNo := fmt.Sprint(i + 2)
		f.SetCellValue(sheetName, "A"+rowNo, row.Code)
		f.SetCellValue(sheetName, "B"+rowNo, row.ContractAmount.InexactFloat64())
		f.SetCellValue(sheetName, "C"+rowNo, row.Reservation.InexactFloat64())
		f.SetCellValue(sheetName, "D"+rowNo, row.Profit.InexactFloat64())
		f.SetCellValue(sheetName, "E"+rowNo, row.SoftwareDevelopment.InexactFloat64())
		f.SetCellValue(sheetName, "F"+rowNo, row.PlannedCost.InexactFloat64())
		f.SetCellValue(sheetName, "G"+rowNo, row.ActualCost.InexactFloat64())
		f.SetCellValue(sheetName, "H"+rowNo, row.ThirdPartyEstimated.InexactFloat64())
		f.SetCellValue(sheetName, "I"+rowNo, row.ThirdPartyInvoiced.InexactFloat64())
		f.SetCellValue(sheetName, "J"+rowNo, row.RemainingBudget.InexactFloat64())
	}

	// Totals row
	totalRow := fmt.Sprint(len(report.Projects) + 2)
	f.SetCellValue(sheetName, "A"+totalRow, "Total")
	f.SetCellValue(sheetName, "F"+totalRow, report.TotalPlannedCost.InexactFloat64())
	f.SetCellValue(sheetName, "G"+totalRow, report.TotalActualCost.InexactFloat64())
	f.SetCellValue(sheetName, "J"+totalRow, report.TotalRemainingBudget.InexactFloat64())

	return f, nil
}
