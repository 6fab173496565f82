package reports

import (
	"context"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/models"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// ProjectBudgetReport is the budget/actuals position of one project up
// to a cutoff week.
type ProjectBudgetReport struct {
	ProjectId           int             `json:"project_id"`
	Code                string          `json:"code"`
	Slug                string          `json:"slug"`
	IsAccepted          bool            `json:"is_accepted"`
	ContractAmount      decimal.Decimal `json:"contract_amount"`
	Reservation         decimal.Decimal `json:"reservation"`
	Profit              decimal.Decimal `json:"profit"`
	SoftwareDevelopment decimal.Decimal `json:"software_development"`
	PlannedCost         decimal.Decimal `json:"planned_cost"`
	ActualCost          decimal.Decimal `json:"actual_cost"`
	ThirdPartyEstimated decimal.Decimal `json:"third_party_estimated"`
	ThirdPartyInvoiced  decimal.Decimal `json:"third_party_invoiced"`
	RemainingBudget     decimal.Decimal `json:"remaining_budget"`
}

// remainingBudget applies the budget formula: contract amount minus the
// reserved/returned slices, the actual cost and the estimated external
// costs. Exact decimal arithmetic, rounded once at the end.
func remainingBudget(project *models.Project, actualCost, thirdParty decimal.Decimal) decimal.Decimal {
	remaining := project.ContractAmount.
		Sub(project.Reservation).
		Sub(project.Profit).
		Sub(project.SoftwareDevelopment).
		Sub(actualCost).
		Sub(thirdParty)
	return utils.RoundAmount(remaining)
}

// plannedCost totals hours x tariff over the project's work assignments
// up to the cutoff week. Rows without hours or tariff contribute
// nothing.
func plannedCost(ctx context.Context, projectId, toYear, toWeek int) (decimal.Decimal, error) {

	sql := `
SELECT
    COALESCE(SUM(wa.hours * wa.hourly_tariff), 0)
FROM
    work_assignments wa
    JOIN year_weeks yw ON yw.id = wa.year_week_id
WHERE
    wa.assigned_on_id = ?
    AND wa.hours IS NOT NULL
    AND wa.hourly_tariff IS NOT NULL
    AND (yw.year * 100 + yw.week) <= ?
`
	db := config.GetDB()
	var total decimal.Decimal
	if err := db.WithContext(ctx).Raw(sql, projectId, models.WeekKey(toYear, toWeek)).
		Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// actualCost totals booking hours x the booker's effective tariff for
// the booked week. Tariff timelines are fetched once per person and
// reused across that person's bookings.
func actualCost(ctx context.Context, projectId, toYear, toWeek int) (decimal.Decimal, error) {

	bookings, err := models.GetBookingsForProject(ctx, projectId, toYear, toWeek)
	if err != nil {
		return decimal.Zero, err
	}

	timelines := make(map[int]*models.Timeline[decimal.Decimal])
	total := decimal.Zero
	for _, booking := range bookings {
		if booking.Hours == nil || booking.YearWeek == nil {
			continue
		}
		timeline, ok := timelines[booking.BookedByID]
		if !ok {
			timeline, err = models.GetTariffTimeline(ctx, booking.BookedByID, projectId)
			if err != nil {
				return decimal.Zero, err
			}
			timelines[booking.BookedByID] = timeline
		}
		tariff, ok := timeline.AsOf(booking.YearWeek.Year, booking.YearWeek.Week)
		if !ok {
			continue
		}
		total = total.Add(booking.Hours.Mul(tariff))
	}
	return total, nil
}

// GetProjectBudgetReport computes one project's position up to and
// including the cutoff week.
func GetProjectBudgetReport(ctx context.Context, projectId, toYear, toWeek int) (*ProjectBudgetReport, error) {

	project, err := models.GetProject(ctx, projectId)
	if err != nil {
		return nil, err
	}

	planned, err := plannedCost(ctx, projectId, toYear, toWeek)
	if err != nil {
		return nil, err
	}
	actual, err := actualCost(ctx, projectId, toYear, toWeek)
	if err != nil {
		return nil, err
	}
	thirdParty, err := models.SumThirdPartyEstimates(ctx, projectId)
	if err != nil {
		return nil, err
	}
	// invoiced external costs are shown next to the estimates they
	// realise; the remaining-budget formula subtracts the estimates
	invoiced, err := models.SumPayables(ctx, projectId)
	if err != nil {
		return nil, err
	}

	return &ProjectBudgetReport{
		ProjectId:           project.ID,
		Code:                project.Code,
		Slug:                project.Slug,
		IsAccepted:          utils.DereferencePtr(project.IsAccepted),
		ContractAmount:      project.ContractAmount,
		Reservation:         project.Reservation,
		Profit:              project.Profit,
		SoftwareDevelopment: project.SoftwareDevelopment,
		PlannedCost:         utils.RoundAmount(planned),
		ActualCost:          utils.RoundAmount(actual),
		ThirdPartyEstimated: utils.RoundAmount(thirdParty),
		ThirdPartyInvoiced:  utils.RoundAmount(invoiced),
		RemainingBudget:     remainingBudget(project, actual, thirdParty),
	}, nil
}

// OrganisationBudgetReport rolls the accepted projects up into one
// portfolio view. Draft projects stay individually computable but do
// not count here.
type OrganisationBudgetReport struct {
	Projects             []*ProjectBudgetReport `json:"projects"`
	TotalPlannedCost     decimal.Decimal        `json:"total_planned_cost"`
	TotalActualCost      decimal.Decimal        `json:"total_actual_cost"`
	TotalRemainingBudget decimal.Decimal        `json:"total_remaining_budget"`
}

func GetOrganisationBudgetReport(ctx context.Context, toYear, toWeek int) (*OrganisationBudgetReport, error) {

	projects, err := models.GetAcceptedProjects(ctx)
	if err != nil {
		return nil, err
	}

	report := &OrganisationBudgetReport{
		TotalPlannedCost:     decimal.Zero,
		TotalActualCost:      decimal.Zero,
		TotalRemainingBudget: decimal.Zero,
	}
	for _, project := range projects {
		row, err := GetProjectBudgetReport(ctx, project.ID, toYear, toWeek)
		if err != nil {
			return nil, err
		}
		report.Projects = append(report.Projects, row)
		report.TotalPlannedCost = report.TotalPlannedCost.Add(row.PlannedCost)
		report.TotalActualCost = report.TotalActualCost.Add(row.ActualCost)
		report.TotalRemainingBudget = report.TotalRemainingBudget.Add(row.RemainingBudget)
	}
	return report, nil
}
