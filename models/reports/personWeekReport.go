package reports

import (
	"context"

	"github.com/nens/trs_backend/models"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// PersonWeekRow compares one person's booked hours against the plan and
// the capacity in force for a single week.
type PersonWeekRow struct {
	Year         int             `json:"year"`
	Week         int             `json:"week"`
	BookedHours  decimal.Decimal `json:"booked_hours"`
	PlannedHours decimal.Decimal `json:"planned_hours"`
	HoursPerWeek decimal.Decimal `json:"hours_per_week"`
}

// GetPersonWeekReport sweeps one person's weeks in [from, to]: booked
// hours summed per week, planned hours from the work assignments, and
// the effective capacity resolved against one preloaded timeline.
func GetPersonWeekReport(ctx context.Context, personId, fromYear, fromWeek, toYear, toWeek int) ([]*PersonWeekRow, error) {

	weeks, err := models.GetYearWeeksBetween(ctx, fromYear, fromWeek, toYear, toWeek)
	if err != nil {
		return nil, err
	}

	bookings, err := models.GetBookingsForPerson(ctx, personId, fromYear, fromWeek, toYear, toWeek)
	if err != nil {
		return nil, err
	}
	bookedByWeek := make(map[int]decimal.Decimal, len(weeks))
	for _, booking := range bookings {
		if booking.Hours == nil || booking.YearWeek == nil {
			continue
		}
		key := models.WeekKey(booking.YearWeek.Year, booking.YearWeek.Week)
		bookedByWeek[key] = bookedByWeek[key].Add(*booking.Hours)
	}

	assignments, err := models.GetWorkAssignmentsForPerson(ctx, personId)
	if err != nil {
		return nil, err
	}
	plannedByWeek := make(map[int]decimal.Decimal, len(weeks))
	for _, assignment := range assignments {
		if assignment.Hours == nil || assignment.YearWeek == nil {
			continue
		}
		key := models.WeekKey(assignment.YearWeek.Year, assignment.YearWeek.Week)
		plannedByWeek[key] = plannedByWeek[key].Add(*assignment.Hours)
	}

	capacity, err := models.GetCapacityTimeline(ctx, personId)
	if err != nil {
		return nil, err
	}

	rows := make([]*PersonWeekRow, 0, len(weeks))
	for _, week := range weeks {
		key := models.WeekKey(week.Year, week.Week)
		hoursPerWeek := decimal.Zero
		if value, ok := capacity.AsOf(week.Year, week.Week); ok {
			hoursPerWeek = utils.DereferencePtr(value.HoursPerWeek, decimal.Zero)
		}
		rows = append(rows, &PersonWeekRow{
			Year:         week.Year,
			Week:         week.Week,
			BookedHours:  utils.RoundAmount(bookedByWeek[key]),
			PlannedHours: utils.RoundAmount(plannedByWeek[key]),
			HoursPerWeek: hoursPerWeek,
		})
	}
	return rows, nil
}
