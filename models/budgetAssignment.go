package models

import (
	"context"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// BudgetAssignment allocates a slice of a project's budget to one week,
// building the week-by-week budget curve actuals are compared against.
type BudgetAssignment struct {
	ID           int              `gorm:"primary_key" json:"id"`
	YearWeekID   int              `gorm:"not null" json:"year_week_id" binding:"required"`
	YearWeek     *YearWeek        `gorm:"foreignKey:YearWeekID" json:"year_week,omitempty"`
	AssignedToID int              `gorm:"not null;index" json:"assigned_to_id" binding:"required"`
	AssignedTo   *Project         `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`
	Budget       *decimal.Decimal `gorm:"type:decimal(12,2)" json:"budget"`
	Description  string           `gorm:"size:255" json:"description"`
	Added        time.Time        `gorm:"autoCreateTime" json:"added"`
	AddedByID    *int             `json:"added_by_id"`
}

type NewBudgetAssignment struct {
	YearWeekId   int              `json:"year_week_id" binding:"required"`
	AssignedToId int              `json:"assigned_to_id" binding:"required"`
	Budget       *decimal.Decimal `json:"budget"`
	Description  string           `json:"description"`
}

func (input *NewBudgetAssignment) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Project](ctx, input.AssignedToId); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[YearWeek](ctx, input.YearWeekId); err != nil {
		return err
	}
	if err := utils.ValidateNonNegativePtr("budget", input.Budget); err != nil {
		return err
	}
	return nil
}

func CreateBudgetAssignment(ctx context.Context, input *NewBudgetAssignment) (*BudgetAssignment, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	assignment := BudgetAssignment{
		YearWeekID:   input.YearWeekId,
		AssignedToID: input.AssignedToId,
		Budget:       utils.RoundAmountPtr(input.Budget),
		Description:  input.Description,
		AddedByID:    utils.ActingPersonId(ctx),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&assignment).Error; err != nil {
		return nil, err
	}
	return &assignment, nil
}

func UpdateBudgetAssignment(ctx context.Context, id int, input *NewBudgetAssignment) (*BudgetAssignment, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	assignment, err := utils.FetchModel[BudgetAssignment](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(assignment).Updates(map[string]interface{}{
		"YearWeekID":   input.YearWeekId,
		"AssignedToID": input.AssignedToId,
		"Budget":       utils.RoundAmountPtr(input.Budget),
		"Description":  input.Description,
	}).Error
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func DeleteBudgetAssignment(ctx context.Context, id int) (*BudgetAssignment, error) {

	assignment, err := utils.FetchModel[BudgetAssignment](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(assignment).Error; err != nil {
		return nil, err
	}
	return assignment, nil
}

func GetBudgetAssignment(ctx context.Context, id int) (*BudgetAssignment, error) {

	return utils.FetchModel[BudgetAssignment](ctx, id, "YearWeek")
}

// GetBudgetAssignmentsForProject lists the budget curve on the week axis.
func GetBudgetAssignmentsForProject(ctx context.Context, projectId int) ([]*BudgetAssignment, error) {

	db := config.GetDB()
	var results []*BudgetAssignment
	err := db.WithContext(ctx).
		Joins("JOIN year_weeks ON year_weeks.id = budget_assignments.year_week_id").
		Where("budget_assignments.assigned_to_id = ?", projectId).
		Order("year_weeks.year, year_weeks.week, budget_assignments.added, budget_assignments.id").
		Preload("YearWeek").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetBudgetTimeline builds the sorted week-budget timeline for one
// project, resolved with the same latest-as-of rule as capacities.
func GetBudgetTimeline(ctx context.Context, projectId int) (*Timeline[decimal.Decimal], error) {

	assignments, err := GetBudgetAssignmentsForProject(ctx, projectId)
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry[decimal.Decimal], 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.Budget == nil || assignment.YearWeek == nil {
			continue
		}
		entries = append(entries, TimelineEntry[decimal.Decimal]{
			Year:  assignment.YearWeek.Year,
			Week:  assignment.YearWeek.Week,
			Added: assignment.Added,
			Id:    assignment.ID,
			Value: *assignment.Budget,
		})
	}
	return NewTimeline(entries), nil
}

// EffectiveWeekBudget resolves the week budget in force for (year, week),
// zero when the project has no budget curve yet.
func EffectiveWeekBudget(ctx context.Context, projectId, year, week int) (decimal.Decimal, error) {

	timeline, err := GetBudgetTimeline(ctx, projectId)
	if err != nil {
		return decimal.Zero, err
	}
	budget, ok := timeline.AsOf(year, week)
	if !ok {
		return decimal.Zero, nil
	}
	return budget, nil
}
