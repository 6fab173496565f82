package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WorkAssignment is the planned allocation of a person's hours (and
// billing tariff) to a project for one week. One row per
// (person, project, week) holds the current plan; editing the plan
// replaces the row's figures rather than appending history.
type WorkAssignment struct {
	ID           int              `gorm:"primary_key" json:"id"`
	YearWeekID   int              `gorm:"not null;uniqueIndex:uix_work_assignments_plan" json:"year_week_id" binding:"required"`
	YearWeek     *YearWeek        `gorm:"foreignKey:YearWeekID" json:"year_week,omitempty"`
	AssignedToID int              `gorm:"not null;uniqueIndex:uix_work_assignments_plan" json:"assigned_to_id" binding:"required"`
	AssignedTo   *Person          `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`
	AssignedOnID int              `gorm:"not null;uniqueIndex:uix_work_assignments_plan" json:"assigned_on_id" binding:"required"`
	AssignedOn   *Project         `gorm:"foreignKey:AssignedOnID" json:"assigned_on,omitempty"`
	Hours        *decimal.Decimal `gorm:"type:decimal(12,2)" json:"hours"`
	HourlyTariff *decimal.Decimal `gorm:"type:decimal(12,2)" json:"hourly_tariff"`
	Added        time.Time        `gorm:"autoCreateTime" json:"added"`
	AddedByID    *int             `json:"added_by_id"`
}

type NewWorkAssignment struct {
	YearWeekId   int              `json:"year_week_id" binding:"required"`
	AssignedToId int              `json:"assigned_to_id" binding:"required"`
	AssignedOnId int              `json:"assigned_on_id" binding:"required"`
	Hours        *decimal.Decimal `json:"hours"`
	HourlyTariff *decimal.Decimal `json:"hourly_tariff"`
}

func (input *NewWorkAssignment) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Person](ctx, input.AssignedToId); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Project](ctx, input.AssignedOnId); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[YearWeek](ctx, input.YearWeekId); err != nil {
		return err
	}
	if err := utils.ValidateNonNegativePtr("hours", input.Hours); err != nil {
		return err
	}
	if err := utils.ValidateNonNegativePtr("hourly_tariff", input.HourlyTariff); err != nil {
		return err
	}
	return nil
}

// UpsertWorkAssignment stores the plan for (person, project, week).
// An existing row is updated in place; otherwise a new row is created.
// The unique index resolves the create/create race: the loser of the
// race retries as an update.
func UpsertWorkAssignment(ctx context.Context, input *NewWorkAssignment) (*WorkAssignment, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()

	for attempt := 0; attempt < 2; attempt++ {
		var existing WorkAssignment
		err := db.WithContext(ctx).
			Where("assigned_to_id = ? AND assigned_on_id = ? AND year_week_id = ?",
				input.AssignedToId, input.AssignedOnId, input.YearWeekId).
			First(&existing).Error

		if err == nil {
			err = db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
				"Hours":        utils.RoundAmountPtr(input.Hours),
				"HourlyTariff": utils.RoundAmountPtr(input.HourlyTariff),
				"AddedByID":    utils.ActingPersonId(ctx),
			}).Error
			if err != nil {
				return nil, err
			}
			if err := clearTariffTimeline(input.AssignedToId, input.AssignedOnId); err != nil {
				return nil, err
			}
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		assignment := WorkAssignment{
			YearWeekID:   input.YearWeekId,
			AssignedToID: input.AssignedToId,
			AssignedOnID: input.AssignedOnId,
			Hours:        utils.RoundAmountPtr(input.Hours),
			HourlyTariff: utils.RoundAmountPtr(input.HourlyTariff),
			AddedByID:    utils.ActingPersonId(ctx),
		}
		err = db.WithContext(ctx).Create(&assignment).Error
		if err == nil {
			if err := clearTariffTimeline(input.AssignedToId, input.AssignedOnId); err != nil {
				return nil, err
			}
			return &assignment, nil
		}
		if !utils.IsDuplicateKeyError(err) {
			return nil, err
		}
		// lost the race; loop back and update the winner's row
	}
	return nil, errors.New("work assignment upsert did not converge")
}

func DeleteWorkAssignment(ctx context.Context, id int) (*WorkAssignment, error) {

	assignment, err := utils.FetchModel[WorkAssignment](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(assignment).Error; err != nil {
		return nil, err
	}
	if err := clearTariffTimeline(assignment.AssignedToID, assignment.AssignedOnID); err != nil {
		return nil, err
	}
	return assignment, nil
}

func GetWorkAssignment(ctx context.Context, id int) (*WorkAssignment, error) {

	return utils.FetchModel[WorkAssignment](ctx, id, "YearWeek", "AssignedTo", "AssignedOn")
}

// GetWorkAssignmentsForProject lists a project's plan on the week axis.
func GetWorkAssignmentsForProject(ctx context.Context, projectId int) ([]*WorkAssignment, error) {

	return listWorkAssignments(ctx, "work_assignments.assigned_on_id = ?", projectId)
}

// GetWorkAssignmentsForPerson lists one person's plan across projects.
func GetWorkAssignmentsForPerson(ctx context.Context, personId int) ([]*WorkAssignment, error) {

	return listWorkAssignments(ctx, "work_assignments.assigned_to_id = ?", personId)
}

func listWorkAssignments(ctx context.Context, condition string, value int) ([]*WorkAssignment, error) {

	db := config.GetDB()
	var results []*WorkAssignment
	err := db.WithContext(ctx).
		Joins("JOIN year_weeks ON year_weeks.id = work_assignments.year_week_id").
		Where(condition, value).
		Order("year_weeks.year, year_weeks.week").
		Preload("YearWeek").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func tariffTimelineKey(personId, projectId int) string {
	return fmt.Sprintf("TariffTimeline:%d:%d", personId, projectId)
}

func clearTariffTimeline(personId, projectId int) error {
	return config.RemoveRedisKey(tariffTimelineKey(personId, projectId))
}

// GetTariffTimeline builds (redis or db) the tariff history of one
// person on one project. Assignments without a tariff are skipped, so
// the resolution carries the last priced week forward.
func GetTariffTimeline(ctx context.Context, personId, projectId int) (*Timeline[decimal.Decimal], error) {

	var cached Timeline[decimal.Decimal]
	exists, err := config.GetRedisObject(tariffTimelineKey(personId, projectId), &cached)
	if err != nil {
		return nil, err
	}
	if exists {
		return &cached, nil
	}

	db := config.GetDB()
	var assignments []*WorkAssignment
	err = db.WithContext(ctx).
		Joins("JOIN year_weeks ON year_weeks.id = work_assignments.year_week_id").
		Where("work_assignments.assigned_to_id = ? AND work_assignments.assigned_on_id = ?", personId, projectId).
		Order("year_weeks.year, year_weeks.week").
		Preload("YearWeek").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry[decimal.Decimal], 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.HourlyTariff == nil || assignment.YearWeek == nil {
			continue
		}
		entries = append(entries, TimelineEntry[decimal.Decimal]{
			Year:  assignment.YearWeek.Year,
			Week:  assignment.YearWeek.Week,
			Added: assignment.Added,
			Id:    assignment.ID,
			Value: *assignment.HourlyTariff,
		})
	}
	timeline := NewTimeline(entries)

	if err := config.SetRedisObject(tariffTimelineKey(personId, projectId), timeline, utils.GetCacheLifespan()); err != nil {
		return nil, err
	}
	return timeline, nil
}

// EffectiveTariff resolves the hourly tariff in force for (year, week),
// defaulting to zero when the person was never priced on the project.
func EffectiveTariff(ctx context.Context, personId, projectId, year, week int) (decimal.Decimal, error) {

	timeline, err := GetTariffTimeline(ctx, personId, projectId)
	if err != nil {
		return decimal.Zero, err
	}
	tariff, ok := timeline.AsOf(year, week)
	if !ok {
		return decimal.Zero, nil
	}
	return tariff, nil
}
