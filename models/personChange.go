package models

import (
	"context"
	"fmt"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// PersonChange is a dated change to a person's working capacity. The
// rows for one person form a timeline; the effective hours_per_week and
// target for any week is the most recent change at or before that week.
type PersonChange struct {
	ID           int              `gorm:"primary_key" json:"id"`
	PersonID     int              `gorm:"not null;index" json:"person_id" binding:"required"`
	YearWeekID   int              `gorm:"not null" json:"year_week_id" binding:"required"`
	YearWeek     *YearWeek        `gorm:"foreignKey:YearWeekID" json:"year_week,omitempty"`
	HoursPerWeek *decimal.Decimal `gorm:"type:decimal(12,2)" json:"hours_per_week"`
	Target       *decimal.Decimal `gorm:"type:decimal(12,2)" json:"target"`
	Added        time.Time        `gorm:"autoCreateTime" json:"added"`
	AddedByID    *int             `json:"added_by_id"`
}

type NewPersonChange struct {
	PersonId     int              `json:"person_id" binding:"required"`
	YearWeekId   int              `json:"year_week_id" binding:"required"`
	HoursPerWeek *decimal.Decimal `json:"hours_per_week"`
	Target       *decimal.Decimal `json:"target"`
}

// PersonCapacity is the payload resolved by the capacity timeline.
type PersonCapacity struct {
	HoursPerWeek *decimal.Decimal `json:"hours_per_week"`
	Target       *decimal.Decimal `json:"target"`
}

func (input *NewPersonChange) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Person](ctx, input.PersonId); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[YearWeek](ctx, input.YearWeekId); err != nil {
		return err
	}
	if err := utils.ValidateNonNegativePtr("hours_per_week", input.HoursPerWeek); err != nil {
		return err
	}
	if err := utils.ValidateNonNegativePtr("target", input.Target); err != nil {
		return err
	}
	return nil
}

func CreatePersonChange(ctx context.Context, input *NewPersonChange) (*PersonChange, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	change := PersonChange{
		PersonID:     input.PersonId,
		YearWeekID:   input.YearWeekId,
		HoursPerWeek: utils.RoundAmountPtr(input.HoursPerWeek),
		Target:       utils.RoundAmountPtr(input.Target),
		AddedByID:    utils.ActingPersonId(ctx),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&change).Error; err != nil {
		return nil, err
	}
	if err := clearCapacityTimeline(input.PersonId); err != nil {
		return nil, err
	}
	return &change, nil
}

func UpdatePersonChange(ctx context.Context, id int, input *NewPersonChange) (*PersonChange, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	change, err := utils.FetchModel[PersonChange](ctx, id)
	if err != nil {
		return nil, err
	}
	oldPersonId := change.PersonID

	db := config.GetDB()
	err = db.WithContext(ctx).Model(change).Updates(map[string]interface{}{
		"PersonID":     input.PersonId,
		"YearWeekID":   input.YearWeekId,
		"HoursPerWeek": utils.RoundAmountPtr(input.HoursPerWeek),
		"Target":       utils.RoundAmountPtr(input.Target),
	}).Error
	if err != nil {
		return nil, err
	}
	if err := clearCapacityTimeline(oldPersonId, input.PersonId); err != nil {
		return nil, err
	}
	return change, nil
}

func DeletePersonChange(ctx context.Context, id int) (*PersonChange, error) {

	change, err := utils.FetchModel[PersonChange](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(change).Error; err != nil {
		return nil, err
	}
	if err := clearCapacityTimeline(change.PersonID); err != nil {
		return nil, err
	}
	return change, nil
}

func GetPersonChange(ctx context.Context, id int) (*PersonChange, error) {

	return utils.FetchModel[PersonChange](ctx, id, "YearWeek")
}

// GetPersonChanges lists one person's capacity history on the week axis.
func GetPersonChanges(ctx context.Context, personId int) ([]*PersonChange, error) {

	db := config.GetDB()
	var results []*PersonChange
	err := db.WithContext(ctx).
		Joins("JOIN year_weeks ON year_weeks.id = person_changes.year_week_id").
		Where("person_changes.person_id = ?", personId).
		Order("year_weeks.year, year_weeks.week, person_changes.added, person_changes.id").
		Preload("YearWeek").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func capacityTimelineKey(personId int) string {
	return "CapacityTimeline:" + fmt.Sprint(personId)
}

func clearCapacityTimeline(personIds ...int) error {
	for _, id := range personIds {
		if err := config.RemoveRedisKey(capacityTimelineKey(id)); err != nil {
			return err
		}
	}
	return nil
}

// GetCapacityTimeline builds (redis or db) the sorted capacity timeline
// for one person. Reporting sweeps fetch it once and resolve every week
// against the same in-memory structure.
func GetCapacityTimeline(ctx context.Context, personId int) (*Timeline[PersonCapacity], error) {

	var cached Timeline[PersonCapacity]
	exists, err := config.GetRedisObject(capacityTimelineKey(personId), &cached)
	if err != nil {
		return nil, err
	}
	if exists {
		return &cached, nil
	}

	changes, err := GetPersonChanges(ctx, personId)
	if err != nil {
		return nil, err
	}

	entries := make([]TimelineEntry[PersonCapacity], 0, len(changes))
	for _, change := range changes {
		if change.YearWeek == nil {
			continue
		}
		entries = append(entries, TimelineEntry[PersonCapacity]{
			Year:  change.YearWeek.Year,
			Week:  change.YearWeek.Week,
			Added: change.Added,
			Id:    change.ID,
			Value: PersonCapacity{
				HoursPerWeek: change.HoursPerWeek,
				Target:       change.Target,
			},
		})
	}
	timeline := NewTimeline(entries)

	if err := config.SetRedisObject(capacityTimelineKey(personId), timeline, utils.GetCacheLifespan()); err != nil {
		return nil, err
	}
	return timeline, nil
}

// EffectiveCapacity resolves the capacity in force for (year, week):
// the latest change at or before that week, or zero capacity when the
// person has no change yet.
func EffectiveCapacity(ctx context.Context, personId, year, week int) (PersonCapacity, error) {

	timeline, err := GetCapacityTimeline(ctx, personId)
	if err != nil {
		return PersonCapacity{}, err
	}
	capacity, ok := timeline.AsOf(year, week)
	if !ok {
		return PersonCapacity{}, nil
	}
	return capacity, nil
}

// EffectiveHoursPerWeek is EffectiveCapacity narrowed to the hours
// figure, with nil ("unplanned") collapsing to zero.
func EffectiveHoursPerWeek(ctx context.Context, personId, year, week int) (decimal.Decimal, error) {

	capacity, err := EffectiveCapacity(ctx, personId, year, week)
	if err != nil {
		return decimal.Zero, err
	}
	return utils.DereferencePtr(capacity.HoursPerWeek, decimal.Zero), nil
}
