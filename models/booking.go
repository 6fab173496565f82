package models

import (
	"context"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

// Booking records the actual hours a person spent on a project in one
// week. This is the ledger line actual-vs-planned reporting reads.
type Booking struct {
	ID         int              `gorm:"primary_key" json:"id"`
	YearWeekID int              `gorm:"not null;index" json:"year_week_id" binding:"required"`
	YearWeek   *YearWeek        `gorm:"foreignKey:YearWeekID" json:"year_week,omitempty"`
	BookedByID int              `gorm:"not null;index" json:"booked_by_id" binding:"required"`
	BookedBy   *Person          `gorm:"foreignKey:BookedByID" json:"booked_by,omitempty"`
	BookedOnID int              `gorm:"not null;index" json:"booked_on_id" binding:"required"`
	BookedOn   *Project         `gorm:"foreignKey:BookedOnID" json:"booked_on,omitempty"`
	Hours      *decimal.Decimal `gorm:"type:decimal(12,2)" json:"hours"`
	Added      time.Time        `gorm:"autoCreateTime" json:"added"`
	AddedByID  *int             `json:"added_by_id"`
}

type NewBooking struct {
	YearWeekId int              `json:"year_week_id" binding:"required"`
	BookedById int              `json:"booked_by_id" binding:"required"`
	BookedOnId int              `json:"booked_on_id" binding:"required"`
	Hours      *decimal.Decimal `json:"hours"`
}

func (input *NewBooking) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Person](ctx, input.BookedById); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Project](ctx, input.BookedOnId); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[YearWeek](ctx, input.YearWeekId); err != nil {
		return err
	}
	if err := utils.ValidateNonNegativePtr("hours", input.Hours); err != nil {
		return err
	}
	return nil
}

func CreateBooking(ctx context.Context, input *NewBooking) (*Booking, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	booking := Booking{
		YearWeekID: input.YearWeekId,
		BookedByID: input.BookedById,
		BookedOnID: input.BookedOnId,
		Hours:      utils.RoundAmountPtr(input.Hours),
		AddedByID:  utils.ActingPersonId(ctx),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBooking edits the ledger line in place.
func UpdateBooking(ctx context.Context, id int, input *NewBooking) (*Booking, error) {

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	booking, err := utils.FetchModel[Booking](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(booking).Updates(map[string]interface{}{
		"YearWeekID": input.YearWeekId,
		"BookedByID": input.BookedById,
		"BookedOnID": input.BookedOnId,
		"Hours":      utils.RoundAmountPtr(input.Hours),
	}).Error
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func DeleteBooking(ctx context.Context, id int) (*Booking, error) {

	booking, err := utils.FetchModel[Booking](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(booking).Error; err != nil {
		return nil, err
	}
	return booking, nil
}

func GetBooking(ctx context.Context, id int) (*Booking, error) {

	return utils.FetchModel[Booking](ctx, id, "YearWeek", "BookedBy", "BookedOn")
}

// GetBookingsForProject lists a project's actuals up to and including
// the cutoff week, ordered on the week axis.
func GetBookingsForProject(ctx context.Context, projectId, toYear, toWeek int) ([]*Booking, error) {

	db := config.GetDB()
	var results []*Booking
	err := db.WithContext(ctx).
		Joins("JOIN year_weeks ON year_weeks.id = bookings.year_week_id").
		Where("bookings.booked_on_id = ?", projectId).
		Where("(year_weeks.year * 100 + year_weeks.week) <= ?", WeekKey(toYear, toWeek)).
		Order("year_weeks.year, year_weeks.week, bookings.id").
		Preload("YearWeek").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetBookingsForPerson lists one person's actuals inside a week range.
func GetBookingsForPerson(ctx context.Context, personId, fromYear, fromWeek, toYear, toWeek int) ([]*Booking, error) {

	db := config.GetDB()
	var results []*Booking
	err := db.WithContext(ctx).
		Joins("JOIN year_weeks ON year_weeks.id = bookings.year_week_id").
		Where("bookings.booked_by_id = ?", personId).
		Where("(year_weeks.year * 100 + year_weeks.week) BETWEEN ? AND ?",
			WeekKey(fromYear, fromWeek), WeekKey(toYear, toWeek)).
		Order("year_weeks.year, year_weeks.week, bookings.id").
		Preload("YearWeek").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
