package models

import (
	"context"
	"time"

	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/utils"
)

// YearWeek is one ISO week bucket, the time axis every ledger entity
// references. Rows are bulk-created once per configured year range and
// never change afterward.
type YearWeek struct {
	ID       int       `gorm:"primary_key" json:"id"`
	Year     int       `gorm:"not null;uniqueIndex:uix_year_weeks_year_week" json:"year"`
	Week     int       `gorm:"not null;uniqueIndex:uix_year_weeks_year_week" json:"week"`
	FirstDay time.Time `gorm:"type:date;not null;index" json:"first_day"`
}

// IsoWeeksInYear reports how many ISO weeks the year has (52 or 53).
// December 28 always falls in the last ISO week of its year.
func IsoWeeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return week
}

// FirstDayOfIsoWeek returns the Monday starting the given ISO week.
// January 4 always falls in ISO week 1.
func FirstDayOfIsoWeek(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
	return monday.AddDate(0, 0, (week-1)*7)
}

// GenerateYearWeeks backfills one row per ISO week of every year in
// [startYear, endYear]. Idempotent: weeks already present are skipped, so
// extending the configured range only appends the missing buckets. The
// redis lock serialises concurrent backfill requests; the unique index on
// (year, week) is the backstop when redis is absent.
func GenerateYearWeeks(ctx context.Context, startYear, endYear int) (int, error) {

	if startYear > endYear {
		return 0, utils.NewValidationError("start_year", "must not be after end_year")
	}
	if startYear < 1970 || endYear > 2999 {
		return 0, utils.NewValidationError("start_year", "years must fall within 1970..2999")
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "YearWeekGenerate", 2*time.Minute, nil)
		if err != nil {
			return 0, err
		}
		defer lock.Release(context.Background())
	}

	db := config.GetDB()

	var existing []*YearWeek
	if err := db.WithContext(ctx).
		Where("year BETWEEN ? AND ?", startYear, endYear).
		Find(&existing).Error; err != nil {
		return 0, err
	}
	present := make(map[int]bool, len(existing))
	for _, yw := range existing {
		present[WeekKey(yw.Year, yw.Week)] = true
	}

	var missing []*YearWeek
	for year := startYear; year <= endYear; year++ {
		for week := 1; week <= IsoWeeksInYear(year); week++ {
			if present[WeekKey(year, week)] {
				continue
			}
			missing = append(missing, &YearWeek{
				Year:     year,
				Week:     week,
				FirstDay: FirstDayOfIsoWeek(year, week),
			})
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	if err := db.WithContext(ctx).CreateInBatches(missing, 500).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			// a concurrent backfill got there first
			return 0, nil
		}
		return 0, err
	}

	if err := utils.RemoveRedisList[YearWeek](); err != nil {
		return 0, err
	}
	return len(missing), nil
}

func GetYearWeek(ctx context.Context, id int) (*YearWeek, error) {

	return GetResource[YearWeek](ctx, id)
}

// GetYearWeekByWeek resolves a (year, week) pair to its bucket.
// (may return RecordNotFound)
func GetYearWeekByWeek(ctx context.Context, year, week int) (*YearWeek, error) {

	db := config.GetDB()
	var result YearWeek
	err := db.WithContext(ctx).
		Where("year = ? AND week = ?", year, week).
		First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetYearWeeks(ctx context.Context) ([]*YearWeek, error) {

	return ListAllResource[YearWeek](ctx, "year, week")
}

// GetYearWeeksBetween lists the buckets from (fromYear, fromWeek) through
// (toYear, toWeek) inclusive, ordered on the week axis.
func GetYearWeeksBetween(ctx context.Context, fromYear, fromWeek, toYear, toWeek int) ([]*YearWeek, error) {

	db := config.GetDB()
	var results []*YearWeek
	err := db.WithContext(ctx).
		Where("(year * 100 + week) BETWEEN ? AND ?", WeekKey(fromYear, fromWeek), WeekKey(toYear, toWeek)).
		Order("year, week").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
