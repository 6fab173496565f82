package utils

import (
	"context"
	"reflect"

	"github.com/nens/trs_backend/config"
	"github.com/shopspring/decimal"
)

// check if id exists, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// check uniqueness of a column value, excluding exceptId for updates
func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return NewValidationError(column, "duplicate value")
	}
	return nil
}

// count records matching condition
func ResourceCountWhere[T any](ctx context.Context, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ValidateNonNegative rejects negative money/hours values before
// persistence, naming the field.
func ValidateNonNegative(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return NewValidationError(field, "must not be negative")
	}
	return nil
}

// ValidateNonNegativePtr allows nil (meaning "unplanned") but not
// negative values.
func ValidateNonNegativePtr(field string, value *decimal.Decimal) error {
	if value == nil {
		return nil
	}
	return ValidateNonNegative(field, *value)
}
