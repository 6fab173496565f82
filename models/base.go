package models

import (
	"context"
	"fmt"

	"github.com/nens/trs_backend/utils"
)

// WeekKey collapses a (year, week) pair into a single sortable integer,
// e.g. (2024, 5) -> 202405. Weeks never exceed 53 so two digits suffice.
func WeekKey(year, week int) int {
	return year*100 + week
}

// nextAvailableSlug returns the first of base, base-2, base-3, ... not
// yet taken by a row of T. The unique index on slug is the backstop
// for concurrent creates.
func nextAvailableSlug[T any](ctx context.Context, base string) (string, error) {
	if base == "" {
		return "", utils.NewValidationError("slug", "cannot be derived from an empty name")
	}
	slug := base
	for i := 2; ; i++ {
		count, err := utils.ResourceCountWhere[T](ctx, "slug = ?", slug)
		if err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
