package utils

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateNonNegative(t *testing.T) {
	if err := ValidateNonNegative("amount", decimal.Zero); err != nil {
		t.Fatalf("zero must pass: %v", err)
	}
	if err := ValidateNonNegative("amount", decimal.RequireFromString("12.34")); err != nil {
		t.Fatalf("positive must pass: %v", err)
	}

	err := ValidateNonNegative("contract_amount", decimal.RequireFromString("-0.01"))
	if err == nil {
		t.Fatal("negative must fail")
	}
	if !IsValidationError(err) {
		t.Fatalf("want validation error, got %T", err)
	}
	if !strings.Contains(err.Error(), "contract_amount") {
		t.Fatalf("error must name the field: %q", err.Error())
	}
}

func TestValidateNonNegativePtr(t *testing.T) {
	// nil means "unplanned" and is allowed
	if err := ValidateNonNegativePtr("hours", nil); err != nil {
		t.Fatalf("nil must pass: %v", err)
	}
	neg := decimal.RequireFromString("-1")
	if err := ValidateNonNegativePtr("hours", &neg); err == nil {
		t.Fatal("negative must fail")
	}
	pos := decimal.RequireFromString("8")
	if err := ValidateNonNegativePtr("hours", &pos); err != nil {
		t.Fatalf("positive must pass: %v", err)
	}
}

func TestIsValidationError(t *testing.T) {
	err := NewValidationError("slug", "duplicate value")
	if !IsValidationError(err) {
		t.Fatal("NewValidationError must be recognised")
	}
	if IsValidationError(ErrorRecordNotFound) {
		t.Fatal("record-not-found is not a validation error")
	}
	if got := err.Error(); got != "slug: duplicate value" {
		t.Fatalf("Error() = %q", got)
	}
}
