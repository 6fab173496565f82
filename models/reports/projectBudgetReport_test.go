package reports

import (
	"testing"

	"github.com/nens/trs_backend/models"
	"github.com/shopspring/decimal"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRemainingBudgetFormula(t *testing.T) {
	project := &models.Project{
		ContractAmount:      amount("10000"),
		Reservation:         amount("1000"),
		Profit:              amount("500"),
		SoftwareDevelopment: amount("0"),
	}

	// 10 hours booked at effective tariff 100, no third-party estimates
	got := remainingBudget(project, amount("1000"), decimal.Zero)
	if got.StringFixed(2) != "7500.00" {
		t.Fatalf("remaining budget = %s, want 7500.00", got.StringFixed(2))
	}
}

func TestRemainingBudgetSubtractsThirdParty(t *testing.T) {
	project := &models.Project{
		ContractAmount:      amount("20000"),
		Reservation:         amount("2500"),
		Profit:              amount("1500"),
		SoftwareDevelopment: amount("750.50"),
	}

	got := remainingBudget(project, amount("3333.33"), amount("1200.25"))
	if got.StringFixed(2) != "10715.92" {
		t.Fatalf("remaining budget = %s, want 10715.92", got.StringFixed(2))
	}
}

func TestRemainingBudgetCanGoNegative(t *testing.T) {
	project := &models.Project{
		ContractAmount: amount("1000"),
	}

	got := remainingBudget(project, amount("1500"), decimal.Zero)
	if got.StringFixed(2) != "-500.00" {
		t.Fatalf("remaining budget = %s, want -500.00 (overrun must stay visible)", got.StringFixed(2))
	}
}

func TestRemainingBudgetRoundsHalfUpOnce(t *testing.T) {
	project := &models.Project{
		ContractAmount: amount("100"),
	}

	// 99.995 rounds to 100.00 only at the edge, not per term
	got := remainingBudget(project, amount("0.005"), decimal.Zero)
	if got.StringFixed(2) != "100.00" {
		t.Fatalf("remaining budget = %s, want 100.00", got.StringFixed(2))
	}
}
