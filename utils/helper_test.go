package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Jan de Vries":      "jan-de-vries",
		"  Ops/Team 1  ":    "ops-team-1",
		"Al--ready//slug":   "al-ready-slug",
		"Ärger":             "rger",
		"2024 Q1 (interim)": "2024-q1-interim",
		"---":               "",
	}
	for name, want := range cases {
		if got := Slugify(name); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestIsValidSlug(t *testing.T) {
	valid := []string{"jan-de-vries", "p2024", "a", "a-2"}
	for _, s := range valid {
		if !IsValidSlug(s) {
			t.Errorf("IsValidSlug(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "-leading", "trailing-", "UPPER", "two--dashes", "with space"}
	for _, s := range invalid {
		if IsValidSlug(s) {
			t.Errorf("IsValidSlug(%q) = true, want false", s)
		}
	}
}

func TestRoundAmount(t *testing.T) {
	cases := map[string]string{
		"1.005":   "1.01",
		"1.004":   "1.00",
		"7500":    "7500.00",
		"-2.675":  "-2.68",
		"0":       "0.00",
		"99.999":  "100.00",
		"10.1234": "10.12",
	}
	for in, want := range cases {
		d := decimal.RequireFromString(in)
		if got := RoundAmount(d).StringFixed(2); got != want {
			t.Errorf("RoundAmount(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestRoundAmountPtrKeepsNil(t *testing.T) {
	if RoundAmountPtr(nil) != nil {
		t.Fatal("nil must survive rounding")
	}
	d := decimal.RequireFromString("3.999")
	got := RoundAmountPtr(&d)
	if got == nil || got.StringFixed(2) != "4.00" {
		t.Fatalf("RoundAmountPtr(3.999) = %v, want 4.00", got)
	}
	if d.StringFixed(3) != "3.999" {
		t.Fatal("RoundAmountPtr must not mutate its argument")
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 7
	if got := DereferencePtr(&v); got != 7 {
		t.Fatalf("DereferencePtr(&7) = %d", got)
	}
	if got := DereferencePtr[int](nil); got != 0 {
		t.Fatalf("DereferencePtr(nil) = %d, want 0", got)
	}
	if got := DereferencePtr(nil, 42); got != 42 {
		t.Fatalf("DereferencePtr(nil, 42) = %d, want 42", got)
	}
}

func TestNilIfEmpty(t *testing.T) {
	if NilIfEmpty(0) != nil {
		t.Fatal("zero must map to nil")
	}
	got := NilIfEmpty(5)
	if got == nil || *got != 5 {
		t.Fatalf("NilIfEmpty(5) = %v", got)
	}
}
