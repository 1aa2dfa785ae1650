package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"wastescan/core/types"
)

// TestFreePlanGuard verifies unknown and empty plans count as free, so
// a guard failure can never invent savings
func TestFreePlanGuard(t *testing.T) {
	table := NewTable(decimal.NewFromInt(1))

	tests := []struct {
		provider types.Provider
		plan     string
		free     bool
	}{
		{types.ProviderGitHub, "free", true},
		{types.ProviderGitHub, "", true},
		{types.ProviderGitHub, "mystery-plan", true},
		{types.ProviderGitHub, "pro", false},
		{types.ProviderGitHub, "team", false},
		{types.ProviderSentry, "developer", true},
		{types.ProviderSentry, "team", false},
		{types.ProviderSentry, "business", false},
	}
	for _, tt := range tests {
		if got := table.IsFreePlan(tt.provider, tt.plan); got != tt.free {
			t.Errorf("IsFreePlan(%s, %q) = %v, want %v", tt.provider, tt.plan, got, tt.free)
		}
	}
}

// TestPlanCostConversion verifies list prices pass through the
// currency factor
func TestPlanCostConversion(t *testing.T) {
	table := NewTable(decimal.NewFromFloat(1.5))

	if got := table.PlanCost(types.ProviderSentry, "team"); !got.Equal(decimal.NewFromInt(39)) {
		t.Errorf("converted team cost = %s, want 39", got)
	}
	if got := table.PlanCost(types.ProviderGitHub, "unknown"); !got.IsZero() {
		t.Errorf("unknown plan cost = %s, want 0", got)
	}
}

// TestZeroFactorDefaultsToOne verifies a zero conversion factor does
// not zero out every price
func TestZeroFactorDefaultsToOne(t *testing.T) {
	table := NewTable(decimal.Zero)
	if got := table.PlanCost(types.ProviderGitHub, "pro"); !got.Equal(decimal.NewFromInt(4)) {
		t.Errorf("cost with zero factor = %s, want 4", got)
	}
}

// TestPerSeatPlans verifies only team and enterprise bill per seat
func TestPerSeatPlans(t *testing.T) {
	table := NewTable(decimal.NewFromInt(1))
	if !table.IsPerSeat(types.ProviderGitHub, "team") {
		t.Error("team should be per seat")
	}
	if !table.IsPerSeat(types.ProviderGitHub, "enterprise") {
		t.Error("enterprise should be per seat")
	}
	if table.IsPerSeat(types.ProviderGitHub, "pro") {
		t.Error("pro should not be per seat")
	}
	if table.IsPerSeat(types.ProviderSentry, "team") {
		t.Error("the error tracker has no per-seat plans")
	}
}

// TestInactivityCutoffDefaults verifies unset providers fall back to
// 60 days
func TestInactivityCutoffDefaults(t *testing.T) {
	th := DefaultThresholds()
	if got := th.InactivityCutoff(types.ProviderAWS); got != 30 {
		t.Errorf("aws cutoff = %d, want 30", got)
	}
	if got := th.InactivityCutoff(types.ProviderUnknown); got != 60 {
		t.Errorf("default cutoff = %d, want 60", got)
	}
}

// TestInstanceMonthlyCost verifies known rates and the unknown-type
// fallback
func TestInstanceMonthlyCost(t *testing.T) {
	// m5.large at 0.096/hr over 730 hours
	if got := InstanceMonthlyCost("m5.large"); !got.Equal(decimal.NewFromFloat(70.08)) {
		t.Errorf("m5.large monthly = %s, want 70.08", got)
	}
	if got := InstanceMonthlyCost("x9.mythical"); !got.Equal(decimal.NewFromInt(73)) {
		t.Errorf("unknown type monthly = %s, want 73", got)
	}
}
