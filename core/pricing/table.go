// Package pricing holds the static price and rule tables.
// Plan costs are provider list prices in USD per month; the currency
// factor converts them into the presentation currency at lookup time.
package pricing

import (
	"github.com/shopspring/decimal"

	"wastescan/core/types"
)

// FreePlans maps each provider to the plan name that incurs no cost.
// The classification engine refuses to emit cost-incurring findings
// for these plans.
var FreePlans = map[types.Provider]string{
	types.ProviderGitHub: "free",
	types.ProviderSentry: "developer",
}

// planCosts are monthly USD list prices. Per-seat plans are priced per
// seat; flat plans per account.
var planCosts = map[types.Provider]map[string]decimal.Decimal{
	types.ProviderGitHub: {
		"pro":        decimal.NewFromFloat(4),
		"team":       decimal.NewFromFloat(4),
		"enterprise": decimal.NewFromFloat(21),
	},
	types.ProviderSentry: {
		"team":     decimal.NewFromFloat(26),
		"business": decimal.NewFromFloat(80),
	},
}

// perSeatPlans marks plans billed per filled seat rather than flat
var perSeatPlans = map[types.Provider]map[string]bool{
	types.ProviderGitHub: {
		"team":       true,
		"enterprise": true,
	},
}

// AWS unit rates, USD per month
var (
	// RateEBSGiBMonth is the gp3 per-GiB storage rate
	RateEBSGiBMonth = decimal.NewFromFloat(0.08)

	// RateStoppedInstanceMonth approximates the root volume cost a
	// stopped instance keeps accruing
	RateStoppedInstanceMonth = decimal.NewFromFloat(2.40)

	// RateIdleAddressMonth is the unassociated elastic IP rate
	RateIdleAddressMonth = decimal.NewFromFloat(3.60)
)

// instanceHourlyRates are on-demand USD hourly rates for common
// instance families. Unknown types fall back to defaultInstanceHourly.
var instanceHourlyRates = map[string]decimal.Decimal{
	"t3.micro":   decimal.NewFromFloat(0.0104),
	"t3.small":   decimal.NewFromFloat(0.0208),
	"t3.medium":  decimal.NewFromFloat(0.0416),
	"t3.large":   decimal.NewFromFloat(0.0832),
	"m5.large":   decimal.NewFromFloat(0.096),
	"m5.xlarge":  decimal.NewFromFloat(0.192),
	"m5.2xlarge": decimal.NewFromFloat(0.384),
	"c5.large":   decimal.NewFromFloat(0.085),
	"c5.xlarge":  decimal.NewFromFloat(0.17),
	"r5.large":   decimal.NewFromFloat(0.126),
	"r5.xlarge":  decimal.NewFromFloat(0.252),
}

var defaultInstanceHourly = decimal.NewFromFloat(0.10)

// hoursPerMonth is the billing convention for always-on instances
var hoursPerMonth = decimal.NewFromInt(730)

// InstanceMonthlyCost returns the unconverted USD monthly cost of
// running an instance type around the clock
func InstanceMonthlyCost(instanceType string) decimal.Decimal {
	rate, ok := instanceHourlyRates[instanceType]
	if !ok {
		rate = defaultInstanceHourly
	}
	return rate.Mul(hoursPerMonth)
}

// Thresholds are the provider-independent rule bounds
type Thresholds struct {
	// InactivityDays is the per-provider cutoff after which a paid
	// resource is a zombie
	InactivityDays map[types.Provider]int

	// UtilizationLowerBound marks over-provisioned resources
	UtilizationLowerBound float64
}

// DefaultThresholds returns the standard rule bounds
func DefaultThresholds() Thresholds {
	return Thresholds{
		InactivityDays: map[types.Provider]int{
			types.ProviderGitHub: 60,
			types.ProviderAWS:    30,
			types.ProviderSentry: 60,
		},
		UtilizationLowerBound: 0.20,
	}
}

// InactivityCutoff returns the inactivity cutoff for a provider,
// defaulting to 60 days when unset
func (t Thresholds) InactivityCutoff(p types.Provider) int {
	if d, ok := t.InactivityDays[p]; ok && d > 0 {
		return d
	}
	return 60
}

// Table resolves plan costs in the presentation currency
type Table struct {
	factor decimal.Decimal
}

// NewTable creates a price table with the given currency factor
func NewTable(currencyFactor decimal.Decimal) *Table {
	if currencyFactor.IsZero() {
		currencyFactor = decimal.NewFromInt(1)
	}
	return &Table{factor: currencyFactor}
}

// Factor returns the currency conversion factor
func (t *Table) Factor() decimal.Decimal {
	return t.factor
}

// Convert applies the currency factor to a native USD amount
func (t *Table) Convert(usd decimal.Decimal) decimal.Decimal {
	return usd.Mul(t.factor)
}

// IsFreePlan reports whether the plan is the provider's free tier.
// Unknown plans are treated as free so a misreported plan can never
// produce a false cost-incurring finding.
func (t *Table) IsFreePlan(p types.Provider, plan string) bool {
	if plan == "" {
		return true
	}
	if free, ok := FreePlans[p]; ok && plan == free {
		return true
	}
	costs, ok := planCosts[p]
	if !ok {
		return true
	}
	_, known := costs[plan]
	return !known
}

// PlanCost returns the converted monthly cost of a plan, zero for free
// or unknown plans
func (t *Table) PlanCost(p types.Provider, plan string) decimal.Decimal {
	costs, ok := planCosts[p]
	if !ok {
		return decimal.Zero
	}
	cost, ok := costs[plan]
	if !ok {
		return decimal.Zero
	}
	return t.Convert(cost)
}

// IsPerSeat reports whether a plan is billed per filled seat
func (t *Table) IsPerSeat(p types.Provider, plan string) bool {
	if plans, ok := perSeatPlans[p]; ok {
		return plans[plan]
	}
	return false
}
