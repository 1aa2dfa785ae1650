package github

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wastescan/core/pricing"
	"wastescan/core/rules"
	"wastescan/core/types"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testInput(snap Snapshot) rules.Input {
	return rules.Input{
		Connection: types.Connection{ID: "conn_1", UserID: "usr_1", Provider: types.ProviderGitHub},
		Snapshot:   snap,
		Tier:       types.TierPro,
		Table:      pricing.NewTable(decimal.NewFromInt(1)),
		Thresholds: pricing.DefaultThresholds(),
		Now:        testNow,
	}
}

func daysAgo(days int) time.Time {
	return testNow.AddDate(0, 0, -days)
}

// TestStaleRepositoriesOnPaidPlan verifies the repository activity
// rule flags an inactive paid account as a zombie worth the plan cost
func TestStaleRepositoriesOnPaidPlan(t *testing.T) {
	snap := Snapshot{
		Plan: "pro",
		Repositories: []Repository{
			{Name: "api", PushedAt: daysAgo(75)},
			{Name: "web", PushedAt: daysAgo(90)},
			{Name: "infra", PushedAt: daysAgo(120)},
			{Name: "docs", PushedAt: daysAgo(5)},
		},
	}

	findings := ruleSet{}.Evaluate(testInput(snap))
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	f := findings[0]
	if f.Status != types.FindingZombie {
		t.Errorf("expected zombie status, got %s", f.Status)
	}
	if !f.PotentialSavings.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected savings 4 (pro plan cost), got %s", f.PotentialSavings)
	}
	want := "3 of 4 repositories have had no pushes in 75 days"
	if f.Reason != want {
		t.Errorf("reason = %q, want %q", f.Reason, want)
	}
}

// TestFreePlanNeverYieldsActionableFindings verifies the free-plan
// guard: inactivity on a plan that costs nothing is not waste
func TestFreePlanNeverYieldsActionableFindings(t *testing.T) {
	for _, plan := range []string{"free", "", "some-unknown-plan"} {
		snap := Snapshot{
			Plan: plan,
			Repositories: []Repository{
				{Name: "old", PushedAt: daysAgo(400)},
			},
		}
		for _, f := range (ruleSet{}).Evaluate(testInput(snap)) {
			if f.Status.Actionable() {
				t.Errorf("plan %q produced actionable finding %s", plan, f.Status)
			}
			if !f.PotentialSavings.IsZero() {
				t.Errorf("plan %q produced nonzero savings %s", plan, f.PotentialSavings)
			}
		}
	}
}

// TestHealthyAccountEmitsHealthyFindings verifies evaluated categories
// always produce a finding, so empty results are unambiguous
func TestHealthyAccountEmitsHealthyFindings(t *testing.T) {
	snap := Snapshot{
		Plan:        "team",
		Seats:       10,
		FilledSeats: 9,
		Repositories: []Repository{
			{Name: "api", PushedAt: daysAgo(3)},
		},
	}

	findings := ruleSet{}.Evaluate(testInput(snap))
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings (both categories), got %d", len(findings))
	}
	for _, f := range findings {
		if f.Status != types.FindingActive {
			t.Errorf("healthy account produced %s finding for %s", f.Status, f.ResourceName)
		}
	}
}

// TestSeatUnderutilization verifies the downgrade rule and its savings
// arithmetic on per-seat plans
func TestSeatUnderutilization(t *testing.T) {
	snap := Snapshot{
		Plan:        "team",
		Seats:       10,
		FilledSeats: 1,
		Repositories: []Repository{
			{Name: "api", PushedAt: daysAgo(3)},
		},
	}

	findings := ruleSet{}.Evaluate(testInput(snap))
	var seat *types.Finding
	for i := range findings {
		if findings[i].ResourceType == "seat" {
			seat = &findings[i]
		}
	}
	if seat == nil {
		t.Fatal("no seat finding emitted")
	}
	if seat.Status != types.FindingDowngrade {
		t.Errorf("expected downgrade status, got %s", seat.Status)
	}
	// 9 unused seats at the team per-seat rate of 4
	if !seat.PotentialSavings.Equal(decimal.NewFromInt(36)) {
		t.Errorf("expected savings 36, got %s", seat.PotentialSavings)
	}
}

// TestEvaluateIsDeterministic verifies repeat evaluations of the same
// input yield identical findings
func TestEvaluateIsDeterministic(t *testing.T) {
	snap := Snapshot{
		Plan:        "team",
		Seats:       5,
		FilledSeats: 1,
		Repositories: []Repository{
			{Name: "a", PushedAt: daysAgo(200)},
			{Name: "b", PushedAt: daysAgo(10)},
		},
	}

	in := testInput(snap)
	first := ruleSet{}.Evaluate(in)
	second := ruleSet{}.Evaluate(in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("evaluations differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

// TestEmptySnapshotYieldsNoFindings verifies a failed scan's neutral
// snapshot classifies to nothing
func TestEmptySnapshotYieldsNoFindings(t *testing.T) {
	if findings := (ruleSet{}).Evaluate(testInput(Snapshot{})); len(findings) != 0 {
		t.Errorf("empty snapshot produced %d findings", len(findings))
	}
}

type fakeClient struct {
	account Account
	repos   []Repository
	err     error
}

func (c fakeClient) Account(ctx context.Context) (*Account, error) {
	if c.err != nil {
		return nil, c.err
	}
	account := c.account
	return &account, nil
}

func (c fakeClient) Repositories(ctx context.Context) ([]Repository, error) {
	return c.repos, c.err
}

// TestFreeTierSnapshotIsGated verifies free-tier users only see public
// repositories and no seat detail
func TestFreeTierSnapshotIsGated(t *testing.T) {
	plugin := NewWithClientFactory(func(secret string) Client {
		return fakeClient{
			account: Account{Login: "acme", Plan: "team", Seats: 10, FilledSeats: 8},
			repos: []Repository{
				{Name: "public-api", Private: false, PushedAt: daysAgo(2)},
				{Name: "secret-sauce", Private: true, PushedAt: daysAgo(2)},
			},
		}
	})

	conn := types.Connection{ID: "conn_1", Provider: types.ProviderGitHub}
	snap, err := plugin.Snapshot(context.Background(), conn, "tok", types.TierFree)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	gh := snap.(Snapshot)
	if !gh.Gated {
		t.Error("free-tier snapshot not marked gated")
	}
	if len(gh.Repositories) != 1 || gh.Repositories[0].Name != "public-api" {
		t.Errorf("expected only the public repository, got %+v", gh.Repositories)
	}
	if gh.Seats != 0 || gh.FilledSeats != 0 {
		t.Errorf("seat detail leaked into gated snapshot: %d/%d", gh.FilledSeats, gh.Seats)
	}
}

// TestBillingInputPerSeat verifies per-seat plans bill seats times the
// seat rate while flat plans bill the plan cost
func TestBillingInputPerSeat(t *testing.T) {
	plugin := New()
	table := pricing.NewTable(decimal.NewFromInt(1))

	in, ok := plugin.BillingInput(Snapshot{Plan: "team", Seats: 10}, table)
	if !ok {
		t.Fatal("expected billing input for team plan")
	}
	if !in.PlanCost.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected plan cost 40, got %s", in.PlanCost)
	}

	in, ok = plugin.BillingInput(Snapshot{Plan: "pro"}, table)
	if !ok {
		t.Fatal("expected billing input for pro plan")
	}
	if !in.PlanCost.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected plan cost 4, got %s", in.PlanCost)
	}

	if _, ok := plugin.BillingInput(Snapshot{Plan: "free", Repositories: []Repository{{Name: "x"}}}, table); ok {
		t.Error("free plan should carry no billing input")
	}
}
