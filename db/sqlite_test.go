package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wastescan/core/types"
	"wastescan/internal/errors"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var dbNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func seedUserAndConnection(t *testing.T, store *SQLStore) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateUser(ctx, types.User{ID: "usr_1", Email: "a@b.c", Tier: types.TierPro}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	conn := types.Connection{
		ID: "conn_1", UserID: "usr_1", Provider: types.ProviderGitHub,
		CredentialRef: "ref_1", AccountLabel: "acme", Environment: "prod",
		IsDefault: true, Status: types.ConnectionActive,
	}
	if err := store.CreateConnection(ctx, conn); err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}
}

// TestMigrationsAreIdempotent verifies reopening the same database
// runs no migration twice
func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		store, err := Open(path)
		if err != nil {
			t.Fatalf("Open %d failed: %v", i, err)
		}
		store.Close()
	}
}

// TestUserRoundTrip verifies users persist with tier and referral state
func TestUserRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user := types.User{ID: "usr_1", Email: "a@b.c", Tier: types.TierFree, ReferredBy: "usr_0"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := store.GetUser(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != user.Email || got.Tier != user.Tier || got.ReferredBy != user.ReferredBy {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.ReferralQualified {
		t.Error("new user already qualified")
	}

	if _, err := store.GetUser(ctx, "usr_missing"); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

// TestIncrementScanCountReturnsNewValue verifies the counter is
// atomic and returns the post-increment value
func TestIncrementScanCountReturnsNewValue(t *testing.T) {
	store := openTestStore(t)
	seedUserAndConnection(t, store)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.IncrementScanCount(ctx, "usr_1")
		if err != nil {
			t.Fatalf("IncrementScanCount: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}
}

// TestConnectionScanStateRoundTrip verifies status, error message and
// scan timestamp survive the update path
func TestConnectionScanStateRoundTrip(t *testing.T) {
	store := openTestStore(t)
	seedUserAndConnection(t, store)
	ctx := context.Background()

	if err := store.UpdateConnectionScan(ctx, "conn_1", types.ConnectionError, "token revoked", dbNow); err != nil {
		t.Fatalf("UpdateConnectionScan: %v", err)
	}

	conns, err := store.ListConnections(ctx, "usr_1")
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if len(conns) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(conns))
	}
	c := conns[0]
	if c.Status != types.ConnectionError || c.ErrorMessage != "token revoked" {
		t.Errorf("scan state not persisted: %+v", c)
	}
	if c.LastScannedAt == nil || !c.LastScannedAt.Equal(dbNow) {
		t.Errorf("LastScannedAt = %v, want %v", c.LastScannedAt, dbNow)
	}
}

// TestFindingsReplaceScopedToConnection verifies delete-and-recreate
// touches exactly one connection
func TestFindingsReplaceScopedToConnection(t *testing.T) {
	store := openTestStore(t)
	seedUserAndConnection(t, store)
	ctx := context.Background()
	conn2 := types.Connection{
		ID: "conn_2", UserID: "usr_1", Provider: types.ProviderAWS,
		CredentialRef: "ref_2", Status: types.ConnectionActive,
	}
	if err := store.CreateConnection(ctx, conn2); err != nil {
		t.Fatalf("CreateConnection: %v", err)
	}

	mk := func(id, connID string) types.Finding {
		return types.Finding{
			ID: id, ConnectionID: connID, UserID: "usr_1",
			ResourceName: "res-" + id, ResourceType: "widget",
			Status:           types.FindingZombie,
			PotentialSavings: decimal.NewFromFloat(7.20),
			Reason:           "idle",
			DetectedAt:       dbNow,
		}
	}
	if err := store.InsertFindings(ctx, []types.Finding{mk("f1", "conn_1"), mk("f2", "conn_2")}); err != nil {
		t.Fatalf("InsertFindings: %v", err)
	}

	if err := store.DeleteFindings(ctx, "conn_1"); err != nil {
		t.Fatalf("DeleteFindings: %v", err)
	}

	remaining, err := store.ListFindings(ctx, "usr_1")
	if err != nil {
		t.Fatalf("ListFindings: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ConnectionID != "conn_2" {
		t.Errorf("sibling findings disturbed: %+v", remaining)
	}
	if !remaining[0].PotentialSavings.Equal(decimal.NewFromFloat(7.20)) {
		t.Errorf("savings round trip lost precision: %s", remaining[0].PotentialSavings)
	}
}

// TestBillingPeriodUpsert verifies (connection, period) conflicts
// update in place
func TestBillingPeriodUpsert(t *testing.T) {
	store := openTestStore(t)
	seedUserAndConnection(t, store)
	ctx := context.Background()

	first := types.BillingPeriodSummary{
		ConnectionID: "conn_1", Period: "2025-06",
		TotalCost: decimal.NewFromInt(40),
		Breakdown: map[string]decimal.Decimal{"seats": decimal.NewFromInt(40)},
		FetchedAt: dbNow,
	}
	if err := store.UpsertBillingPeriod(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := first
	second.TotalCost = decimal.NewFromInt(44)
	second.Breakdown = map[string]decimal.Decimal{"seats": decimal.NewFromInt(44)}
	if err := store.UpsertBillingPeriod(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := store.ListBillingPeriods(ctx, "conn_1")
	if err != nil {
		t.Fatalf("ListBillingPeriods: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(rows))
	}
	if !rows[0].TotalCost.Equal(decimal.NewFromInt(44)) {
		t.Errorf("upsert did not replace cost: %s", rows[0].TotalCost)
	}
	if !rows[0].Breakdown["seats"].Equal(decimal.NewFromInt(44)) {
		t.Errorf("breakdown round trip failed: %v", rows[0].Breakdown)
	}
}

// TestSavingsSnapshotUpsertPerDay verifies one row per (user,
// connection, date) regardless of recomputes
func TestSavingsSnapshotUpsertPerDay(t *testing.T) {
	store := openTestStore(t)
	seedUserAndConnection(t, store)
	ctx := context.Background()

	snap := types.SavingsSnapshot{
		ID: "snap_1", UserID: "usr_1", ConnectionID: "conn_1",
		Date:         "2025-06-15",
		TotalSavings: decimal.NewFromInt(12),
		ZombieCount:  2, ActiveCount: 3,
		ByService: map[string]decimal.Decimal{"repository": decimal.NewFromInt(12)},
	}
	if err := store.UpsertSavingsSnapshot(ctx, snap); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	snap.ID = "snap_2"
	snap.TotalSavings = decimal.NewFromInt(8)
	if err := store.UpsertSavingsSnapshot(ctx, snap); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	snaps, err := store.ListSavingsSnapshots(ctx, "usr_1")
	if err != nil {
		t.Fatalf("ListSavingsSnapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot for the day, got %d", len(snaps))
	}
	if !snaps[0].TotalSavings.Equal(decimal.NewFromInt(8)) {
		t.Errorf("recompute did not replace savings: %s", snaps[0].TotalSavings)
	}
}

// TestAggregateStatsRefresh verifies the singleton row recomputes from
// the live finding set
func TestAggregateStatsRefresh(t *testing.T) {
	store := openTestStore(t)
	seedUserAndConnection(t, store)
	ctx := context.Background()

	findings := []types.Finding{
		{ID: "f1", ConnectionID: "conn_1", UserID: "usr_1", ResourceName: "a",
			ResourceType: "widget", Status: types.FindingZombie,
			PotentialSavings: decimal.NewFromInt(10), Reason: "idle", DetectedAt: dbNow},
		{ID: "f2", ConnectionID: "conn_1", UserID: "usr_1", ResourceName: "b",
			ResourceType: "widget", Status: types.FindingActive,
			PotentialSavings: decimal.Zero, Reason: "busy", DetectedAt: dbNow},
	}
	if err := store.InsertFindings(ctx, findings); err != nil {
		t.Fatalf("InsertFindings: %v", err)
	}

	if err := store.RefreshAggregateStats(ctx, dbNow); err != nil {
		t.Fatalf("RefreshAggregateStats: %v", err)
	}
	stats, err := store.GetAggregateStats(ctx)
	if err != nil {
		t.Fatalf("GetAggregateStats: %v", err)
	}
	if stats.TotalUsers != 1 || stats.TotalFindings != 2 {
		t.Errorf("counts = %d users / %d findings", stats.TotalUsers, stats.TotalFindings)
	}
	if !stats.TotalPotentialSavings.Equal(decimal.NewFromInt(10)) {
		t.Errorf("total savings = %s, want 10", stats.TotalPotentialSavings)
	}
}

// TestAggregateStatsSumsExactly verifies savings totals stay exact for
// amounts that do not have a finite binary representation
func TestAggregateStatsSumsExactly(t *testing.T) {
	store := openTestStore(t)
	seedUserAndConnection(t, store)
	ctx := context.Background()

	amounts := []string{"0.10", "0.20", "0.30"}
	var findings []types.Finding
	for i, amount := range amounts {
		savings, err := decimal.NewFromString(amount)
		if err != nil {
			t.Fatalf("parse %s: %v", amount, err)
		}
		findings = append(findings, types.Finding{
			ID: fmt.Sprintf("f%d", i), ConnectionID: "conn_1", UserID: "usr_1",
			ResourceName: fmt.Sprintf("widget-%d", i), ResourceType: "widget",
			Status: types.FindingZombie, PotentialSavings: savings,
			Reason: "idle", DetectedAt: dbNow,
		})
	}
	if err := store.InsertFindings(ctx, findings); err != nil {
		t.Fatalf("InsertFindings: %v", err)
	}

	if err := store.RefreshAggregateStats(ctx, dbNow); err != nil {
		t.Fatalf("RefreshAggregateStats: %v", err)
	}
	stats, err := store.GetAggregateStats(ctx)
	if err != nil {
		t.Fatalf("GetAggregateStats: %v", err)
	}
	want := decimal.NewFromFloat(0.6)
	if !stats.TotalPotentialSavings.Equal(want) {
		t.Errorf("total savings = %s, want %s", stats.TotalPotentialSavings, want)
	}
	// The stored text must carry no floating-point residue
	if got := stats.TotalPotentialSavings.String(); got != "0.60" && got != "0.6" {
		t.Errorf("stored total = %q, expected an exact decimal", got)
	}
}
