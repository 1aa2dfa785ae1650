// Package db provides the persistence store for the scan core.
// Four logical collections: connections, findings, billing periods and
// savings snapshots, plus the user records and the cross-user
// aggregate row. Uniqueness contracts live in the schema so upserts
// stay race-safe without explicit locking.
package db

import (
	"context"
	"time"

	"wastescan/core/types"
)

// Store is the persistence boundary consumed by the orchestrator and
// the aggregators
type Store interface {
	// Users
	GetUser(ctx context.Context, id string) (*types.User, error)
	ListUsers(ctx context.Context) ([]types.User, error)
	CreateUser(ctx context.Context, user types.User) error

	// IncrementScanCount bumps the user's completed-scan counter and
	// returns the new value; the periodic aggregate refresh keys off it
	IncrementScanCount(ctx context.Context, userID string) (int, error)

	// MarkReferralQualified idempotently marks the user's referral as
	// qualified
	MarkReferralQualified(ctx context.Context, userID string) error

	// Connections
	ListConnections(ctx context.Context, userID string) ([]types.Connection, error)
	CreateConnection(ctx context.Context, conn types.Connection) error

	// UpdateConnectionScan records the outcome of one scan attempt:
	// status, error message and scan timestamp move together
	UpdateConnectionScan(ctx context.Context, connectionID string, status types.ConnectionStatus, errorMessage string, scannedAt time.Time) error

	// Findings
	DeleteFindings(ctx context.Context, connectionID string) error
	InsertFindings(ctx context.Context, findings []types.Finding) error
	ListFindings(ctx context.Context, userID string) ([]types.Finding, error)
	ListFindingsByConnections(ctx context.Context, connectionIDs []string) ([]types.Finding, error)

	// Billing
	UpsertBillingPeriod(ctx context.Context, summary types.BillingPeriodSummary) error
	ListBillingPeriods(ctx context.Context, connectionID string) ([]types.BillingPeriodSummary, error)

	// Savings snapshots
	UpsertSavingsSnapshot(ctx context.Context, snapshot types.SavingsSnapshot) error
	ListSavingsSnapshots(ctx context.Context, userID string) ([]types.SavingsSnapshot, error)

	// Aggregate stats
	RefreshAggregateStats(ctx context.Context, now time.Time) error
	GetAggregateStats(ctx context.Context) (*types.AggregateStats, error)

	Close() error
}
