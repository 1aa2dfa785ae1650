package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"wastescan/core/types"
	"wastescan/internal/errors"
)

// SQLStore is the sqlite-backed Store implementation
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// Open opens (and migrates) the database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Persistence("failed to open database", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.Persistence("failed to migrate database", err)
	}
	return &SQLStore{db: db}, nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// GetUser implements Store
func (s *SQLStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	var u types.User
	var qualified int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, tier, scan_count, referred_by, referral_qualified
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.Tier, &u.ScanCount, &u.ReferredBy, &qualified)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	if err != nil {
		return nil, errors.Persistence("failed to load user", err)
	}
	u.ReferralQualified = qualified != 0
	return &u, nil
}

// ListUsers implements Store
func (s *SQLStore) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, tier, scan_count, referred_by, referral_qualified
		FROM users ORDER BY id`)
	if err != nil {
		return nil, errors.Persistence("failed to list users", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var u types.User
		var qualified int
		if err := rows.Scan(&u.ID, &u.Email, &u.Tier, &u.ScanCount, &u.ReferredBy, &qualified); err != nil {
			return nil, errors.Persistence("failed to scan user row", err)
		}
		u.ReferralQualified = qualified != 0
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser implements Store
func (s *SQLStore) CreateUser(ctx context.Context, user types.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, tier, scan_count, referred_by, referral_qualified)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Tier, user.ScanCount, user.ReferredBy, boolToInt(user.ReferralQualified))
	if err != nil {
		return errors.Persistence("failed to create user", err)
	}
	return nil
}

// IncrementScanCount implements Store
func (s *SQLStore) IncrementScanCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET scan_count = scan_count + 1 WHERE id = ?
		RETURNING scan_count`, userID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, errors.NotFound("user", userID)
	}
	if err != nil {
		return 0, errors.Persistence("failed to increment scan count", err)
	}
	return count, nil
}

// MarkReferralQualified implements Store
func (s *SQLStore) MarkReferralQualified(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET referral_qualified = 1 WHERE id = ?`, userID)
	if err != nil {
		return errors.Persistence("failed to mark referral qualified", err)
	}
	return nil
}

// ListConnections implements Store
func (s *SQLStore) ListConnections(ctx context.Context, userID string) ([]types.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, credential_ref, account_label, environment,
		       is_default, status, error_message, last_scanned_at
		FROM connections WHERE user_id = ? ORDER BY is_default DESC, id`, userID)
	if err != nil {
		return nil, errors.Persistence("failed to list connections", err)
	}
	defer rows.Close()

	var conns []types.Connection
	for rows.Next() {
		var c types.Connection
		var isDefault int
		var scannedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.CredentialRef, &c.AccountLabel,
			&c.Environment, &isDefault, &c.Status, &c.ErrorMessage, &scannedAt); err != nil {
			return nil, errors.Persistence("failed to scan connection row", err)
		}
		c.IsDefault = isDefault != 0
		if scannedAt.Valid && scannedAt.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, scannedAt.String); err == nil {
				c.LastScannedAt = &t
			}
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// CreateConnection implements Store
func (s *SQLStore) CreateConnection(ctx context.Context, conn types.Connection) error {
	var scannedAt interface{}
	if conn.LastScannedAt != nil {
		scannedAt = conn.LastScannedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, user_id, provider, credential_ref, account_label,
		                         environment, is_default, status, error_message, last_scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.UserID, conn.Provider, conn.CredentialRef, conn.AccountLabel,
		conn.Environment, boolToInt(conn.IsDefault), conn.Status, conn.ErrorMessage, scannedAt)
	if err != nil {
		return errors.Persistence("failed to create connection", err)
	}
	return nil
}

// UpdateConnectionScan implements Store
func (s *SQLStore) UpdateConnectionScan(ctx context.Context, connectionID string, status types.ConnectionStatus, errorMessage string, scannedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE connections SET status = ?, error_message = ?, last_scanned_at = ?
		WHERE id = ?`,
		status, errorMessage, scannedAt.UTC().Format(time.RFC3339Nano), connectionID)
	if err != nil {
		return errors.Persistence("failed to update connection scan state", err)
	}
	return nil
}

// DeleteFindings implements Store. Scoped to one connection so a
// re-scan can never disturb a sibling's findings.
func (s *SQLStore) DeleteFindings(ctx context.Context, connectionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM findings WHERE connection_id = ?`, connectionID)
	if err != nil {
		return errors.Persistence("failed to delete findings", err)
	}
	return nil
}

// InsertFindings implements Store
func (s *SQLStore) InsertFindings(ctx context.Context, findings []types.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Persistence("failed to begin findings insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (id, connection_id, user_id, resource_name, resource_type,
		                      status, potential_savings, reason, smart_recommendation,
		                      uses_fallback, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Persistence("failed to prepare findings insert", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if _, err := stmt.ExecContext(ctx,
			f.ID, f.ConnectionID, f.UserID, f.ResourceName, f.ResourceType,
			f.Status, f.PotentialSavings.String(), f.Reason, f.SmartRecommendation,
			boolToInt(f.UsesFallback), f.DetectedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return errors.Persistence("failed to insert finding", err).
				WithContext("resource_name", f.ResourceName)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Persistence("failed to commit findings insert", err)
	}
	return nil
}

const findingColumns = `id, connection_id, user_id, resource_name, resource_type,
	status, potential_savings, reason, smart_recommendation, uses_fallback, detected_at`

// ListFindings implements Store
func (s *SQLStore) ListFindings(ctx context.Context, userID string) ([]types.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+findingColumns+` FROM findings
		WHERE user_id = ? ORDER BY detected_at DESC, id`, userID)
	if err != nil {
		return nil, errors.Persistence("failed to list findings", err)
	}
	return scanFindings(rows)
}

// ListFindingsByConnections implements Store
func (s *SQLStore) ListFindingsByConnections(ctx context.Context, connectionIDs []string) ([]types.Finding, error) {
	if len(connectionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(connectionIDs)*2-1)
	args := make([]interface{}, 0, len(connectionIDs))
	for i, id := range connectionIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+findingColumns+` FROM findings
		WHERE connection_id IN (`+string(placeholders)+`)
		ORDER BY detected_at DESC, id`, args...)
	if err != nil {
		return nil, errors.Persistence("failed to list findings by connections", err)
	}
	return scanFindings(rows)
}

func scanFindings(rows *sql.Rows) ([]types.Finding, error) {
	defer rows.Close()

	var findings []types.Finding
	for rows.Next() {
		var f types.Finding
		var savings, detectedAt string
		var usesFallback int
		if err := rows.Scan(&f.ID, &f.ConnectionID, &f.UserID, &f.ResourceName, &f.ResourceType,
			&f.Status, &savings, &f.Reason, &f.SmartRecommendation, &usesFallback, &detectedAt); err != nil {
			return nil, errors.Persistence("failed to scan finding row", err)
		}
		f.PotentialSavings, _ = decimal.NewFromString(savings)
		f.UsesFallback = usesFallback != 0
		if t, err := time.Parse(time.RFC3339Nano, detectedAt); err == nil {
			f.DetectedAt = t
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// UpsertBillingPeriod implements Store
func (s *SQLStore) UpsertBillingPeriod(ctx context.Context, summary types.BillingPeriodSummary) error {
	breakdown, err := marshalDecimalMap(summary.Breakdown)
	if err != nil {
		return errors.Persistence("failed to encode billing breakdown", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO billing_periods (connection_id, period, total_cost, breakdown, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(connection_id, period) DO UPDATE SET
			total_cost = excluded.total_cost,
			breakdown = excluded.breakdown,
			fetched_at = excluded.fetched_at`,
		summary.ConnectionID, summary.Period, summary.TotalCost.String(),
		breakdown, summary.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Persistence("failed to upsert billing period", err)
	}
	return nil
}

// ListBillingPeriods implements Store
func (s *SQLStore) ListBillingPeriods(ctx context.Context, connectionID string) ([]types.BillingPeriodSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT connection_id, period, total_cost, breakdown, fetched_at
		FROM billing_periods WHERE connection_id = ? ORDER BY period DESC`, connectionID)
	if err != nil {
		return nil, errors.Persistence("failed to list billing periods", err)
	}
	defer rows.Close()

	var summaries []types.BillingPeriodSummary
	for rows.Next() {
		var b types.BillingPeriodSummary
		var cost, breakdown, fetchedAt string
		if err := rows.Scan(&b.ConnectionID, &b.Period, &cost, &breakdown, &fetchedAt); err != nil {
			return nil, errors.Persistence("failed to scan billing row", err)
		}
		b.TotalCost, _ = decimal.NewFromString(cost)
		b.Breakdown, _ = unmarshalDecimalMap(breakdown)
		if t, err := time.Parse(time.RFC3339Nano, fetchedAt); err == nil {
			b.FetchedAt = t
		}
		summaries = append(summaries, b)
	}
	return summaries, rows.Err()
}

// UpsertSavingsSnapshot implements Store
func (s *SQLStore) UpsertSavingsSnapshot(ctx context.Context, snapshot types.SavingsSnapshot) error {
	byService, err := marshalDecimalMap(snapshot.ByService)
	if err != nil {
		return errors.Persistence("failed to encode savings breakdown", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO savings_snapshots (id, user_id, connection_id, date, total_savings,
		                               zombie_count, active_count, by_service)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, connection_id, date) DO UPDATE SET
			total_savings = excluded.total_savings,
			zombie_count = excluded.zombie_count,
			active_count = excluded.active_count,
			by_service = excluded.by_service`,
		snapshot.ID, snapshot.UserID, snapshot.ConnectionID, snapshot.Date,
		snapshot.TotalSavings.String(), snapshot.ZombieCount, snapshot.ActiveCount, byService)
	if err != nil {
		return errors.Persistence("failed to upsert savings snapshot", err)
	}
	return nil
}

// ListSavingsSnapshots implements Store
func (s *SQLStore) ListSavingsSnapshots(ctx context.Context, userID string) ([]types.SavingsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, connection_id, date, total_savings, zombie_count, active_count, by_service
		FROM savings_snapshots WHERE user_id = ? ORDER BY date DESC, connection_id`, userID)
	if err != nil {
		return nil, errors.Persistence("failed to list savings snapshots", err)
	}
	defer rows.Close()

	var snapshots []types.SavingsSnapshot
	for rows.Next() {
		var sn types.SavingsSnapshot
		var savings, byService string
		if err := rows.Scan(&sn.ID, &sn.UserID, &sn.ConnectionID, &sn.Date,
			&savings, &sn.ZombieCount, &sn.ActiveCount, &byService); err != nil {
			return nil, errors.Persistence("failed to scan snapshot row", err)
		}
		sn.TotalSavings, _ = decimal.NewFromString(savings)
		sn.ByService, _ = unmarshalDecimalMap(byService)
		snapshots = append(snapshots, sn)
	}
	return snapshots, rows.Err()
}

// RefreshAggregateStats implements Store. Recomputes the single
// cross-user row from the live finding set. Savings are summed in Go
// so the figures never pass through floating point.
func (s *SQLStore) RefreshAggregateStats(ctx context.Context, now time.Time) error {
	var totalUsers, totalFindings int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM users),
		       (SELECT COUNT(*) FROM findings)`).
		Scan(&totalUsers, &totalFindings)
	if err != nil {
		return errors.Persistence("failed to compute aggregate stats", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT potential_savings FROM findings`)
	if err != nil {
		return errors.Persistence("failed to compute aggregate stats", err)
	}
	defer rows.Close()

	totalSavings := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return errors.Persistence("failed to compute aggregate stats", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.Persistence("corrupt savings figure in findings", err)
		}
		totalSavings = totalSavings.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return errors.Persistence("failed to compute aggregate stats", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aggregate_stats (id, total_users, total_findings, total_potential_savings, refreshed_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_users = excluded.total_users,
			total_findings = excluded.total_findings,
			total_potential_savings = excluded.total_potential_savings,
			refreshed_at = excluded.refreshed_at`,
		totalUsers, totalFindings,
		totalSavings.String(),
		now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Persistence("failed to upsert aggregate stats", err)
	}
	return nil
}

// GetAggregateStats implements Store
func (s *SQLStore) GetAggregateStats(ctx context.Context) (*types.AggregateStats, error) {
	var stats types.AggregateStats
	var savings, refreshedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT total_users, total_findings, total_potential_savings, refreshed_at
		FROM aggregate_stats WHERE id = 1`).
		Scan(&stats.TotalUsers, &stats.TotalFindings, &savings, &refreshedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("aggregate stats", "1")
	}
	if err != nil {
		return nil, errors.Persistence("failed to load aggregate stats", err)
	}
	stats.TotalPotentialSavings, _ = decimal.NewFromString(savings)
	if t, err := time.Parse(time.RFC3339Nano, refreshedAt); err == nil {
		stats.RefreshedAt = t
	}
	return &stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalDecimalMap(m map[string]decimal.Decimal) (string, error) {
	if m == nil {
		return "{}", nil
	}
	raw := make(map[string]string, len(m))
	for k, v := range m {
		raw[k] = v.String()
	}
	data, err := json.Marshal(raw)
	return string(data), err
}

func unmarshalDecimalMap(data string) (map[string]decimal.Decimal, error) {
	var raw map[string]string
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	m := make(map[string]decimal.Decimal, len(raw))
	for k, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		m[k] = d
	}
	return m, nil
}
