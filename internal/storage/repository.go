package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fert-price-monitor/internal/adjust"
	"fert-price-monitor/internal/alert"
	"fert-price-monitor/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPriceSampleSQL = `INSERT INTO price_samples (
        product,
        region,
        price,
        unit,
        currency,
        source,
        confidence,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (product, region, observed_at) DO UPDATE
    SET
        price      = EXCLUDED.price,
        unit       = EXCLUDED.unit,
        currency   = EXCLUDED.currency,
        source     = EXCLUDED.source,
        confidence = EXCLUDED.confidence;`

	listSamplesBetweenSQL = `SELECT
        product,
        region,
        price,
        unit,
        currency,
        source,
        confidence,
        observed_at,
        created_at
    FROM price_samples
    WHERE product = $1
      AND region = $2
      AND observed_at >= $3
      AND observed_at < $4
    ORDER BY observed_at;`

	listRecentSamplesSQL = `SELECT
        product,
        region,
        price,
        unit,
        currency,
        source,
        confidence,
        observed_at,
        created_at
    FROM price_samples
    ORDER BY observed_at DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM price_samples;`

	upsertModificationSQL = `INSERT INTO strategy_modifications (
        id,
        session_id,
        product,
        kind,
        adjustment_pct,
        reason,
        impact,
        requires_approval,
        approval_status,
        approved_by,
        implemented,
        implemented_at,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (id) DO UPDATE
    SET
        approval_status = EXCLUDED.approval_status,
        approved_by     = EXCLUDED.approved_by,
        implemented     = EXCLUDED.implemented,
        implemented_at  = EXCLUDED.implemented_at;`

	updateModificationApprovalSQL = `UPDATE strategy_modifications
    SET approval_status = $2, approved_by = $3
    WHERE id = $1;`

	listRecentModificationsSQL = `SELECT
        id,
        session_id,
        product,
        kind,
        adjustment_pct,
        reason,
        impact,
        requires_approval,
        approval_status,
        approved_by,
        implemented,
        implemented_at,
        created_at
    FROM strategy_modifications
    ORDER BY created_at DESC
    LIMIT $1;`

	listModificationsByStatusSQL = `SELECT
        id,
        session_id,
        product,
        kind,
        adjustment_pct,
        reason,
        impact,
        requires_approval,
        approval_status,
        approved_by,
        implemented,
        implemented_at,
        created_at
    FROM strategy_modifications
    WHERE approval_status = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	upsertAlertSQL = `INSERT INTO alerts (
        id,
        session_id,
        product,
        region,
        trigger_kind,
        priority,
        message,
        details,
        requires_action,
        action_deadline,
        status,
        created_at,
        expires_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (id) DO UPDATE
    SET status = EXCLUDED.status;`

	listRecentAlertsSQL = `SELECT
        id,
        session_id,
        product,
        region,
        trigger_kind,
        priority,
        message,
        details,
        requires_action,
        action_deadline,
        status,
        created_at,
        expires_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE expires_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore defines operations for price sample persistence.
type SampleStore interface {
	SaveSample(ctx context.Context, snapshot market.PriceSnapshot) error
	ListSamplesBetween(ctx context.Context, product market.FertilizerType, region string, from, to time.Time) ([]PriceSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// ModificationStore defines operations for the strategy modification trail.
type ModificationStore interface {
	SaveModification(ctx context.Context, mod adjust.Modification) error
	UpdateModificationApproval(ctx context.Context, id string, status adjust.ApprovalStatus, approvedBy *string) error
	ListRecentModifications(ctx context.Context, limit int) ([]ModificationRecord, error)
	ListModificationsByStatus(ctx context.Context, status adjust.ApprovalStatus, limit int) ([]ModificationRecord, error)
}

// AlertStore defines operations for alert auditing and retention.
type AlertStore interface {
	SaveAlert(ctx context.Context, a alert.Alert) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to price samples, modifications and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
// Maintenance sweeps use it so only one instance runs retention at a time.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveSample persists a market snapshot, replacing any earlier row for the
// same (product, region, observation time).
func (s *Store) SaveSample(ctx context.Context, snapshot market.PriceSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPriceSampleSQL,
		string(snapshot.Product),
		snapshot.Region,
		snapshot.PricePerUnit.String(),
		snapshot.Unit,
		snapshot.Currency,
		snapshot.Source,
		snapshot.Confidence,
		snapshot.AsOf,
	)
	if execErr != nil {
		return fmt.Errorf("save price sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples for one product/region within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, product market.FertilizerType, region string, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, string(product), region, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// ListRecentSamples lists the most recent samples ordered by descending observation time.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// SaveModification persists a strategy modification. Saving the same id
// again refreshes the approval trail columns, so callers can re-save after
// a workflow resolves.
func (s *Store) SaveModification(ctx context.Context, mod adjust.Modification) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var impact interface{}
	if mod.Impact != nil {
		raw, marshalErr := json.Marshal(mod.Impact)
		if marshalErr != nil {
			return fmt.Errorf("encode impact: %w", marshalErr)
		}
		impact = raw
	}

	var approvedBy interface{}
	if mod.ApprovedBy != nil {
		approvedBy = *mod.ApprovedBy
	}

	var implementedAt interface{}
	if mod.ImplementedAt != nil {
		implementedAt = *mod.ImplementedAt
	}

	_, execErr := pool.Exec(ctx, upsertModificationSQL,
		mod.ID,
		mod.SessionID,
		string(mod.Product),
		string(mod.Kind),
		mod.AdjustmentPct,
		mod.Reason,
		impact,
		mod.RequiresApproval,
		string(mod.ApprovalStatus),
		approvedBy,
		mod.Implemented,
		implementedAt,
		mod.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("save modification: %w", execErr)
	}
	return nil
}

// UpdateModificationApproval flips the approval outcome on a stored modification.
func (s *Store) UpdateModificationApproval(ctx context.Context, id string, status adjust.ApprovalStatus, approvedBy *string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var approver interface{}
	if approvedBy != nil {
		approver = *approvedBy
	}

	cmdTag, execErr := pool.Exec(ctx, updateModificationApprovalSQL, id, string(status), approver)
	if execErr != nil {
		return fmt.Errorf("update modification approval: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListRecentModifications lists the most recent modifications.
func (s *Store) ListRecentModifications(ctx context.Context, limit int) ([]ModificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentModificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent modifications: %w", queryErr)
	}
	defer rows.Close()

	return collectModifications(rows, limit)
}

// ListModificationsByStatus lists modifications in one approval state,
// newest first. Pending rows are what the approval reminder sweep reads.
func (s *Store) ListModificationsByStatus(ctx context.Context, status adjust.ApprovalStatus, limit int) ([]ModificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listModificationsByStatusSQL, string(status), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list modifications by status: %w", queryErr)
	}
	defer rows.Close()

	return collectModifications(rows, limit)
}

// SaveAlert persists an alert emission. Re-saving the same id refreshes the
// status column, which is how expiry sweeps land in the audit trail.
func (s *Store) SaveAlert(ctx context.Context, a alert.Alert) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	details, marshalErr := json.Marshal(a.Details)
	if marshalErr != nil {
		return fmt.Errorf("encode alert details: %w", marshalErr)
	}

	var deadline interface{}
	if a.ActionDeadline != nil {
		deadline = *a.ActionDeadline
	}

	_, execErr := pool.Exec(ctx, upsertAlertSQL,
		a.ID,
		a.SessionID,
		string(a.Product),
		a.Region,
		string(a.Trigger),
		string(a.Priority),
		a.Message,
		details,
		a.RequiresAction,
		deadline,
		string(a.Status),
		a.CreatedAt,
		a.ExpiresAt,
	)
	if execErr != nil {
		return fmt.Errorf("save alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec      AlertRecord
			details  json.RawMessage
			deadline sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Product,
			&rec.Region,
			&rec.Trigger,
			&rec.Priority,
			&rec.Message,
			&details,
			&rec.RequiresAction,
			&deadline,
			&rec.Status,
			&rec.CreatedAt,
			&rec.ExpiresAt,
		); err != nil {
			return nil, err
		}
		rec.Details = details
		if deadline.Valid {
			value := deadline.Time
			rec.ActionDeadline = &value
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore removes alerts whose retention window closed before the
// given instant and reports how many rows went away.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

func scanPriceSample(rows pgx.Rows) (PriceSample, error) {
	var (
		sample   PriceSample
		priceStr string
	)

	if err := rows.Scan(
		&sample.Product,
		&sample.Region,
		&priceStr,
		&sample.Unit,
		&sample.Currency,
		&sample.Source,
		&sample.Confidence,
		&sample.ObservedAt,
		&sample.CreatedAt,
	); err != nil {
		return PriceSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}
	sample.Price = price

	return sample, nil
}

func collectModifications(rows pgx.Rows, limit int) ([]ModificationRecord, error) {
	mods := make([]ModificationRecord, 0, limit)
	for rows.Next() {
		var (
			rec           ModificationRecord
			impact        json.RawMessage
			approvedBy    sql.NullString
			implementedAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Product,
			&rec.Kind,
			&rec.AdjustmentPct,
			&rec.Reason,
			&impact,
			&rec.RequiresApproval,
			&rec.ApprovalStatus,
			&approvedBy,
			&rec.Implemented,
			&implementedAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Impact = impact
		if approvedBy.Valid {
			value := approvedBy.String
			rec.ApprovedBy = &value
		}
		if implementedAt.Valid {
			value := implementedAt.Time
			rec.ImplementedAt = &value
		}
		mods = append(mods, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return mods, nil
}
