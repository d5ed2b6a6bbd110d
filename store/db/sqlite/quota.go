package sqlite

import (
	"context"
	"database/sql"

	"github.com/dealcoach/dealcoach/store"
)

func (d *DB) GetQuota(ctx context.Context, organizationID string) (*store.Quota, error) {
	q := &store.Quota{}
	var unlimited int
	err := d.conn().QueryRowContext(ctx,
		`SELECT organization_id, used, monthly_limit, reset_ts, unlimited FROM quota WHERE organization_id = ?`,
		organizationID,
	).Scan(&q.OrganizationID, &q.Used, &q.MonthlyLimit, &q.ResetTs, &unlimited)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Unlimited = unlimited != 0
	return q, nil
}

func (d *DB) UpsertQuota(ctx context.Context, upsert *store.Quota) (*store.Quota, error) {
	unlimited := 0
	if upsert.Unlimited {
		unlimited = 1
	}
	stmt := `INSERT INTO quota (organization_id, used, monthly_limit, reset_ts, unlimited)
	         VALUES (?, ?, ?, ?, ?)
	         ON CONFLICT (organization_id) DO UPDATE SET
	           used = excluded.used,
	           monthly_limit = excluded.monthly_limit,
	           reset_ts = excluded.reset_ts,
	           unlimited = excluded.unlimited`
	if _, err := d.conn().ExecContext(ctx, stmt, upsert.OrganizationID, upsert.Used, upsert.MonthlyLimit, upsert.ResetTs, unlimited); err != nil {
		return nil, err
	}
	return d.GetQuota(ctx, upsert.OrganizationID)
}
