package store

import (
	"context"
	"time"
)

// Quota tracks an organization's usage against its rolling monthly limit.
// Rows are mutated only through CheckQuota and IncrementQuota.
type Quota struct {
	OrganizationID string
	Used           int32
	MonthlyLimit   int32
	ResetTs        int64
	Unlimited      bool
}

// Remaining reports how many scored sessions the organization has left.
func (q *Quota) Remaining() int32 {
	if q.Unlimited {
		return -1
	}
	if q.Used >= q.MonthlyLimit {
		return 0
	}
	return q.MonthlyLimit - q.Used
}

// CheckQuota returns the organization's current quota state, creating a
// default row on first sight and rolling the window forward when the reset
// timestamp has elapsed. The reset is a side effect of the check itself.
func (s *Store) CheckQuota(ctx context.Context, organizationID string) (*Quota, error) {
	unlock := s.quotaMu.lock(organizationID)
	defer unlock()

	var out *Quota
	err := s.driver.RunInTransaction(ctx, func(d Driver) error {
		q, err := s.freshQuota(ctx, d, organizationID)
		if err != nil {
			return err
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IncrementQuota adds amount to the organization's usage. Unlimited-tier
// organizations always succeed; otherwise the call fails with
// ErrQuotaExceeded when the limit would be passed, leaving state unmodified.
func (s *Store) IncrementQuota(ctx context.Context, organizationID string, amount int32) (*Quota, error) {
	unlock := s.quotaMu.lock(organizationID)
	defer unlock()

	var out *Quota
	err := s.driver.RunInTransaction(ctx, func(d Driver) error {
		q, err := s.freshQuota(ctx, d, organizationID)
		if err != nil {
			return err
		}
		if !q.Unlimited && q.Used+amount > q.MonthlyLimit {
			return ErrQuotaExceeded
		}
		q.Used += amount
		updated, err := d.UpsertQuota(ctx, q)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetQuotaLimit adjusts an organization's plan tier. Used by the admin
// surface, not by the core request path.
func (s *Store) SetQuotaLimit(ctx context.Context, organizationID string, limit int32, unlimited bool) (*Quota, error) {
	unlock := s.quotaMu.lock(organizationID)
	defer unlock()

	var out *Quota
	err := s.driver.RunInTransaction(ctx, func(d Driver) error {
		q, err := s.freshQuota(ctx, d, organizationID)
		if err != nil {
			return err
		}
		q.MonthlyLimit = limit
		q.Unlimited = unlimited
		updated, err := d.UpsertQuota(ctx, q)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// freshQuota loads the quota row inside the caller's transaction, seeding a
// default row when missing and applying the reset-on-expiry rule.
func (s *Store) freshQuota(ctx context.Context, d Driver, organizationID string) (*Quota, error) {
	q, err := d.GetQuota(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if q == nil {
		return d.UpsertQuota(ctx, &Quota{
			OrganizationID: organizationID,
			Used:           0,
			MonthlyLimit:   s.opts.DefaultQuotaLimit,
			ResetTs:        now.Add(s.opts.QuotaWindow).Unix(),
		})
	}
	if now.Unix() >= q.ResetTs {
		q.Used = 0
		q.ResetTs = now.Add(s.opts.QuotaWindow).Unix()
		return d.UpsertQuota(ctx, q)
	}
	return q, nil
}
