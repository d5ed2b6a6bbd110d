package store_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dealcoach/dealcoach/store"
	"github.com/dealcoach/dealcoach/store/db/sqlite"
)

func newTestStore(t *testing.T, opts store.Options) *store.Store {
	t.Helper()
	driver, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	st := store.New(driver, opts)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCheckQuotaSeedsDefaultRow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, store.Options{DefaultQuotaLimit: 10, QuotaWindow: time.Hour})

	q, err := st.CheckQuota(ctx, "acme")
	require.NoError(t, err)
	require.EqualValues(t, 0, q.Used)
	require.EqualValues(t, 10, q.MonthlyLimit)
	require.EqualValues(t, 10, q.Remaining())
	require.Greater(t, q.ResetTs, time.Now().Unix())
}

func TestIncrementQuotaEnforcesLimit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, store.Options{DefaultQuotaLimit: 2, QuotaWindow: time.Hour})

	q, err := st.IncrementQuota(ctx, "acme", 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, q.Used)

	q, err = st.IncrementQuota(ctx, "acme", 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, q.Used)
	require.Zero(t, q.Remaining())

	_, err = st.IncrementQuota(ctx, "acme", 1)
	require.ErrorIs(t, err, store.ErrQuotaExceeded)

	// The rejected increment left usage untouched.
	q, err = st.CheckQuota(ctx, "acme")
	require.NoError(t, err)
	require.EqualValues(t, 2, q.Used)
}

func TestIncrementQuotaUnlimitedTier(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, store.Options{DefaultQuotaLimit: 1, QuotaWindow: time.Hour})

	_, err := st.SetQuotaLimit(ctx, "acme", 1, true)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		q, err := st.IncrementQuota(ctx, "acme", 1)
		require.NoError(t, err)
		require.EqualValues(t, -1, q.Remaining())
	}
}

func TestCheckQuotaResetsExpiredWindow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, store.Options{DefaultQuotaLimit: 5, QuotaWindow: time.Second})

	_, err := st.IncrementQuota(ctx, "acme", 5)
	require.NoError(t, err)
	_, err = st.IncrementQuota(ctx, "acme", 1)
	require.ErrorIs(t, err, store.ErrQuotaExceeded)

	time.Sleep(1100 * time.Millisecond)

	q, err := st.CheckQuota(ctx, "acme")
	require.NoError(t, err)
	require.EqualValues(t, 0, q.Used)
	require.Greater(t, q.ResetTs, time.Now().Unix())

	_, err = st.IncrementQuota(ctx, "acme", 1)
	require.NoError(t, err)
}

func TestIncrementQuotaConcurrentAtBoundary(t *testing.T) {
	ctx := context.Background()
	limit := int32(5)
	st := newTestStore(t, store.Options{DefaultQuotaLimit: limit, QuotaWindow: time.Hour})

	_, err := st.IncrementQuota(ctx, "acme", limit-1)
	require.NoError(t, err)

	// One slot left; of N racing increments exactly one may win.
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.IncrementQuota(ctx, "acme", 1); err == nil {
				wins.Add(1)
			} else {
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, 7, losses.Load())

	q, err := st.CheckQuota(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, limit, q.Used)
}
