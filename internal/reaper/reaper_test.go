package reaper

import (
	"context"
	"testing"
	"time"

	"helpmatch/internal/featureflags"
	"helpmatch/internal/models"
	"helpmatch/internal/repository"
	"helpmatch/internal/service"
	"helpmatch/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type flags map[string]bool

func (f flags) Global(name string) bool { return f[name] }

type conflictingExpirer struct{ calls int }

func (e *conflictingExpirer) ExpireClaim(context.Context, uint, int64, time.Time) (*models.Request, error) {
	e.calls++
	return nil, models.NewConflictError("request was modified concurrently")
}

type fixture struct {
	db        *gorm.DB
	requests  repository.RequestRepository
	lifecycle *service.LifecycleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	requests := repository.NewRequestRepository(db, nil, 0)
	users := repository.NewUserRepository(db, nil, 0)
	photos := repository.NewPhotoRepository(db)
	return &fixture{
		db:        db,
		requests:  requests,
		lifecycle: service.NewLifecycleService(requests, users, photos, nil, nil),
	}
}

// claimAt claims a fresh request and backdates the claim.
func (f *fixture) claimAt(t *testing.T, claimedAt time.Time) *models.Request {
	t.Helper()
	requester := testutil.CreateUser(t, f.db, models.RoleRequester)
	helper := testutil.CreateUser(t, f.db, models.RoleHelper)
	req := testutil.CreateRequest(t, f.db, requester.ID)
	claimed, err := f.lifecycle.ClaimRequest(context.Background(), req.ID, helper.ID, req.Version)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Request{}).Where("id = ?", req.ID).Update("claimed_at", claimedAt).Error)
	return claimed
}

func TestSweepExpiresOnlyStaleClaims(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	stale := f.claimAt(t, now.Add(-2*time.Hour))
	fresh := f.claimAt(t, now.Add(-10*time.Minute))

	r := New(f.requests, f.lifecycle, flags{featureflags.ClaimReaper: true}, time.Hour, time.Minute)
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.requests.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, got.Status)
	assert.Equal(t, "claim expired", got.CancelReason)
	assert.Equal(t, stale.Version+1, got.Version)

	got, err = f.requests.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusClaimed, got.Status)

	// a second sweep finds nothing left to do
	n, err = r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepLeavesStartedRequests(t *testing.T) {
	f := newFixture(t)
	req := f.claimAt(t, time.Now().UTC().Add(-3*time.Hour))
	_, err := f.lifecycle.AdvanceStatus(context.Background(), service.AdvanceInput{
		RequestID:       req.ID,
		ActorID:         *req.ClaimantID,
		Target:          models.RequestStatusInProgress,
		ExpectedVersion: req.Version,
	})
	require.NoError(t, err)

	r := New(f.requests, f.lifecycle, flags{featureflags.ClaimReaper: true}, time.Hour, time.Minute)
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepDisabledByFlag(t *testing.T) {
	f := newFixture(t)
	f.claimAt(t, time.Now().UTC().Add(-2*time.Hour))

	r := New(f.requests, f.lifecycle, flags{}, time.Hour, time.Minute)
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepSkipsConflicts(t *testing.T) {
	f := newFixture(t)
	f.claimAt(t, time.Now().UTC().Add(-2*time.Hour))
	f.claimAt(t, time.Now().UTC().Add(-2*time.Hour))

	exp := &conflictingExpirer{}
	r := New(f.requests, exp, flags{featureflags.ClaimReaper: true}, time.Hour, time.Minute)
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, exp.calls)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	stale := f.claimAt(t, time.Now().UTC().Add(-2*time.Hour))

	r := New(f.requests, f.lifecycle, featureflags.NewManager(""), time.Hour, 10*time.Millisecond)
	require.True(t, r.Enabled())
	r.Start()
	assert.Eventually(t, func() bool {
		got, err := f.requests.GetByID(context.Background(), stale.ID)
		return err == nil && got.Status == models.RequestStatusCancelled
	}, 2*time.Second, 20*time.Millisecond)
	r.Stop()
	r.Stop()
}

func TestDisabledReaperStopsImmediately(t *testing.T) {
	r := New(nil, nil, nil, 0, time.Minute)
	assert.False(t, r.Enabled())
	r.Start()
	r.Stop()
}
