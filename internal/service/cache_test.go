package service

import (
	"context"
	"testing"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProof_SubmitPhotoChecksCommittedStatus(t *testing.T) {
	h := newCachedHarness(t)
	requester := testutil.CreateUser(t, h.db, models.RoleRequester)
	helper := testutil.CreateUser(t, h.db, models.RoleHelper)
	ctx := context.Background()

	req := h.claimed(t, requester, helper)
	warm, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusClaimed, warm.Status)

	// Cancel behind the cache's back so the cached copy still reads claimed.
	require.NoError(t, h.db.Model(&models.Request{}).Where("id = ?", req.ID).Updates(map[string]interface{}{
		"status":  models.RequestStatusCancelled,
		"version": req.Version + 1,
	}).Error)
	cached, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusClaimed, cached.Status)

	_, err = h.proof.SubmitPhoto(ctx, req.ID, helper.ID, "blob://after-cancel")
	assert.True(t, models.IsStateError(err), "cancelled request: %v", err)

	var n int64
	require.NoError(t, h.db.Model(&models.PhotoSubmission{}).Where("request_id = ?", req.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRequestService_DeactivationBeatsCachedUser(t *testing.T) {
	h := newCachedHarness(t)
	requester := testutil.CreateUser(t, h.db, models.RoleRequester)
	ctx := context.Background()

	warm, err := h.users.GetByID(ctx, requester.ID)
	require.NoError(t, err)
	require.True(t, warm.IsActive)

	require.NoError(t, h.db.Model(&models.User{}).Where("id = ?", requester.ID).Update("is_active", false).Error)

	_, err = h.reqs.CreateRequest(ctx, CreateRequestInput{
		RequesterID:    requester.ID,
		Title:          "Walk the dog",
		Category:       "errands",
		ScheduledAt:    time.Now().Add(time.Hour),
		EstimatedHours: 1,
	})
	assert.True(t, models.IsForbidden(err), "deactivated requester: %v", err)
}

func TestRating_SubmitRatingChecksCommittedStatus(t *testing.T) {
	h := newCachedHarness(t)
	requester := testutil.CreateUser(t, h.db, models.RoleRequester)
	helper := testutil.CreateUser(t, h.db, models.RoleHelper)
	ctx := context.Background()

	req := h.claimed(t, requester, helper)
	req = h.advance(t, req, helper.ID, models.RequestStatusInProgress)
	_, err := h.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&models.Request{}).Where("id = ?", req.ID).Updates(map[string]interface{}{
		"status":  models.RequestStatusDone,
		"version": req.Version + 1,
	}).Error)

	_, err = h.ratings.SubmitRating(ctx, SubmitRatingInput{
		RequestID:   req.ID,
		RaterID:     requester.ID,
		RatedUserID: helper.ID,
		Score:       5,
		Category:    "general",
	})
	require.NoError(t, err)
}

func TestLifecycle_CompletionRefreshesCachedClaimant(t *testing.T) {
	h := newCachedHarness(t)
	requester := testutil.CreateUser(t, h.db, models.RoleRequester)
	helper := testutil.CreateUser(t, h.db, models.RoleHelper)
	ctx := context.Background()

	before, err := h.users.GetByID(ctx, helper.ID)
	require.NoError(t, err)
	require.Zero(t, before.CompletedCount)

	done := h.done(t, requester, helper)

	after, err := h.users.GetByID(ctx, helper.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CompletedCount)
	assert.InDelta(t, done.EstimatedHours, after.HoursAccrued, 1e-9)

	cached, err := h.requests.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusDone, cached.Status)
	assert.Equal(t, done.Version, cached.Version)
}
