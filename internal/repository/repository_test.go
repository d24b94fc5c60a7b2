package repository

import (
	"context"
	"errors"
	"testing"

	"helpmatch/internal/models"
	"helpmatch/internal/testutil"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueConstraintError(t *testing.T) {
	assert.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: ratings.request_id")))
	assert.True(t, isUniqueConstraintError(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueConstraintError(errors.New("connection reset")))
	assert.False(t, isUniqueConstraintError(nil))
}

func TestUserRepository_CreateRejectsDuplicates(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db, nil, 0)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{Username: "ana", Email: "ana@example.test", Role: models.RoleHelper}))
	err := repo.Create(ctx, &models.User{Username: "ana", Email: "other@example.test", Role: models.RoleHelper})
	assert.True(t, models.IsConflict(err))

	got, err := repo.GetByUsername(ctx, "ana")
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	require.NoError(t, repo.Deactivate(ctx, got.ID))
	got, err = repo.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.True(t, models.IsNotFound(repo.Deactivate(ctx, 999)))
}

func TestUserRepository_CreditClaimantRunsInsideSwap(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	helper := testutil.CreateUser(t, db, models.RoleHelper)
	req := testutil.CreateRequest(t, db, requester.ID)

	users := NewUserRepository(db, nil, 0)
	requests := NewRequestRepository(db, nil, 0)
	ctx := context.Background()

	_, err := requests.CompareAndSwap(ctx, req.ID, 0, claimBy(helper.ID))
	require.NoError(t, err)
	_, err = requests.CompareAndSwap(ctx, req.ID, 1, func(r *models.Request) error {
		r.Status = models.RequestStatusDone
		return nil
	}, users.CreditClaimant())
	require.NoError(t, err)

	got, err := users.GetByID(ctx, helper.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedCount)
	assert.InDelta(t, req.EstimatedHours, got.HoursAccrued, 1e-9)
}

func TestPhotoRepository_DecideIsWriteOnce(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	helper := testutil.CreateUser(t, db, models.RoleHelper)
	req := testutil.CreateRequest(t, db, requester.ID)
	repo := NewPhotoRepository(db)
	ctx := context.Background()

	photo := &models.PhotoSubmission{RequestID: req.ID, SubmitterID: helper.ID, PayloadRef: "blob://proof-1", Decision: models.PhotoApproved}
	require.NoError(t, repo.Create(ctx, photo))
	assert.Equal(t, models.PhotoPending, photo.Decision)

	decided, err := repo.Decide(ctx, photo.ID, PhotoDecisionInput{Decision: models.PhotoApproved, ReviewerID: requester.ID, Note: "looks good"})
	require.NoError(t, err)
	assert.Equal(t, models.PhotoApproved, decided.Decision)
	require.NotNil(t, decided.ReviewerID)
	assert.Equal(t, requester.ID, *decided.ReviewerID)
	assert.NotNil(t, decided.DecidedAt)

	_, err = repo.Decide(ctx, photo.ID, PhotoDecisionInput{Decision: models.PhotoRejected, ReviewerID: requester.ID})
	assert.True(t, models.IsStateError(err))

	stored, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoApproved, stored.Decision)
	assert.Equal(t, "looks good", stored.ReviewerNote)

	_, err = repo.Decide(ctx, photo.ID, PhotoDecisionInput{Decision: models.PhotoPending})
	assert.True(t, models.IsValidation(err))

	_, err = repo.Decide(ctx, 999, PhotoDecisionInput{Decision: models.PhotoApproved})
	assert.True(t, models.IsNotFound(err))

	approved, err := repo.CountByDecision(ctx, req.ID, models.PhotoApproved)
	require.NoError(t, err)
	assert.Equal(t, int64(1), approved)
}

func TestRatingRepository_RecordUpdatesAggregateOnce(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	helper := testutil.CreateUser(t, db, models.RoleHelper)
	req := testutil.CreateRequest(t, db, requester.ID)
	require.NoError(t, db.Model(helper).Updates(map[string]interface{}{"rating_average": 4.0, "rating_count": 10}).Error)

	repo := NewRatingRepository(db, nil)
	ctx := context.Background()
	rating := func() *models.Rating {
		return &models.Rating{RequestID: req.ID, RaterID: requester.ID, RatedUserID: helper.ID, Score: 5}
	}
	apply := func(u *models.User) { u.ApplyRating(5) }

	rated, err := repo.Record(ctx, rating(), apply)
	require.NoError(t, err)
	assert.InDelta(t, (4.0*10+5)/11, rated.RatingAverage, 1e-9)
	assert.Equal(t, 11, rated.RatingCount)

	_, err = repo.Record(ctx, rating(), apply)
	assert.True(t, models.IsConflict(err))

	var stored models.User
	require.NoError(t, db.First(&stored, helper.ID).Error)
	assert.Equal(t, 11, stored.RatingCount)

	exists, err := repo.Exists(ctx, req.ID, requester.ID, helper.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	list, err := repo.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotificationRepository_ReadFlow(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	owner := testutil.CreateUser(t, db, models.RoleRequester)
	stranger := testutil.CreateUser(t, db, models.RoleHelper)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	var ids []uint
	for _, kind := range []models.NotificationKind{models.NotificationRequestClaimed, models.NotificationRequestStarted, models.NotificationPhotoSubmitted} {
		ev := &models.NotificationEvent{UserID: owner.ID, Kind: kind, RequestID: 1, SubjectType: models.SubjectRequest, SubjectID: 1}
		require.NoError(t, repo.Create(ctx, ev))
		ids = append(ids, ev.ID)
	}

	unread, err := repo.CountUnread(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	_, err = repo.MarkRead(ctx, ids[0], stranger.ID)
	assert.True(t, models.IsForbidden(err))

	ev, err := repo.MarkRead(ctx, ids[0], owner.ID)
	require.NoError(t, err)
	assert.True(t, ev.Read)
	assert.NotNil(t, ev.ReadAt)

	again, err := repo.MarkRead(ctx, ids[0], owner.ID)
	require.NoError(t, err)
	assert.True(t, again.Read)

	list, err := repo.ListByUser(ctx, owner.ID, NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := repo.MarkAllRead(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = repo.CountUnread(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	_, err = repo.MarkRead(ctx, 9999, owner.ID)
	assert.True(t, models.IsNotFound(err))
}
