package repository

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func claimBy(userID uint) Mutation {
	return func(r *models.Request) error {
		if r.Status != models.RequestStatusOpen {
			return models.NewStateError(string(r.Status), string(models.RequestStatusClaimed))
		}
		now := time.Now().UTC()
		r.Status = models.RequestStatusClaimed
		r.ClaimantID = &userID
		r.ClaimedAt = &now
		return nil
	}
}

func TestRequestRepository_CreateStartsOpenAtVersionZero(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	repo := NewRequestRepository(db, nil, 0)

	req := &models.Request{
		RequesterID:    requester.ID,
		Status:         models.RequestStatusDone,
		Version:        7,
		Title:          "Groceries",
		Category:       "errands",
		ScheduledAt:    time.Now().Add(time.Hour),
		EstimatedHours: 1,
	}
	require.NoError(t, repo.Create(context.Background(), req))

	got, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusOpen, got.Status)
	assert.Equal(t, int64(0), got.Version)
	assert.Nil(t, got.ClaimantID)
}

func TestRequestRepository_GetByIDNotFound(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewRequestRepository(db, nil, 0)

	_, err := repo.GetByID(context.Background(), 404)
	assert.True(t, models.IsNotFound(err))
}

func TestRequestRepository_CompareAndSwapBumpsVersionByOne(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	helper := testutil.CreateUser(t, db, models.RoleHelper)
	req := testutil.CreateRequest(t, db, requester.ID)
	repo := NewRequestRepository(db, nil, 0)
	ctx := context.Background()

	claimed, err := repo.CompareAndSwap(ctx, req.ID, 0, claimBy(helper.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), claimed.Version)
	assert.True(t, claimed.IsClaimant(helper.ID))

	started, err := repo.CompareAndSwap(ctx, req.ID, 1, func(r *models.Request) error {
		r.Status = models.RequestStatusInProgress
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), started.Version)

	stored, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, models.RequestStatusInProgress, stored.Status)
}

func TestRequestRepository_CompareAndSwapStaleVersion(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	helper := testutil.CreateUser(t, db, models.RoleHelper)
	req := testutil.CreateRequest(t, db, requester.ID)
	repo := NewRequestRepository(db, nil, 0)

	_, err := repo.CompareAndSwap(context.Background(), req.ID, 3, claimBy(helper.ID))
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))

	stored, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
	assert.Equal(t, models.RequestStatusOpen, stored.Status)
}

func TestRequestRepository_MutationErrorWritesNothing(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	req := testutil.CreateRequest(t, db, requester.ID)
	repo := NewRequestRepository(db, nil, 0)

	refused := models.NewStateError("open", "done")
	_, err := repo.CompareAndSwap(context.Background(), req.ID, 0, func(r *models.Request) error {
		r.Status = models.RequestStatusDone
		return refused
	})
	assert.ErrorIs(t, err, refused)

	stored, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
	assert.Equal(t, models.RequestStatusOpen, stored.Status)
}

func TestRequestRepository_HookFailureRollsBackSwap(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	helper := testutil.CreateUser(t, db, models.RoleHelper)
	req := testutil.CreateRequest(t, db, requester.ID)
	repo := NewRequestRepository(db, nil, 0)

	boom := errors.New("boom")
	_, err := repo.CompareAndSwap(context.Background(), req.ID, 0, claimBy(helper.ID),
		func(_ *gorm.DB, _ *models.Request) error { return boom })
	assert.ErrorIs(t, err, boom)

	stored, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
	assert.Nil(t, stored.ClaimantID)
}

func TestRequestRepository_ClaimantCannotBeReplaced(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	first := testutil.CreateUser(t, db, models.RoleHelper)
	second := testutil.CreateUser(t, db, models.RoleHelper)
	req := testutil.CreateRequest(t, db, requester.ID)
	repo := NewRequestRepository(db, nil, 0)

	_, err := repo.CompareAndSwap(context.Background(), req.ID, 0, claimBy(first.ID))
	require.NoError(t, err)

	_, err = repo.CompareAndSwap(context.Background(), req.ID, 1, func(r *models.Request) error {
		r.ClaimantID = &second.ID
		return nil
	})
	require.Error(t, err)

	stored, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsClaimant(first.ID))
}

func TestRequestRepository_ConcurrentSwapsOnSameVersion(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	req := testutil.CreateRequest(t, db, requester.ID)
	repo := NewRequestRepository(db, nil, 0)

	const n = 12
	helpers := make([]*models.User, n)
	for i := range helpers {
		helpers[i] = testutil.CreateUser(t, db, models.RoleHelper)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []uint
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for _, h := range helpers {
		wg.Add(1)
		go func(helperID uint) {
			defer wg.Done()
			<-start
			_, err := repo.CompareAndSwap(context.Background(), req.ID, 0, claimBy(helperID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, helperID)
			case models.IsConflict(err):
				conflicts++
			default:
				others = append(others, err)
			}
		}(h.ID)
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, winners, 1)
	assert.Equal(t, n-1, conflicts)

	stored, err := repo.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.True(t, stored.IsClaimant(winners[0]))
}

func TestRequestRepository_ListFiltersAndPages(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	other := testutil.CreateUser(t, db, models.RoleRequester)
	repo := NewRequestRepository(db, nil, 0)
	repo.(*requestRepository).batchSize = 2

	var ids []uint
	for i := 0; i < 5; i++ {
		req := testutil.CreateRequest(t, db, requester.ID)
		ids = append(ids, req.ID)
	}
	gardening := testutil.CreateRequest(t, db, other.ID)
	require.NoError(t, db.Model(gardening).Updates(map[string]interface{}{
		"category": "gardening",
		"title":    "Weed the tomato beds",
	}).Error)

	collect := func(f RequestFilter) []uint {
		var got []uint
		for r, err := range repo.List(context.Background(), f) {
			require.NoError(t, err)
			got = append(got, r.ID)
		}
		return got
	}

	mine := collect(RequestFilter{RequesterID: requester.ID})
	require.Len(t, mine, 5)
	for i := range ids {
		assert.Equal(t, ids[len(ids)-1-i], mine[i], "newest first")
	}

	assert.Equal(t, []uint{gardening.ID}, collect(RequestFilter{Category: "gardening"}))
	assert.Equal(t, []uint{gardening.ID}, collect(RequestFilter{Text: "TOMATO"}))
	assert.Len(t, collect(RequestFilter{Limit: 3}), 3)
	assert.Empty(t, collect(RequestFilter{Statuses: []models.RequestStatus{models.RequestStatusDone}}))
}

func TestRequestRepository_ListIsRestartable(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	requester := testutil.CreateUser(t, db, models.RoleRequester)
	repo := NewRequestRepository(db, nil, 0)
	testutil.CreateRequest(t, db, requester.ID)
	testutil.CreateRequest(t, db, requester.ID)

	seq := repo.List(context.Background(), RequestFilter{})
	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())

	testutil.CreateRequest(t, db, requester.ID)
	assert.Equal(t, 3, count())
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func requestRows(id uint, version int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "requester_id", "status", "title", "category", "scheduled_at", "estimated_hours", "version", "created_at", "updated_at"}).
		AddRow(id, 1, "open", "Groceries", "errands", now, 1.5, version, now, now)
}

func TestRequestRepository_CompareAndSwapLocksRowOnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db, nil, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "requests" WHERE "requests"."id" = \$1 .*FOR UPDATE`).
		WillReturnRows(requestRows(5, 2))
	mock.ExpectExec(`UPDATE "requests" SET .* WHERE \(?id = \$\d+ AND version = \$\d+\)?`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.CompareAndSwap(context.Background(), 5, 2, claimBy(9))
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepository_CompareAndSwapZeroRowsIsConflict(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRequestRepository(db, nil, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "requests"`)).
		WillReturnRows(requestRows(5, 2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "requests" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.CompareAndSwap(context.Background(), 5, 2, claimBy(9))
	assert.True(t, models.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
