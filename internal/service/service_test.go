package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"helpmatch/internal/cache"
	"helpmatch/internal/models"
	"helpmatch/internal/repository"
	"helpmatch/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (e *recordingEmitter) Emit(_ context.Context, events ...models.NotificationEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, events...)
}

func (e *recordingEmitter) kinds(userID uint) []models.NotificationKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.NotificationKind
	for _, ev := range e.events {
		if ev.UserID == userID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

type staticFlags map[string]bool

func (f staticFlags) Global(name string) bool { return f[name] }

type harness struct {
	db        *gorm.DB
	requests  repository.RequestRepository
	users     repository.UserRepository
	photos    repository.PhotoRepository
	emitter   *recordingEmitter
	lifecycle *LifecycleService
	proof     *ProofService
	ratings   *RatingService
	reqs      *RequestService
}

func newHarness(t *testing.T, flags FlagSource) *harness {
	t.Helper()
	return buildHarness(t, flags, nil)
}

// newCachedHarness backs the repositories with a miniredis cache.
func newCachedHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := cache.NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return buildHarness(t, nil, cache.NewStore(rdb))
}

func buildHarness(t *testing.T, flags FlagSource, store *cache.Store) *harness {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	h := &harness{
		db:       db,
		requests: repository.NewRequestRepository(db, store, time.Minute),
		users:    repository.NewUserRepository(db, store, time.Minute),
		photos:   repository.NewPhotoRepository(db),
		emitter:  &recordingEmitter{},
	}
	h.lifecycle = NewLifecycleService(h.requests, h.users, h.photos, flags, h.emitter)
	h.proof = NewProofService(h.requests, h.photos, h.emitter)
	h.ratings = NewRatingService(h.requests, repository.NewRatingRepository(db, store), h.emitter)
	h.reqs = NewRequestService(h.requests, h.users)
	return h
}

// claimed returns an open request already claimed by helper at version 1.
func (h *harness) claimed(t *testing.T, requester, helper *models.User) *models.Request {
	t.Helper()
	req := testutil.CreateRequest(t, h.db, requester.ID)
	out, err := h.lifecycle.ClaimRequest(context.Background(), req.ID, helper.ID, req.Version)
	require.NoError(t, err)
	return out
}

func (h *harness) advance(t *testing.T, req *models.Request, actorID uint, to models.RequestStatus) *models.Request {
	t.Helper()
	out, err := h.lifecycle.AdvanceStatus(context.Background(), AdvanceInput{
		RequestID:       req.ID,
		ActorID:         actorID,
		Target:          to,
		ExpectedVersion: req.Version,
	})
	require.NoError(t, err)
	return out
}

// done drives a fresh request through the full lifecycle.
func (h *harness) done(t *testing.T, requester, helper *models.User) *models.Request {
	t.Helper()
	req := h.claimed(t, requester, helper)
	req = h.advance(t, req, helper.ID, models.RequestStatusInProgress)
	return h.advance(t, req, requester.ID, models.RequestStatusDone)
}
