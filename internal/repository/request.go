package repository

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"helpmatch/internal/cache"
	"helpmatch/internal/models"
	"helpmatch/internal/observability"

	"gorm.io/gorm"
)

const defaultListBatchSize = 100

// Mutation edits a freshly loaded copy of a request. Returning an error aborts
// the swap and nothing is written.
type Mutation func(r *models.Request) error

// Hook runs inside the swap transaction after the request row has been written.
// It must use tx for every query. Side effects outside the database belong in
// OnCommit.
type Hook func(tx *gorm.DB, updated *models.Request) error

type commitKey struct{}

type commitQueue struct {
	fns []func(context.Context)
}

// OnCommit queues fn to run once the swap transaction that tx belongs to has
// committed. fn never runs if the swap rolls back. Outside a swap it runs
// immediately.
func OnCommit(tx *gorm.DB, fn func(context.Context)) {
	ctx := tx.Statement.Context
	if q, ok := ctx.Value(commitKey{}).(*commitQueue); ok {
		q.fns = append(q.fns, fn)
		return
	}
	fn(ctx)
}

// RequestFilter narrows List. Zero values match everything.
type RequestFilter struct {
	Statuses      []models.RequestStatus
	Category      string
	Location      string
	RequesterID   uint
	ClaimantID    uint
	Text          string
	ClaimedBefore *time.Time
	Limit         int
}

// RequestRepository persists requests. Every change after Create is a
// version-checked compare-and-swap.
type RequestRepository interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id uint) (*models.Request, error)
	// Load reads the request from the database, bypassing the cache. Use it
	// for checks that gate a write.
	Load(ctx context.Context, id uint) (*models.Request, error)
	List(ctx context.Context, filter RequestFilter) iter.Seq2[*models.Request, error]
	CompareAndSwap(ctx context.Context, id uint, expectedVersion int64, mutate Mutation, hooks ...Hook) (*models.Request, error)
}

type requestRepository struct {
	db        *gorm.DB
	cache     *cache.Store
	cacheTTL  time.Duration
	batchSize int
	log       *observability.RepoLogger
}

// NewRequestRepository returns a RequestRepository. store may be nil to disable caching.
func NewRequestRepository(db *gorm.DB, store *cache.Store, cacheTTL time.Duration) RequestRepository {
	return &requestRepository{
		db:        db,
		cache:     store,
		cacheTTL:  cacheTTL,
		batchSize: defaultListBatchSize,
		log:       observability.NewRepoLogger("requests"),
	}
}

func (r *requestRepository) Create(ctx context.Context, req *models.Request) error {
	ctx, span := observability.TraceRepositoryMethod(ctx, "Create", "requests")
	defer span.End()
	defer observability.TrackQuery("create", "requests")()

	req.ID = 0
	req.Version = 0
	req.Status = models.RequestStatusOpen
	req.ClaimantID = nil
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": req.ID, "requester_id": req.RequesterID})
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id uint) (*models.Request, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "GetByID", "requests")
	defer span.End()

	var req models.Request
	err := r.cache.CacheAside(ctx, cache.RequestKey(id), &req, r.cacheTTL, func() error {
		defer observability.TrackQuery("get", "requests")()
		return mapError(r.db.WithContext(ctx).First(&req, id).Error, "Request", id)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) Load(ctx context.Context, id uint) (*models.Request, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "Load", "requests")
	defer span.End()
	defer observability.TrackQuery("get", "requests")()

	var req models.Request
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, mapError(err, "Request", id)
	}
	return &req, nil
}

// List streams matching requests newest first. Rows are fetched in keyset
// batches, so the sequence may be ranged over more than once and each pass
// re-reads the store.
func (r *requestRepository) List(ctx context.Context, filter RequestFilter) iter.Seq2[*models.Request, error] {
	return func(yield func(*models.Request, error) bool) {
		var cursor *models.Request
		emitted := 0
		for {
			size := r.batchSize
			if filter.Limit > 0 && filter.Limit-emitted < size {
				size = filter.Limit - emitted
			}

			q := applyRequestFilter(r.db.WithContext(ctx).Model(&models.Request{}), filter)
			if cursor != nil {
				q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
			}

			var batch []models.Request
			done := observability.TrackQuery("list", "requests")
			err := q.Order("created_at DESC").Order("id DESC").Limit(size).Find(&batch).Error
			done()
			if err != nil {
				r.log.LogError(ctx, err, "list")
				yield(nil, models.NewInternalError(err))
				return
			}

			for i := range batch {
				if !yield(&batch[i], nil) {
					return
				}
				emitted++
			}

			if len(batch) < size || (filter.Limit > 0 && emitted >= filter.Limit) {
				return
			}
			cursor = &batch[len(batch)-1]
		}
	}
}

func applyRequestFilter(q *gorm.DB, f RequestFilter) *gorm.DB {
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Location != "" {
		q = q.Where("LOWER(location) = ?", strings.ToLower(f.Location))
	}
	if f.RequesterID != 0 {
		q = q.Where("requester_id = ?", f.RequesterID)
	}
	if f.ClaimantID != 0 {
		q = q.Where("claimant_id = ?", f.ClaimantID)
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(requirements) LIKE ?", like, like)
	}
	if f.ClaimedBefore != nil {
		q = q.Where("claimed_at < ?", *f.ClaimedBefore)
	}
	return q
}

// CompareAndSwap applies mutate to the stored request if its version still
// equals expectedVersion. The write, the version bump and any hooks commit
// together. A stale version is a ConflictError. AppErrors from mutate or a hook
// are returned unchanged.
func (r *requestRepository) CompareAndSwap(ctx context.Context, id uint, expectedVersion int64, mutate Mutation, hooks ...Hook) (*models.Request, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "CompareAndSwap", "requests")
	defer span.End()
	defer observability.TrackQuery("compare_and_swap", "requests")()

	var updated *models.Request
	queue := &commitQueue{}
	err := r.db.WithContext(context.WithValue(ctx, commitKey{}, queue)).Transaction(func(tx *gorm.DB) error {
		var current models.Request
		if err := forUpdate(tx).First(&current, id).Error; err != nil {
			return mapError(err, "Request", id)
		}
		if current.Version != expectedVersion {
			return r.conflict(ctx, id, expectedVersion, current.Version)
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}

		// Identity fields never change, and a claimant once set stays set.
		next.ID = current.ID
		next.RequesterID = current.RequesterID
		next.CreatedAt = current.CreatedAt
		if current.ClaimantID != nil && !next.IsClaimant(*current.ClaimantID) {
			return models.NewInternalError(fmt.Errorf("request %d: claimant cannot be replaced", id))
		}
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now().UTC()

		res := tx.Model(&models.Request{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(swapColumns(next))
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return r.conflict(ctx, id, expectedVersion, -1)
		}

		for _, hook := range hooks {
			if err := hook(tx, next); err != nil {
				return err
			}
		}

		updated = next
		return nil
	})
	if err != nil {
		if models.ErrorCode(err) == "" {
			err = models.NewInternalError(err)
		}
		if models.ErrorCode(err) == models.CodeInternal {
			r.log.LogError(ctx, err, "compare_and_swap")
		}
		return nil, err
	}

	_ = r.cache.Invalidate(ctx, cache.RequestKey(id))
	for _, fn := range queue.fns {
		fn(ctx)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{
		"id":      id,
		"status":  updated.Status,
		"version": updated.Version,
	})
	return updated, nil
}

func (r *requestRepository) conflict(ctx context.Context, id uint, expected, actual int64) error {
	observability.VersionConflicts.WithLabelValues("requests").Inc()
	r.log.LogConflict(ctx, map[string]interface{}{
		"id":               id,
		"expected_version": expected,
		"actual_version":   actual,
	})
	return models.NewConflictError(fmt.Sprintf("request %d was modified concurrently (expected version %d)", id, expected))
}

func swapColumns(next *models.Request) map[string]interface{} {
	return map[string]interface{}{
		"status":          next.Status,
		"claimant_id":     next.ClaimantID,
		"title":           next.Title,
		"category":        next.Category,
		"location":        next.Location,
		"requirements":    next.Requirements,
		"scheduled_at":    next.ScheduledAt,
		"estimated_hours": next.EstimatedHours,
		"claimed_at":      next.ClaimedAt,
		"started_at":      next.StartedAt,
		"completed_at":    next.CompletedAt,
		"cancelled_at":    next.CancelledAt,
		"cancel_reason":   next.CancelReason,
		"version":         next.Version,
		"updated_at":      next.UpdatedAt,
	}
}
