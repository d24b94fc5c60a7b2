package repository

import (
	"context"
	"fmt"
	"time"

	"helpmatch/internal/cache"
	"helpmatch/internal/models"
	"helpmatch/internal/observability"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// Load reads the user from the database, bypassing the cache.
	Load(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id uint) error
	// CreditClaimant is a swap hook that adds one completed request and the
	// request's estimated hours to the claimant.
	CreditClaimant() Hook
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Store
	ttl   time.Duration
	log   *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB, store *cache.Store, ttl time.Duration) UserRepository {
	return &userRepository{db: db, cache: store, ttl: ttl, log: observability.NewRepoLogger("users")}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.cache.CacheAside(ctx, cache.UserKey(id), &user, r.ttl, func() error {
		return mapError(r.db.WithContext(ctx).First(&user, id).Error, "User", id)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Load(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, mapError(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, mapError(err, "User", username)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.RatingAverage = 0
	user.RatingCount = 0
	user.CompletedCount = 0
	user.HoursAccrued = 0
	user.IsActive = true
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("username or email already taken")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"id": user.ID})
	return nil
}

func (r *userRepository) Deactivate(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	_ = r.cache.Invalidate(ctx, cache.UserKey(id))
	return nil
}

func (r *userRepository) CreditClaimant() Hook {
	return func(tx *gorm.DB, updated *models.Request) error {
		if updated.ClaimantID == nil {
			return models.NewInternalError(fmt.Errorf("request %d completed without a claimant", updated.ID))
		}
		claimant := *updated.ClaimantID
		res := tx.Model(&models.User{}).Where("id = ?", claimant).Updates(map[string]interface{}{
			"completed_count": gorm.Expr("completed_count + 1"),
			"hours_accrued":   gorm.Expr("hours_accrued + ?", updated.EstimatedHours),
			"updated_at":      time.Now().UTC(),
		})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("User", claimant)
		}
		OnCommit(tx, func(ctx context.Context) {
			_ = r.cache.Invalidate(ctx, cache.UserKey(claimant))
		})
		return nil
	}
}
