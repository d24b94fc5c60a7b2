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

// RatingRepository persists ratings and the rated user's running aggregate.
type RatingRepository interface {
	Exists(ctx context.Context, requestID, raterID, ratedUserID uint) (bool, error)
	// Record inserts rating and folds it into the rated user's aggregate in the
	// same transaction. apply receives the locked user row.
	Record(ctx context.Context, rating *models.Rating, apply func(u *models.User)) (*models.User, error)
	ListByRequest(ctx context.Context, requestID uint) ([]models.Rating, error)
	ListByRatedUser(ctx context.Context, userID uint, limit int) ([]models.Rating, error)
}

type ratingRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewRatingRepository returns a new RatingRepository implementation.
func NewRatingRepository(db *gorm.DB, store *cache.Store) RatingRepository {
	return &ratingRepository{db: db, cache: store, log: observability.NewRepoLogger("ratings")}
}

func (r *ratingRepository) Exists(ctx context.Context, requestID, raterID, ratedUserID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Rating{}).
		Where("request_id = ? AND rater_id = ? AND rated_user_id = ?", requestID, raterID, ratedUserID).
		Count(&n).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *ratingRepository) Record(ctx context.Context, rating *models.Rating, apply func(u *models.User)) (*models.User, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "Record", "ratings")
	defer span.End()
	defer observability.TrackQuery("record", "ratings")()

	var rated models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rating.ID = 0
		if err := tx.Create(rating).Error; err != nil {
			if isUniqueConstraintError(err) {
				observability.VersionConflicts.WithLabelValues("ratings").Inc()
				return duplicateRating(rating)
			}
			return models.NewInternalError(err)
		}

		if err := forUpdate(tx).First(&rated, rating.RatedUserID).Error; err != nil {
			return mapError(err, "User", rating.RatedUserID)
		}
		apply(&rated)
		rated.UpdatedAt = time.Now().UTC()

		return tx.Model(&models.User{}).Where("id = ?", rated.ID).Updates(map[string]interface{}{
			"rating_average": rated.RatingAverage,
			"rating_count":   rated.RatingCount,
			"updated_at":     rated.UpdatedAt,
		}).Error
	})
	if err != nil {
		if models.ErrorCode(err) == "" {
			err = models.NewInternalError(err)
		}
		if !models.IsConflict(err) {
			r.log.LogError(ctx, err, "record")
		}
		return nil, err
	}

	_ = r.cache.Invalidate(ctx, cache.UserKey(rated.ID))
	r.log.LogCreate(ctx, map[string]interface{}{
		"id":            rating.ID,
		"request_id":    rating.RequestID,
		"rated_user_id": rating.RatedUserID,
		"score":         rating.Score,
	})
	return &rated, nil
}

func (r *ratingRepository) ListByRequest(ctx context.Context, requestID uint) ([]models.Rating, error) {
	var ratings []models.Rating
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Order("id ASC").Find(&ratings).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ratings, nil
}

func (r *ratingRepository) ListByRatedUser(ctx context.Context, userID uint, limit int) ([]models.Rating, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var ratings []models.Rating
	err := r.db.WithContext(ctx).
		Where("rated_user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&ratings).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ratings, nil
}

func duplicateRating(rating *models.Rating) error {
	return models.NewConflictError(fmt.Sprintf(
		"user %d already rated user %d on request %d", rating.RaterID, rating.RatedUserID, rating.RequestID))
}
