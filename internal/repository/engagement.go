package repository

import (
	"context"
	"errors"
	"time"

	"inkwell/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RatingStats summarises the ratings of one post. Average is nil when Count is zero.
type RatingStats struct {
	Average *float64
	Count   int64
}

// EngagementRepository persists likes, ratings and shares.
type EngagementRepository interface {
	// Like returns a ConflictError when the user already likes the post.
	Like(ctx context.Context, userID, postID uint) error
	// Unlike reports whether a like was removed.
	Unlike(ctx context.Context, userID, postID uint) (bool, error)
	CountLikes(ctx context.Context, postID uint) (int64, error)

	// UpsertRating stores the score for (user, post), overwriting an earlier one.
	UpsertRating(ctx context.Context, userID, postID uint, score int) (*models.Rating, error)
	// GetRating returns (nil, nil) when the user has not rated the post.
	GetRating(ctx context.Context, userID, postID uint) (*models.Rating, error)
	RatingStats(ctx context.Context, postID uint) (RatingStats, error)

	RecordShare(ctx context.Context, userID, postID uint) error
	CountShares(ctx context.Context, postID uint) (int64, error)
}

type engagementRepository struct {
	db *gorm.DB
}

// NewEngagementRepository returns a new EngagementRepository implementation.
func NewEngagementRepository(db *gorm.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

func (r *engagementRepository) Like(ctx context.Context, userID, postID uint) error {
	like := models.Like{UserID: userID, PostID: postID}
	result := r.db.WithContext(ctx).
		Omit("User", "Post").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like)
	if result.Error != nil {
		return translateError(result.Error, "Like", postID)
	}
	if result.RowsAffected == 0 {
		return models.NewConflictError("Post already liked")
	}
	return nil
}

func (r *engagementRepository) Unlike(ctx context.Context, userID, postID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Delete(&models.Like{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *engagementRepository) CountLikes(ctx context.Context, postID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *engagementRepository) UpsertRating(ctx context.Context, userID, postID uint, score int) (*models.Rating, error) {
	if !models.ValidRatingScore(score) {
		return nil, models.NewRangeError("Rating must be between 1 and 5")
	}
	now := time.Now()
	rating := models.Rating{UserID: userID, PostID: postID, Score: score, CreatedAt: now, UpdatedAt: now}

	db := r.db.WithContext(ctx)
	err := db.Omit("User", "Post").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "post_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
		}).
		Create(&rating).Error
	if err != nil {
		return nil, translateError(err, "Rating", postID)
	}

	// The upsert may not return the id of an updated row on every driver.
	var stored models.Rating
	if err := db.Where("user_id = ? AND post_id = ?", userID, postID).First(&stored).Error; err != nil {
		return nil, translateError(err, "Rating", postID)
	}
	return &stored, nil
}

func (r *engagementRepository) GetRating(ctx context.Context, userID, postID uint) (*models.Rating, error) {
	var rating models.Rating
	err := r.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).First(&rating).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &rating, nil
}

func (r *engagementRepository) RatingStats(ctx context.Context, postID uint) (RatingStats, error) {
	var row struct {
		Average *float64
		Count   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("CAST(AVG(score) AS FLOAT) AS average, COUNT(*) AS count").
		Where("post_id = ?", postID).
		Scan(&row).Error
	if err != nil {
		return RatingStats{}, models.NewInternalError(err)
	}
	if row.Count == 0 {
		row.Average = nil
	}
	return RatingStats{Average: row.Average, Count: row.Count}, nil
}

func (r *engagementRepository) RecordShare(ctx context.Context, userID, postID uint) error {
	share := models.PostShare{UserID: userID, PostID: postID}
	if err := r.db.WithContext(ctx).Omit("User", "Post").Create(&share).Error; err != nil {
		return translateError(err, "Share", postID)
	}
	return nil
}

func (r *engagementRepository) CountShares(ctx context.Context, postID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PostShare{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
