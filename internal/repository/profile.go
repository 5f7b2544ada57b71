package repository

import (
	"context"

	"inkwell/internal/models"

	"gorm.io/gorm"
)

// ProfileRepository persists the one-per-user Profile.
type ProfileRepository interface {
	// EnsureForUser returns the user's profile, creating a default one if
	// none exists. It is safe to call repeatedly and concurrently.
	EnsureForUser(ctx context.Context, userID uint) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository returns a new ProfileRepository implementation.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) EnsureForUser(ctx context.Context, userID uint) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).
		Where(models.Profile{UserID: userID}).
		Attrs(models.Profile{ProfilePicture: models.DefaultProfilePicture}).
		FirstOrCreate(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !isUniqueConstraintError(err) {
		return nil, translateError(err, "Profile", userID)
	}

	// Lost a creation race; the winner's row is there now.
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, translateError(err, "Profile", userID)
	}
	return &profile, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *models.Profile) error {
	err := r.db.WithContext(ctx).
		Model(profile).
		Select("bio", "location", "profile_picture", "updated_at").
		Updates(profile).Error
	return translateError(err, "Profile", profile.ID)
}
