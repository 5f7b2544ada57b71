package repository

import (
	"context"
	"strings"

	"inkwell/internal/cache"
	"inkwell/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagRepository defines persistence operations for tags.
type TagRepository interface {
	List(ctx context.Context) ([]models.Tag, error)
	FindOrCreate(ctx context.Context, names []string) ([]models.Tag, error)
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository returns a new TagRepository implementation.
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) List(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := cache.Aside(ctx, cache.TagsKey, &tags, cache.CatalogTTL, func() error {
		if err := r.db.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *tagRepository) FindOrCreate(ctx context.Context, names []string) ([]models.Tag, error) {
	tags, err := findOrCreateTags(r.db.WithContext(ctx), names)
	if err != nil {
		return nil, err
	}
	cache.Invalidate(ctx, cache.TagsKey)
	return tags, nil
}

// normalizeTagNames trims, drops blanks and de-duplicates while keeping order.
func normalizeTagNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if len(n) > models.MaxTagNameLength {
			return nil, models.NewValidationError("Tag names must not exceed 50 characters")
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// findOrCreateTags resolves tags by name on db, which may be a transaction,
// and returns them in the order the names were given.
func findOrCreateTags(db *gorm.DB, names []string) ([]models.Tag, error) {
	names, err := normalizeTagNames(names)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []models.Tag{}, nil
	}

	fresh := make([]models.Tag, 0, len(names))
	for _, n := range names {
		fresh = append(fresh, models.Tag{Name: n})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	var existing []models.Tag
	if err := db.Where("name IN ?", names).Find(&existing).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	byName := make(map[string]models.Tag, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}

	tags := make([]models.Tag, 0, len(names))
	for _, n := range names {
		if t, ok := byName[n]; ok {
			tags = append(tags, t)
		}
	}
	return tags, nil
}
