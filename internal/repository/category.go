package repository

import (
	"context"
	"strings"

	"inkwell/internal/cache"
	"inkwell/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CategoryRepository defines persistence operations for categories and subscriptions to them.
type CategoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
	GetByID(ctx context.Context, id uint) (*models.Category, error)
	GetByName(ctx context.Context, name string) (*models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	FindOrCreate(ctx context.Context, name string) (*models.Category, error)
	Delete(ctx context.Context, id uint) error

	Subscribe(ctx context.Context, userID, categoryID uint) error
	Unsubscribe(ctx context.Context, userID, categoryID uint) (bool, error)
	SubscribedCategoryIDs(ctx context.Context, userID uint) ([]uint, error)
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository returns a new CategoryRepository implementation.
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) List(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := cache.Aside(ctx, cache.CategoriesKey, &categories, cache.CatalogTTL, func() error {
		if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *categoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, translateError(err, "Category", id)
	}
	return &category, nil
}

func (r *categoryRepository) GetByName(ctx context.Context, name string) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&category).Error; err != nil {
		return nil, translateError(err, "Category", name)
	}
	return &category, nil
}

func (r *categoryRepository) Create(ctx context.Context, category *models.Category) error {
	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Category already exists")
		}
		return models.NewInternalError(err)
	}
	cache.InvalidateCatalog(ctx)
	return nil
}

func (r *categoryRepository) FindOrCreate(ctx context.Context, name string) (*models.Category, error) {
	category, created, err := findOrCreateCategory(r.db.WithContext(ctx), name)
	if err != nil {
		return nil, err
	}
	if created {
		cache.InvalidateCatalog(ctx)
	}
	return category, nil
}

// Delete removes the category. Posts keep existing without a category.
func (r *categoryRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Post{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("category_id = ?", id).Delete(&models.CategorySubscription{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Category{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.NewNotFoundError("Category", id)
		}
		return nil
	})
	if err != nil {
		return translateError(err, "Category", id)
	}
	cache.InvalidateCatalog(ctx)
	return nil
}

func (r *categoryRepository) Subscribe(ctx context.Context, userID, categoryID uint) error {
	sub := models.CategorySubscription{UserID: userID, CategoryID: categoryID}
	if err := r.db.WithContext(ctx).Create(&sub).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Already subscribed to this category")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *categoryRepository) Unsubscribe(ctx context.Context, userID, categoryID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND category_id = ?", userID, categoryID).
		Delete(&models.CategorySubscription{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *categoryRepository) SubscribedCategoryIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.CategorySubscription{}).
		Where("user_id = ?", userID).
		Order("category_id ASC").
		Pluck("category_id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// findOrCreateCategory resolves a category by name on db, which may be a
// transaction. Concurrent creators of the same name converge on one row.
func findOrCreateCategory(db *gorm.DB, name string) (*models.Category, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, models.NewValidationError("Category name is required")
	}
	if len(name) > models.MaxCategoryNameLength {
		return nil, false, models.NewValidationError("Category name must not exceed 100 characters")
	}

	category := models.Category{Name: name}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&category)
	if result.Error != nil {
		return nil, false, models.NewInternalError(result.Error)
	}
	if result.RowsAffected > 0 {
		return &category, true, nil
	}

	category = models.Category{}
	if err := db.Where("name = ?", name).First(&category).Error; err != nil {
		return nil, false, translateError(err, "Category", name)
	}
	return &category, false, nil
}
