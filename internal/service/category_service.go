package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"inkwell/internal/models"
	"inkwell/internal/repository"
)

type CategoryService struct {
	categoryRepo repository.CategoryRepository
	tagRepo      repository.TagRepository
	isAdmin      func(ctx context.Context, userID uint) (bool, error)
}

func NewCategoryService(
	categoryRepo repository.CategoryRepository,
	tagRepo repository.TagRepository,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *CategoryService {
	return &CategoryService{
		categoryRepo: categoryRepo,
		tagRepo:      tagRepo,
		isAdmin:      isAdmin,
	}
}

func (s *CategoryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.categoryRepo.List(ctx)
}

func (s *CategoryService) ListTags(ctx context.Context) ([]models.Tag, error) {
	return s.tagRepo.List(ctx)
}

// CreateCategory is restricted to administrators.
func (s *CategoryService) CreateCategory(ctx context.Context, userID uint, name string) (*models.Category, error) {
	if s.isAdmin == nil {
		return nil, models.NewPermissionError("Only administrators can create categories")
	}
	admin, err := s.isAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, models.NewPermissionError("Only administrators can create categories")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("Category name is required")
	}
	if utf8.RuneCountInString(name) > models.MaxCategoryNameLength {
		return nil, models.NewValidationError("Category name too long (max 100 characters)")
	}

	category := &models.Category{Name: name}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}
