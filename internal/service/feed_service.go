package service

import (
	"context"
	"strings"

	"inkwell/internal/models"
	"inkwell/internal/repository"
)

// Page is a limit/offset window. Limits default to 20 and are capped at 100.
type Page struct {
	Limit  int
	Offset int
}

// FeedService composes the global, personal, category and draft feeds.
type FeedService struct {
	postRepo     repository.PostRepository
	categoryRepo repository.CategoryRepository
}

func NewFeedService(postRepo repository.PostRepository, categoryRepo repository.CategoryRepository) *FeedService {
	return &FeedService{postRepo: postRepo, categoryRepo: categoryRepo}
}

// Global returns every published post, newest first.
func (s *FeedService) Global(ctx context.Context, viewerID uint, page Page) ([]*models.Post, error) {
	return s.postRepo.List(ctx, repository.PostQuery{
		Status:   models.PostStatusPublished,
		ViewerID: viewerID,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
}

// User returns published posts from authors userID follows or categories it subscribes to.
func (s *FeedService) User(ctx context.Context, userID uint, page Page) ([]*models.Post, error) {
	return s.postRepo.List(ctx, repository.PostQuery{
		Status:     models.PostStatusPublished,
		FeedUserID: userID,
		ViewerID:   userID,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
}

func (s *FeedService) Category(ctx context.Context, name string, viewerID uint, page Page) ([]*models.Post, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("Category name is required")
	}
	if _, err := s.categoryRepo.GetByName(ctx, name); err != nil {
		return nil, err
	}
	return s.postRepo.List(ctx, repository.PostQuery{
		Status:       models.PostStatusPublished,
		CategoryName: name,
		ViewerID:     viewerID,
		Limit:        page.Limit,
		Offset:       page.Offset,
	})
}

// Drafts returns the user's own unpublished posts.
func (s *FeedService) Drafts(ctx context.Context, userID uint, page Page) ([]*models.Post, error) {
	return s.postRepo.List(ctx, repository.PostQuery{
		Status:   models.PostStatusDraft,
		AuthorID: userID,
		ViewerID: userID,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
}
