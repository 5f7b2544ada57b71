package service

import (
	"context"

	"inkwell/internal/models"
	"inkwell/internal/repository"
)

// FollowService manages author follows and category subscriptions, the two
// edges that feed a user's personal feed.
type FollowService struct {
	followRepo   repository.FollowRepository
	userRepo     repository.UserRepository
	categoryRepo repository.CategoryRepository
}

func NewFollowService(
	followRepo repository.FollowRepository,
	userRepo repository.UserRepository,
	categoryRepo repository.CategoryRepository,
) *FollowService {
	return &FollowService{
		followRepo:   followRepo,
		userRepo:     userRepo,
		categoryRepo: categoryRepo,
	}
}

func (s *FollowService) Follow(ctx context.Context, followerID, authorID uint) error {
	if followerID == authorID {
		return models.NewValidationError("You cannot follow yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, authorID); err != nil {
		return err
	}
	return s.followRepo.Create(ctx, followerID, authorID)
}

func (s *FollowService) Unfollow(ctx context.Context, followerID, authorID uint) error {
	removed, err := s.followRepo.Delete(ctx, followerID, authorID)
	if err != nil {
		return err
	}
	if !removed {
		return models.NewNotFoundError("Follow", authorID)
	}
	return nil
}

func (s *FollowService) SubscribeCategory(ctx context.Context, userID, categoryID uint) error {
	if _, err := s.categoryRepo.GetByID(ctx, categoryID); err != nil {
		return err
	}
	return s.categoryRepo.Subscribe(ctx, userID, categoryID)
}

func (s *FollowService) UnsubscribeCategory(ctx context.Context, userID, categoryID uint) error {
	removed, err := s.categoryRepo.Unsubscribe(ctx, userID, categoryID)
	if err != nil {
		return err
	}
	if !removed {
		return models.NewNotFoundError("Subscription", categoryID)
	}
	return nil
}
