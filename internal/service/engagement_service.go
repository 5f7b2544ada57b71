package service

import (
	"context"

	"inkwell/internal/models"
	"inkwell/internal/repository"
)

// EngagementService applies likes and ratings to posts the caller can see.
type EngagementService struct {
	postRepo       repository.PostRepository
	engagementRepo repository.EngagementRepository
	notify         NotificationTrigger
}

// LikeResult is the like state after a toggle or unlike.
type LikeResult struct {
	Liked      bool  `json:"liked"`
	LikesCount int64 `json:"likes_count"`
}

func NewEngagementService(
	postRepo repository.PostRepository,
	engagementRepo repository.EngagementRepository,
	notify NotificationTrigger,
) *EngagementService {
	return &EngagementService{
		postRepo:       postRepo,
		engagementRepo: engagementRepo,
		notify:         triggerOrNoop(notify),
	}
}

// ToggleLike likes the post, or removes the like when one already exists.
func (s *EngagementService) ToggleLike(ctx context.Context, userID, postID uint) (*LikeResult, error) {
	if _, err := visiblePost(ctx, s.postRepo, postID, userID); err != nil {
		return nil, err
	}

	liked := true
	if err := s.engagementRepo.Like(ctx, userID, postID); err != nil {
		if !models.IsCode(err, models.CodeConflict) {
			return nil, err
		}
		if _, err := s.engagementRepo.Unlike(ctx, userID, postID); err != nil {
			return nil, err
		}
		liked = false
	}
	return s.likeResult(ctx, postID, liked)
}

// Unlike removes the caller's like. Removing an absent like is not an error.
func (s *EngagementService) Unlike(ctx context.Context, userID, postID uint) (*LikeResult, error) {
	if _, err := visiblePost(ctx, s.postRepo, postID, userID); err != nil {
		return nil, err
	}
	if _, err := s.engagementRepo.Unlike(ctx, userID, postID); err != nil {
		return nil, err
	}
	return s.likeResult(ctx, postID, false)
}

func (s *EngagementService) likeResult(ctx context.Context, postID uint, liked bool) (*LikeResult, error) {
	count, err := s.engagementRepo.CountLikes(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &LikeResult{Liked: liked, LikesCount: count}, nil
}

// Rate stores the caller's score for the post, replacing any earlier score.
// A 5 on a published post notifies its author.
func (s *EngagementService) Rate(ctx context.Context, userID, postID uint, score int) (*models.Rating, error) {
	if !models.ValidRatingScore(score) {
		return nil, models.NewRangeError("Rating must be between 1 and 5")
	}
	post, err := visiblePost(ctx, s.postRepo, postID, userID)
	if err != nil {
		return nil, err
	}

	rating, err := s.engagementRepo.UpsertRating(ctx, userID, postID, score)
	if err != nil {
		return nil, err
	}
	if rating.Score == models.MaxRatingScore && post.IsPublished() {
		s.notify.OnFiveStarRating(ctx, rating, post)
	}
	return rating, nil
}
