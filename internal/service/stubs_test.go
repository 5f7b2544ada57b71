package service

import (
	"context"
	"sync"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/repository"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn   func(context.Context, *models.Post, repository.PostRelations) error
	getByIDFn  func(context.Context, uint, uint) (*models.Post, error)
	getByIDsFn func(context.Context, []uint, uint) ([]*models.Post, error)
	listFn     func(context.Context, repository.PostQuery) ([]*models.Post, error)
	topIDsFn   func(context.Context, int, *time.Time) ([]uint, error)
	updateFn   func(context.Context, *models.Post, repository.PostRelations) error
	publishFn  func(context.Context, uint, time.Time) (bool, error)
	deleteFn   func(context.Context, uint) error
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post, rel repository.PostRelations) error {
	return s.createFn(ctx, post, rel)
}
func (s *postRepoStub) GetByID(ctx context.Context, id, viewerID uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id, viewerID)
}
func (s *postRepoStub) GetByIDs(ctx context.Context, ids []uint, viewerID uint) ([]*models.Post, error) {
	return s.getByIDsFn(ctx, ids, viewerID)
}
func (s *postRepoStub) List(ctx context.Context, q repository.PostQuery) ([]*models.Post, error) {
	return s.listFn(ctx, q)
}
func (s *postRepoStub) TopIDs(ctx context.Context, limit int, since *time.Time) ([]uint, error) {
	return s.topIDsFn(ctx, limit, since)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post, rel repository.PostRelations) error {
	return s.updateFn(ctx, post, rel)
}
func (s *postRepoStub) Publish(ctx context.Context, id uint, at time.Time) (bool, error) {
	return s.publishFn(ctx, id, at)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:   func(_ context.Context, _ *models.Post, _ repository.PostRelations) error { return nil },
		getByIDFn:  func(_ context.Context, id, _ uint) (*models.Post, error) { return &models.Post{ID: id}, nil },
		getByIDsFn: func(_ context.Context, _ []uint, _ uint) ([]*models.Post, error) { return nil, nil },
		listFn:     func(_ context.Context, _ repository.PostQuery) ([]*models.Post, error) { return nil, nil },
		topIDsFn:   func(_ context.Context, _ int, _ *time.Time) ([]uint, error) { return nil, nil },
		updateFn:   func(_ context.Context, _ *models.Post, _ repository.PostRelations) error { return nil },
		publishFn:  func(_ context.Context, _ uint, _ time.Time) (bool, error) { return true, nil },
		deleteFn:   func(_ context.Context, _ uint) error { return nil },
	}
}

// engagementRepoStub is a stub for repository.EngagementRepository.
type engagementRepoStub struct {
	likeFn         func(context.Context, uint, uint) error
	unlikeFn       func(context.Context, uint, uint) (bool, error)
	countLikesFn   func(context.Context, uint) (int64, error)
	upsertRatingFn func(context.Context, uint, uint, int) (*models.Rating, error)
	getRatingFn    func(context.Context, uint, uint) (*models.Rating, error)
	ratingStatsFn  func(context.Context, uint) (repository.RatingStats, error)
	recordShareFn  func(context.Context, uint, uint) error
	countSharesFn  func(context.Context, uint) (int64, error)
}

func (s *engagementRepoStub) Like(ctx context.Context, userID, postID uint) error {
	return s.likeFn(ctx, userID, postID)
}
func (s *engagementRepoStub) Unlike(ctx context.Context, userID, postID uint) (bool, error) {
	return s.unlikeFn(ctx, userID, postID)
}
func (s *engagementRepoStub) CountLikes(ctx context.Context, postID uint) (int64, error) {
	return s.countLikesFn(ctx, postID)
}
func (s *engagementRepoStub) UpsertRating(ctx context.Context, userID, postID uint, score int) (*models.Rating, error) {
	return s.upsertRatingFn(ctx, userID, postID, score)
}
func (s *engagementRepoStub) GetRating(ctx context.Context, userID, postID uint) (*models.Rating, error) {
	return s.getRatingFn(ctx, userID, postID)
}
func (s *engagementRepoStub) RatingStats(ctx context.Context, postID uint) (repository.RatingStats, error) {
	return s.ratingStatsFn(ctx, postID)
}
func (s *engagementRepoStub) RecordShare(ctx context.Context, userID, postID uint) error {
	return s.recordShareFn(ctx, userID, postID)
}
func (s *engagementRepoStub) CountShares(ctx context.Context, postID uint) (int64, error) {
	return s.countSharesFn(ctx, postID)
}

func noopEngagementRepo() *engagementRepoStub {
	return &engagementRepoStub{
		likeFn:       func(_ context.Context, _, _ uint) error { return nil },
		unlikeFn:     func(_ context.Context, _, _ uint) (bool, error) { return true, nil },
		countLikesFn: func(_ context.Context, _ uint) (int64, error) { return 0, nil },
		upsertRatingFn: func(_ context.Context, userID, postID uint, score int) (*models.Rating, error) {
			return &models.Rating{ID: 1, UserID: userID, PostID: postID, Score: score}, nil
		},
		getRatingFn:   func(_ context.Context, _, _ uint) (*models.Rating, error) { return nil, nil },
		ratingStatsFn: func(_ context.Context, _ uint) (repository.RatingStats, error) { return repository.RatingStats{}, nil },
		recordShareFn: func(_ context.Context, _, _ uint) error { return nil },
		countSharesFn: func(_ context.Context, _ uint) (int64, error) { return 0, nil },
	}
}

// recordingTrigger captures notification events.
type recordingTrigger struct {
	mu        sync.Mutex
	fiveStars []*models.Rating
	published []*models.Post
}

func (r *recordingTrigger) OnFiveStarRating(_ context.Context, rating *models.Rating, _ *models.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fiveStars = append(r.fiveStars, rating)
}

func (r *recordingTrigger) OnPostPublished(_ context.Context, post *models.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, post)
}

func (r *recordingTrigger) counts() (fiveStars, published int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fiveStars), len(r.published)
}
