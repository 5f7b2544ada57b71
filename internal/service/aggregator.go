package service

import (
	"context"
	"time"

	"inkwell/internal/cache"
	"inkwell/internal/featureflags"
	"inkwell/internal/models"
	"inkwell/internal/repository"
)

const (
	defaultTopPostsLimit = 10
	maxTopPostsLimit     = 100
)

// Aggregator derives engagement figures at read time.
type Aggregator struct {
	postRepo       repository.PostRepository
	engagementRepo repository.EngagementRepository
	flags          *featureflags.Manager
	now            func() time.Time
}

func NewAggregator(
	postRepo repository.PostRepository,
	engagementRepo repository.EngagementRepository,
	flags *featureflags.Manager,
) *Aggregator {
	return &Aggregator{
		postRepo:       postRepo,
		engagementRepo: engagementRepo,
		flags:          flags,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (a *Aggregator) LikeCount(ctx context.Context, postID uint) (int64, error) {
	return a.engagementRepo.CountLikes(ctx, postID)
}

// AverageRating returns nil when the post has no ratings.
func (a *Aggregator) AverageRating(ctx context.Context, postID uint) (*float64, error) {
	stats, err := a.engagementRepo.RatingStats(ctx, postID)
	if err != nil {
		return nil, err
	}
	return stats.Average, nil
}

// TopPosts ranks published posts by likes, then average rating, then recency.
// A positive window keeps only posts published within it.
func (a *Aggregator) TopPosts(ctx context.Context, limit int, window time.Duration, viewerID uint) ([]*models.Post, error) {
	if window < 0 {
		return nil, models.NewValidationError("window must not be negative")
	}
	if limit <= 0 {
		limit = defaultTopPostsLimit
	}
	if limit > maxTopPostsLimit {
		limit = maxTopPostsLimit
	}

	var since *time.Time
	if window > 0 {
		t := a.now().Add(-window)
		since = &t
	}

	var ids []uint
	fetch := func() error {
		var err error
		ids, err = a.postRepo.TopIDs(ctx, limit, since)
		return err
	}

	var err error
	if a.flags.Enabled(featureflags.TopPostsCache, viewerID) {
		err = cache.Aside(ctx, cache.TopPostsKey(limit, window), &ids, cache.TopPostsTTL, fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		return nil, err
	}

	// Aggregates and the liked flag are always fresh; only the ranking may be cached.
	return a.postRepo.GetByIDs(ctx, ids, viewerID)
}
