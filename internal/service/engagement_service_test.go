package service

import (
	"context"
	"testing"

	"inkwell/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngagementService_ToggleLike(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) { return publishedPost(id, 1), nil }

	likes := map[uint]bool{}
	engagement := noopEngagementRepo()
	engagement.likeFn = func(_ context.Context, userID, _ uint) error {
		if likes[userID] {
			return models.NewConflictError("Post already liked")
		}
		likes[userID] = true
		return nil
	}
	engagement.unlikeFn = func(_ context.Context, userID, _ uint) (bool, error) {
		had := likes[userID]
		delete(likes, userID)
		return had, nil
	}
	engagement.countLikesFn = func(context.Context, uint) (int64, error) { return int64(len(likes)), nil }

	svc := NewEngagementService(posts, engagement, nil)

	res, err := svc.ToggleLike(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, &LikeResult{Liked: true, LikesCount: 1}, res)

	res, err = svc.ToggleLike(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, &LikeResult{Liked: false, LikesCount: 0}, res)

	res, err = svc.Unlike(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.False(t, res.Liked)
}

func TestEngagementService_LikeInvisibleDraft(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) { return draftPost(id, 1), nil }
	svc := NewEngagementService(posts, noopEngagementRepo(), nil)

	_, err := svc.ToggleLike(context.Background(), 2, 1)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestEngagementService_Rate(t *testing.T) {
	tests := []struct {
		name          string
		post          *models.Post
		score         int
		wantCode      string
		wantFiveStars int
	}{
		{"too high", publishedPost(1, 1), 6, models.CodeRange, 0},
		{"too low", publishedPost(1, 1), 0, models.CodeRange, 0},
		{"five on published notifies", publishedPost(1, 1), 5, "", 1},
		{"four does not notify", publishedPost(1, 1), 4, "", 0},
		{"five on own draft does not notify", draftPost(1, 2), 5, "", 0},
		{"foreign draft is hidden", draftPost(1, 1), 3, models.CodeNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts := noopPostRepo()
			posts.getByIDFn = func(context.Context, uint, uint) (*models.Post, error) { return tt.post, nil }
			trigger := &recordingTrigger{}
			svc := NewEngagementService(posts, noopEngagementRepo(), trigger)

			rating, err := svc.Rate(context.Background(), 2, 1, tt.score)
			if tt.wantCode != "" {
				assert.True(t, models.IsCode(err, tt.wantCode), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.score, rating.Score)
			}
			fiveStars, _ := trigger.counts()
			assert.Equal(t, tt.wantFiveStars, fiveStars)
		})
	}
}
