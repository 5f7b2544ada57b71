package seed

import (
	"testing"

	"inkwell/internal/models"
	"inkwell/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSeed_PopulatesDatabase(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	res, err := Seed(db, Options{NumUsers: 6, NumPosts: 20, SkipBcrypt: true, RandSeed: 42})
	require.NoError(t, err)

	assert.EqualValues(t, res.Users, count(t, db, &models.User{}))
	assert.EqualValues(t, res.Users, count(t, db, &models.Profile{}))
	assert.EqualValues(t, res.Posts, count(t, db, &models.Post{}))
	assert.EqualValues(t, res.Follows, count(t, db, &models.Follow{}))
	assert.EqualValues(t, res.Subscriptions, count(t, db, &models.CategorySubscription{}))
	assert.EqualValues(t, res.Likes, count(t, db, &models.Like{}))
	assert.EqualValues(t, res.Ratings, count(t, db, &models.Rating{}))
	assert.EqualValues(t, res.Comments, count(t, db, &models.Comment{}))
	assert.Equal(t, 20, res.Posts)

	var published int64
	require.NoError(t, db.Model(&models.Post{}).
		Where("status = ? AND published_date IS NOT NULL", models.PostStatusPublished).
		Count(&published).Error)
	assert.EqualValues(t, res.Published, published)

	var draftEngagement int64
	require.NoError(t, db.Model(&models.Like{}).
		Joins("JOIN posts ON posts.id = likes.post_id").
		Where("posts.status = ?", models.PostStatusDraft).
		Count(&draftEngagement).Error)
	assert.Zero(t, draftEngagement)

	var selfFollows int64
	require.NoError(t, db.Model(&models.Follow{}).Where("follower_id = author_id").Count(&selfFollows).Error)
	assert.Zero(t, selfFollows)

	var selfLikes int64
	require.NoError(t, db.Model(&models.Like{}).
		Joins("JOIN posts ON posts.id = likes.post_id").
		Where("posts.author_id = likes.user_id").
		Count(&selfLikes).Error)
	assert.Zero(t, selfLikes)
}

func TestSeed_CleanReplacesPreviousRun(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	_, err := Seed(db, Options{NumUsers: 4, NumPosts: 5, SkipBcrypt: true})
	require.NoError(t, err)
	_, err = Seed(db, Options{NumUsers: 3, NumPosts: 2, SkipBcrypt: true, ShouldClean: true})
	require.NoError(t, err)

	assert.EqualValues(t, 3, count(t, db, &models.User{}))
	assert.EqualValues(t, 2, count(t, db, &models.Post{}))

	data, err := LoadCatalog()
	require.NoError(t, err)
	assert.EqualValues(t, len(data.Categories), count(t, db, &models.Category{}))
}

func TestSeed_DryRunWritesNothing(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	res, err := Seed(db, Options{NumUsers: 3, NumPosts: 4, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Users)
	assert.Equal(t, 4, res.Posts)
	assert.Zero(t, count(t, db, &models.User{}))
	assert.Zero(t, count(t, db, &models.Category{}))
}

func TestSeed_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no users", Options{NumUsers: 0, NumPosts: 1}},
		{"negative posts", Options{NumUsers: 1, NumPosts: -1}},
		{"draft ratio", Options{NumUsers: 1, DraftRatio: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Seed(nil, tt.opts)
			assert.Error(t, err)
		})
	}
}
