package repository

import (
	"context"
	"testing"

	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryRepository_CreateAndSubscribe(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "reader")

	goCat := &models.Category{Name: "Go"}
	require.NoError(t, repo.Create(ctx, goCat))
	err := repo.Create(ctx, &models.Category{Name: "Go"})
	assert.True(t, models.IsCode(err, models.CodeConflict))

	found, err := repo.FindOrCreate(ctx, "  Go ")
	require.NoError(t, err)
	assert.Equal(t, goCat.ID, found.ID)

	rust, err := repo.FindOrCreate(ctx, "Rust")
	require.NoError(t, err)
	assert.NotEqual(t, goCat.ID, rust.ID)

	_, err = repo.FindOrCreate(ctx, "   ")
	assert.True(t, models.IsCode(err, models.CodeValidation))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Go", list[0].Name)

	require.NoError(t, repo.Subscribe(ctx, user.ID, rust.ID))
	err = repo.Subscribe(ctx, user.ID, rust.ID)
	assert.True(t, models.IsCode(err, models.CodeConflict))

	ids, err := repo.SubscribedCategoryIDs(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{rust.ID}, ids)

	removed, err := repo.Unsubscribe(ctx, user.ID, rust.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Unsubscribe(ctx, user.ID, rust.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCategoryRepository_DeleteDetachesPosts(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewCategoryRepository(db)
	posts := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author")
	post := &models.Post{Title: "T", Content: "C", AuthorID: author.ID, Status: models.PostStatusDraft}
	require.NoError(t, posts.Create(ctx, post, PostRelations{CategoryName: strPtr("Go")}))
	require.NoError(t, repo.Subscribe(ctx, author.ID, *post.CategoryID))

	require.NoError(t, repo.Delete(ctx, *post.CategoryID))

	got, err := posts.GetByID(ctx, post.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, got.CategoryID)

	assert.True(t, models.IsCode(repo.Delete(ctx, 9999), models.CodeNotFound))
}

func TestCategoryRepository_ListIsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	db := testutil.NewSQLiteDB(t)
	repo := NewCategoryRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Category{Name: "Go"}))
	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, mr.Exists(cache.CategoriesKey))

	// Rows written behind the repository's back stay hidden until invalidation.
	require.NoError(t, db.Create(&models.Category{Name: "Rust"}).Error)
	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.FindOrCreate(ctx, "Zig")
	require.NoError(t, err)
	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestTagRepository_FindOrCreateKeepsOrder(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewTagRepository(db)
	ctx := context.Background()

	_, err := repo.FindOrCreate(ctx, []string{"b"})
	require.NoError(t, err)

	tags, err := repo.FindOrCreate(ctx, []string{"c", "b", "a", "c"})
	require.NoError(t, err)
	names := make([]string, 0, len(tags))
	for _, tg := range tags {
		names = append(names, tg.Name)
		assert.NotZero(t, tg.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, names)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)
}
