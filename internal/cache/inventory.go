package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix     = "user:%d"
	TopPostsKeyPrefix = "posts:top:%d:%s"
	CategoriesKey     = "categories:all"
	TagsKey           = "tags:all"
)

const (
	UserTTL     = 5 * time.Minute
	TopPostsTTL = time.Minute
	CatalogTTL  = 10 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// TopPostsKey identifies a cached ranking. A zero window means all time.
func TopPostsKey(limit int, window time.Duration) string {
	w := "all"
	if window > 0 {
		w = window.String()
	}
	return fmt.Sprintf(TopPostsKeyPrefix, limit, w)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

// InvalidateCatalog drops the cached category and tag listings.
func InvalidateCatalog(ctx context.Context) {
	Invalidate(ctx, CategoriesKey)
	Invalidate(ctx, TagsKey)
}

// InvalidateTopPosts drops every cached ranking regardless of limit or window.
func InvalidateTopPosts(ctx context.Context) {
	if client == nil {
		return
	}
	iter := client.Scan(ctx, 0, "posts:top:*", 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
}
