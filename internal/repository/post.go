package repository

import (
	"context"
	"strings"
	"time"

	"inkwell/internal/models"

	"gorm.io/gorm"
)

// Read-time aggregates, repeated verbatim wherever they are needed: PostgreSQL
// cannot reference SELECT aliases inside ORDER BY expressions.
const (
	likesCountSQL    = "(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id)"
	avgRatingSQL     = "(SELECT CAST(AVG(ratings.score) AS FLOAT) FROM ratings WHERE ratings.post_id = posts.id)"
	commentsCountSQL = "(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id)"
)

// PostQuery selects posts for feeds and listings. Zero-valued fields do not filter.
type PostQuery struct {
	Status       models.PostStatus
	AuthorID     uint
	CategoryName string
	Tag          string
	Search       string
	// FeedUserID restricts to authors the user follows or categories the user subscribes to.
	FeedUserID uint
	// ViewerID drives the computed Liked flag.
	ViewerID uint
	Limit    int
	Offset   int
}

// PostRelations names the category and tags to attach to a post. A nil field
// leaves that relation unchanged on update; an empty CategoryName clears it.
type PostRelations struct {
	CategoryName *string
	TagNames     *[]string
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post, rel PostRelations) error
	GetByID(ctx context.Context, id uint, viewerID uint) (*models.Post, error)
	GetByIDs(ctx context.Context, ids []uint, viewerID uint) ([]*models.Post, error)
	List(ctx context.Context, q PostQuery) ([]*models.Post, error)
	// TopIDs ranks published posts by likes, then average rating, then recency.
	TopIDs(ctx context.Context, limit int, since *time.Time) ([]uint, error)
	Update(ctx context.Context, post *models.Post, rel PostRelations) error
	// Publish moves a draft to PUBLISHED stamped with at. It reports false,
	// without error, when the post was not a draft at the time of the update.
	Publish(ctx context.Context, id uint, at time.Time) (bool, error)
	Delete(ctx context.Context, id uint) error
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post, rel PostRelations) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyCategory(tx, post, rel.CategoryName); err != nil {
			return err
		}
		var tags []models.Tag
		if rel.TagNames != nil {
			var err error
			if tags, err = findOrCreateTags(tx, *rel.TagNames); err != nil {
				return err
			}
		}
		post.Tags = nil
		if err := tx.Omit("Tags", "Author", "Category").Create(post).Error; err != nil {
			return err
		}
		if len(tags) > 0 {
			if err := tx.Model(post).Association("Tags").Replace(tags); err != nil {
				return err
			}
		}
		return nil
	})
	return translateError(err, "Post", post.ID)
}

func applyCategory(tx *gorm.DB, post *models.Post, name *string) error {
	if name == nil {
		return nil
	}
	if strings.TrimSpace(*name) == "" {
		post.CategoryID = nil
		post.Category = nil
		return nil
	}
	category, _, err := findOrCreateCategory(tx, *name)
	if err != nil {
		return err
	}
	post.CategoryID = &category.ID
	post.Category = category
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint, viewerID uint) (*models.Post, error) {
	var post models.Post
	err := r.withRelations(r.applyPostDetails(r.db.WithContext(ctx), viewerID)).
		First(&post, id).Error
	if err != nil {
		return nil, translateError(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) GetByIDs(ctx context.Context, ids []uint, viewerID uint) ([]*models.Post, error) {
	if len(ids) == 0 {
		return []*models.Post{}, nil
	}
	var posts []*models.Post
	err := r.withRelations(r.applyPostDetails(r.db.WithContext(ctx), viewerID)).
		Where("posts.id IN ?", ids).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	byID := make(map[uint]*models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

func (r *postRepository) List(ctx context.Context, q PostQuery) ([]*models.Post, error) {
	db := r.applyPostDetails(r.db.WithContext(ctx), q.ViewerID)

	if q.Status != "" {
		db = db.Where("posts.status = ?", q.Status)
	}
	if q.AuthorID != 0 {
		db = db.Where("posts.author_id = ?", q.AuthorID)
	}
	if q.CategoryName != "" {
		db = db.Where("posts.category_id IN (SELECT id FROM categories WHERE categories.name = ?)", q.CategoryName)
	}
	if q.Tag != "" {
		db = db.Where(
			"EXISTS (SELECT 1 FROM post_tags JOIN tags ON tags.id = post_tags.tag_id WHERE post_tags.post_id = posts.id AND tags.name = ?)",
			q.Tag,
		)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		like := "%" + escapeLike(strings.ToLower(search)) + "%"
		db = db.Where(`(LOWER(posts.title) LIKE ? ESCAPE '\' OR LOWER(posts.content) LIKE ? ESCAPE '\')`, like, like)
	}
	if q.FeedUserID != 0 {
		db = db.Where(
			"(posts.author_id IN (SELECT author_id FROM follows WHERE follower_id = ?) "+
				"OR posts.category_id IN (SELECT category_id FROM category_subscriptions WHERE user_id = ?))",
			q.FeedUserID, q.FeedUserID,
		)
	}

	var posts []*models.Post
	err := r.withRelations(db).
		Order("posts.created_at DESC").
		Order("posts.id DESC").
		Limit(clampLimit(q.Limit, 20)).
		Offset(q.Offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *postRepository) TopIDs(ctx context.Context, limit int, since *time.Time) ([]uint, error) {
	db := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("posts.status = ?", models.PostStatusPublished)
	if since != nil {
		db = db.Where("posts.published_date >= ?", *since)
	}

	var ids []uint
	err := db.
		Order(likesCountSQL + " DESC").
		Order("COALESCE(" + avgRatingSQL + ", 0) DESC").
		Order("posts.created_at DESC").
		Order("posts.id DESC").
		Limit(clampLimit(limit, 10)).
		Pluck("posts.id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// applyPostDetails adds subqueries to fetch aggregates and liked status in a single query.
func (r *postRepository) applyPostDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		likesCountSQL + " AS likes_count, " +
		avgRatingSQL + " AS avg_rating, " +
		commentsCountSQL + " AS comments_count"

	if viewerID != 0 {
		return db.Model(&models.Post{}).Select(
			selectQuery+", EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) AS liked",
			viewerID,
		)
	}
	return db.Model(&models.Post{}).Select(selectQuery + ", false AS liked")
}

func (r *postRepository) withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author", authorSummary).
		Preload("Category").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.name ASC") })
}

func (r *postRepository) Update(ctx context.Context, post *models.Post, rel PostRelations) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyCategory(tx, post, rel.CategoryName); err != nil {
			return err
		}
		err := tx.Model(post).
			Select("title", "content", "category_id", "updated_at").
			Updates(map[string]any{
				"title":       post.Title,
				"content":     post.Content,
				"category_id": post.CategoryID,
				"updated_at":  time.Now(),
			}).Error
		if err != nil {
			return err
		}
		if rel.TagNames != nil {
			tags, err := findOrCreateTags(tx, *rel.TagNames)
			if err != nil {
				return err
			}
			if err := tx.Model(post).Association("Tags").Replace(tags); err != nil {
				return err
			}
			post.Tags = tags
		}
		return nil
	})
	return translateError(err, "Post", post.ID)
}

func (r *postRepository) Publish(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND status = ?", id, models.PostStatusDraft).
		Updates(map[string]any{
			"status":         models.PostStatusPublished,
			"published_date": at,
			"updated_at":     at,
		})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Delete removes the post and everything that references it in one transaction.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dependent := range []any{&models.Comment{}, &models.Like{}, &models.Rating{}, &models.PostShare{}} {
			if err := tx.Where("post_id = ?", id).Delete(dependent).Error; err != nil {
				return err
			}
		}
		if err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Post{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	return translateError(err, "Post", id)
}
