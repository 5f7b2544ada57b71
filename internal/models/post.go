// Package models contains data structures for the application's domain models.
package models

import (
	"encoding/json"
	"time"
)

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	// PostStatusDraft is visible only to its author.
	PostStatusDraft PostStatus = "DRAFT"
	// PostStatusPublished is visible in every feed.
	PostStatusPublished PostStatus = "PUBLISHED"
)

const MaxPostTitleLength = 255

// Post represents a blog post. PublishedDate is nil exactly when Status is DRAFT.
type Post struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	AuthorID      uint       `gorm:"not null;index" json:"author_id"`
	Author        User       `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author"`
	CategoryID    *uint      `gorm:"index" json:"category_id"`
	Category      *Category  `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Tags          []Tag      `gorm:"many2many:post_tags;constraint:OnDelete:CASCADE" json:"tags"`
	Status        PostStatus `gorm:"type:varchar(10);not null;default:'DRAFT';index;check:chk_posts_published_date,(status = 'DRAFT') = (published_date IS NULL)" json:"status"`
	PublishedDate *time.Time `gorm:"index" json:"published_date"`
	// LikesCount is not persisted; computed at query time
	LikesCount int64 `gorm:"->;-:migration" json:"likes_count"`
	// AvgRating is not persisted; nil when the post has no ratings
	AvgRating *float64 `gorm:"->;-:migration" json:"avg_rating"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int64 `gorm:"->;-:migration" json:"comments_count"`
	// Liked indicates whether the current requesting user liked this post (computed)
	Liked bool `gorm:"->;-:migration" json:"liked"`
	// MyRating is the viewer's own score, set on single-post reads only
	MyRating  *int      `gorm:"-" json:"my_rating,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPublished reports whether the post has left the draft state.
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// IsVisibleTo reports whether viewerID may read the post. Drafts are private to their author.
func (p *Post) IsVisibleTo(viewerID uint) bool {
	return p.IsPublished() || (viewerID != 0 && p.AuthorID == viewerID)
}

// TagNames returns the names of the post's tags in their loaded order.
func (p *Post) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return names
}

// MarshalJSON flattens relations into the public post shape: the author as a
// summary, tags by name and the category name alongside the category.
func (p Post) MarshalJSON() ([]byte, error) {
	type postAlias Post
	var categoryName *string
	if p.Category != nil {
		name := p.Category.Name
		categoryName = &name
	}
	return json.Marshal(struct {
		postAlias
		Author       UserSummary `json:"author"`
		Tags         []string    `json:"tags"`
		CategoryName *string     `json:"category_name"`
	}{
		postAlias:    postAlias(p),
		Author:       p.Author.Summary(),
		Tags:         p.TagNames(),
		CategoryName: categoryName,
	})
}
