package models

import "time"

// Rating score bounds, inclusive.
const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// Like records that a user likes a post. At most one exists per (user, post).
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`

	User User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
}

// Rating is a user's 1-5 score for a post. Re-rating overwrites the score.
type Rating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_ratings_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_ratings_user_post;index" json:"post_id"`
	Score     int       `gorm:"not null;check:chk_ratings_score,score BETWEEN 1 AND 5" json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
}

// ValidRatingScore reports whether score lies in the accepted range.
func ValidRatingScore(score int) bool {
	return score >= MinRatingScore && score <= MaxRatingScore
}

// PostShare records one share of a post. Shares are not unique per user.
type PostShare struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`

	User User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
}
