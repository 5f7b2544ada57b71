package models

import (
	"encoding/json"
	"time"
)

const MaxCommentLength = 10000

// Comment is a reader's response to a post. Only its content is mutable.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Post   *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	Author User  `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"-"`
}

// MarshalJSON renders the author as a public summary.
func (c Comment) MarshalJSON() ([]byte, error) {
	type commentAlias Comment
	return json.Marshal(struct {
		commentAlias
		Author UserSummary `json:"author"`
	}{commentAlias(c), c.Author.Summary()})
}
