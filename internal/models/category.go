package models

import "time"

const MaxCategoryNameLength = 100

// Category groups posts. Deleting a category leaves its posts uncategorized.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CategorySubscription places a category's published posts in a user's personal feed.
type CategorySubscription struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_category_subscriptions_pair" json:"user_id"`
	CategoryID uint      `gorm:"not null;uniqueIndex:idx_category_subscriptions_pair;index" json:"category_id"`
	CreatedAt  time.Time `json:"created_at"`

	User     User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Category Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"category,omitempty"`
}

// TableName specifies the table name for GORM
func (CategorySubscription) TableName() string {
	return "category_subscriptions"
}
