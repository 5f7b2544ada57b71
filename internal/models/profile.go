package models

import "time"

// DefaultProfilePicture is stored for profiles that never set a picture.
const DefaultProfilePicture = "default.jpg"

const (
	MaxBioLength      = 500
	MaxLocationLength = 100
)

// Profile holds the public, user-editable part of an account. Exactly one
// exists per user; it is created by the ensure-profile hook after registration.
type Profile struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	Bio            string    `gorm:"size:500" json:"bio"`
	Location       string    `gorm:"size:100" json:"location"`
	ProfilePicture string    `gorm:"size:255;not null;default:'default.jpg'" json:"profile_picture"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileView is a profile read model enriched with follow counts and the
// user's published posts.
type ProfileView struct {
	Profile
	Username       string `json:"username"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	Following      bool   `json:"following"`
	Posts          []Post `json:"posts"`
	// SubscribedCategoryIDs is only filled in when users view their own profile.
	SubscribedCategoryIDs []uint `json:"subscribed_category_ids,omitempty"`
}
