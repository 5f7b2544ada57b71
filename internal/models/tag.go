package models

const MaxTagNameLength = 50

// Tag labels posts; a tag may exist without any post referencing it.
type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:50;uniqueIndex;not null" json:"name"`
}
