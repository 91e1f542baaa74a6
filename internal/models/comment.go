package models

import "time"

type Comment struct {
	ID        uint64    `gorm:"primarykey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	TaskID    uint64    `gorm:"not null;index" json:"task_id"`
	AuthorID  uint64    `gorm:"not null" json:"author_id"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Task   Task `gorm:"foreignKey:TaskID" json:"-"`
	Author User `gorm:"foreignKey:AuthorID" json:"-"`
}
