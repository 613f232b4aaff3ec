package models

import (
	"time"

	"github.com/google/uuid"
)

type Note struct {
	BaseModel
	UserID   uuid.UUID `json:"userID" gorm:"type:uuid;not null;index"`
	Title    string    `json:"title" gorm:"type:varchar(255);not null"`
	Content  string    `json:"content" gorm:"type:text;not null"`
	Deadline time.Time `json:"deadline" gorm:"not null"`

	Files      []NoteFile `json:"files" gorm:"foreignKey:NoteID"`
	Categories []Category `json:"categories" gorm:"many2many:note_categories"`
	Owner      User       `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

func (Note) TableName() string {
	return "notes"
}
