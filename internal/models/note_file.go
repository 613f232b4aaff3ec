package models

import "github.com/google/uuid"

// NoteFile is one uploaded attachment. Path is the object-storage key and is
// what gets removed when the attachment is superseded or its note is deleted.
type NoteFile struct {
	BaseModel
	NoteID   uuid.UUID `json:"-" gorm:"type:uuid;not null;index"`
	Path     string    `json:"path" gorm:"type:text;not null"`
	Filename string    `json:"filename" gorm:"type:varchar(255);not null"`
	Mimetype string    `json:"mimetype" gorm:"type:varchar(255);not null"`
	Size     int64     `json:"size" gorm:"not null;default:0"`
}

func (NoteFile) TableName() string {
	return "note_files"
}
