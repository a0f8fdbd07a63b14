package models

import (
	"time"
)

// FileRecord describes one encrypted blob on disk. The IV is stored only
// here, so losing the row makes the blob undecryptable.
type FileRecord struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	OwnerID      uint   `json:"ownerId" gorm:"index;not null"`
	Owner        *User  `json:"-" gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT"`
	OriginalName string `json:"originalName" gorm:"not null"`
	StoredName   string `json:"storedName" gorm:"uniqueIndex;not null"`
	// Lowercase extension without the leading dot.
	FileType string  `json:"fileType" gorm:"not null"`
	MimeType *string `json:"mimeType"`
	// SizeMB is a display value with two decimals; SizeBytes is exact.
	SizeMB      string `json:"sizeMB" gorm:"not null"`
	SizeBytes   int64  `json:"sizeBytes" gorm:"not null"`
	StoragePath string `json:"-" gorm:"not null"`
	Encrypted   bool   `json:"encrypted" gorm:"not null;default:true"`
	// Hex encoded 16 byte IV, generated once at upload and never rewritten.
	IV         string    `json:"-" gorm:"column:iv;size:32;not null"`
	UploadedAt time.Time `json:"uploadedAt" gorm:"index;not null"`
}

func (FileRecord) TableName() string {
	return "files"
}
