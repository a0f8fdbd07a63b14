package services

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohits-web03/vaultbox/internal/models"
)

const fallbackContentType = "application/octet-stream"

// AllowedMIMETypes is the fixed upload allow-list.
var AllowedMIMETypes = map[string]struct{}{
	// Documents
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"text/plain": {},
	"text/csv":   {},
	// Images
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	// Archives
	"application/zip":              {},
	"application/x-rar-compressed": {},
	"application/x-7z-compressed":  {},
}

// contentTypes maps a lowercase extension to the type a file is served as.
var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".zip":  "application/zip",
	".rar":  "application/x-rar-compressed",
	".7z":   "application/x-7z-compressed",
}

// NormalizeMIME strips parameters and lowercases a declared media type.
func NormalizeMIME(declared string) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(declared))
}

// IsAllowedMIME reports whether declared, parameters ignored, is on the
// upload allow-list.
func IsAllowedMIME(declared string) bool {
	_, ok := AllowedMIMETypes[NormalizeMIME(declared)]
	return ok
}

// ContentTypeFor picks the served type from the original file name.
func ContentTypeFor(originalName string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(originalName))]; ok {
		return ct
	}
	return fallbackContentType
}

// Previewable reports whether a type is shown inline rather than downloaded.
func Previewable(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") || contentType == "application/pdf"
}

func DownloadURL(id uint) string {
	return fmt.Sprintf("/files/view/%d", id)
}

// FileSummary is the listing and upload view of a FileRecord.
type FileSummary struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	EncryptedName string    `json:"encryptedName"`
	Type          string    `json:"type"`
	MimeType      *string   `json:"mimeType"`
	Size          string    `json:"size"`
	SizeBytes     int64     `json:"sizeBytes"`
	Uploaded      time.Time `json:"uploaded"`
	Encrypted     bool      `json:"encrypted"`
	DownloadURL   string    `json:"downloadUrl"`
	PreviewURL    *string   `json:"previewUrl"`
}

func Summarize(rec models.FileRecord) FileSummary {
	s := FileSummary{
		ID:            rec.ID,
		Name:          rec.OriginalName,
		EncryptedName: rec.StoredName,
		Type:          rec.FileType,
		MimeType:      rec.MimeType,
		Size:          rec.SizeMB,
		SizeBytes:     rec.SizeBytes,
		Uploaded:      rec.UploadedAt,
		Encrypted:     rec.Encrypted,
		DownloadURL:   DownloadURL(rec.ID),
	}
	if rec.MimeType != nil && Previewable(NormalizeMIME(*rec.MimeType)) {
		preview := s.DownloadURL
		s.PreviewURL = &preview
	}
	return s
}

// formatSizeMB renders bytes as megabytes with two decimals.
func formatSizeMB(n int64) string {
	return fmt.Sprintf("%.2f", float64(n)/(1<<20))
}
