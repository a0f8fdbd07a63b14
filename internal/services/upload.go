package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/vaultbox/internal/config"
	"github.com/rohits-web03/vaultbox/internal/encryption"
	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/rohits-web03/vaultbox/internal/repositories"
	"github.com/sirupsen/logrus"
)

const mirrorTimeout = 2 * time.Minute

// Encrypter turns a plaintext file into a ciphertext file under a caller
// supplied IV. *encryption.Pipeline satisfies it.
type Encrypter interface {
	EncryptFile(ctx context.Context, srcPath, dstPath string, iv []byte) error
}

// UploadedFile is a received upload already spooled to a temporary file.
type UploadedFile struct {
	TempPath     string
	MimeType     string
	OriginalName string
	Size         int64
}

type UploadService struct {
	root     string
	maxBytes int64
	enc      Encrypter
	files    repositories.FileStore
	mirror   repositories.BlobMirror
	log      *logrus.Logger
	now      func() time.Time
}

// NewUploadService wires the ingest path. mirror may be nil.
func NewUploadService(storage config.StorageConfig, enc Encrypter, files repositories.FileStore, mirror repositories.BlobMirror, log *logrus.Logger) *UploadService {
	return &UploadService{
		root:     storage.Root,
		maxBytes: storage.MaxUploadBytes(),
		enc:      enc,
		files:    files,
		mirror:   mirror,
		log:      log,
		now:      time.Now,
	}
}

func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

// Ingest validates, encrypts and records one upload. The temporary
// plaintext is gone when Ingest returns, whatever the outcome, and a
// ciphertext blob survives only if its record was persisted.
func (s *UploadService) Ingest(ctx context.Context, ownerID uint, up UploadedFile) (rec *models.FileRecord, err error) {
	var blobPath string
	defer func() {
		if err == nil {
			return
		}
		s.discard(up.TempPath, "temporary upload")
		if blobPath != "" {
			s.discard(blobPath, "partial ciphertext")
		}
	}()

	if err := s.Validate(up.MimeType, up.Size); err != nil {
		return nil, err
	}
	info, err := os.Stat(up.TempPath)
	if err != nil {
		return nil, fail(ErrValidation, "Uploaded file is not readable", err)
	}
	size := info.Size()
	if size > s.maxBytes {
		return nil, s.tooLarge()
	}

	iv, err := encryption.NewIV()
	if err != nil {
		return nil, fail(ErrEncryptionFailed, "Failed to encrypt file", err)
	}

	uploadedAt := s.now().UTC()
	storedName := StoredName(up.OriginalName, uploadedAt)
	blobPath = filepath.Join(s.root, storedName)

	if err := s.enc.EncryptFile(ctx, up.TempPath, blobPath, iv); err != nil {
		return nil, fail(ErrEncryptionFailed, "Failed to encrypt file", err)
	}

	info, err = os.Stat(blobPath)
	if err != nil {
		return nil, fail(ErrEncryptionFailed, "Failed to create encrypted file", err)
	}
	if info.Size() == 0 {
		return nil, fail(ErrEncryptionFailed, "Failed to create encrypted file", errors.New("ciphertext is empty"))
	}

	// Plaintext goes only once the ciphertext is known good.
	s.discard(up.TempPath, "temporary upload")

	declared := up.MimeType
	rec = &models.FileRecord{
		OwnerID:      ownerID,
		OriginalName: up.OriginalName,
		StoredName:   storedName,
		FileType:     strings.TrimPrefix(strings.ToLower(filepath.Ext(up.OriginalName)), "."),
		MimeType:     &declared,
		SizeMB:       formatSizeMB(size),
		SizeBytes:    size,
		StoragePath:  blobPath,
		Encrypted:    true,
		IV:           hex.EncodeToString(iv),
		UploadedAt:   uploadedAt,
	}
	if err := s.files.Create(ctx, rec); err != nil {
		return nil, fail(ErrStore, "Failed to save file metadata", err)
	}

	s.log.WithFields(logrus.Fields{
		"file_id":  rec.ID,
		"owner_id": ownerID,
		"stored":   storedName,
		"bytes":    size,
	}).Info("File uploaded and encrypted")

	s.mirrorBlob(ctx, storedName, blobPath)
	return rec, nil
}

// Validate applies the type allow-list and then the size ceiling. It needs
// no file, so callers can reject an upload before spooling it.
func (s *UploadService) Validate(mimeType string, declaredSize int64) error {
	if !IsAllowedMIME(mimeType) {
		return fail(ErrUnsupportedType, "Invalid file type. Only documents, images, and archives are allowed.", nil)
	}
	if declaredSize > s.maxBytes {
		return s.tooLarge()
	}
	return nil
}

func (s *UploadService) tooLarge() error {
	return fail(ErrPayloadTooLarge, fmt.Sprintf("File size exceeds the limit of %dMB", s.maxBytes>>20), nil)
}

// StoredName builds the on-disk blob name: a millisecond timestamp, a random
// UUID and the original lowercase extension.
func StoredName(originalName string, at time.Time) string {
	name := fmt.Sprintf("enc-%d-%s", at.UnixMilli(), uuid.NewString())
	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" && ext != "." {
		name += ext
	}
	return name
}

func (s *UploadService) mirrorBlob(ctx context.Context, storedName, blobPath string) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	key := repositories.MirrorKey(storedName)
	entry := s.log.WithField("key", key)
	if err := s.mirror.Put(ctx, key, blobPath); err != nil {
		entry.WithError(err).Error("Failed to mirror ciphertext")
		return
	}
	ok, err := s.mirror.Exists(ctx, key)
	switch {
	case err != nil:
		entry.WithError(err).Warn("Could not verify mirrored ciphertext")
	case !ok:
		entry.Error("Mirrored ciphertext is missing after upload")
	}
}

func (s *UploadService) discard(path, what string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.WithError(err).WithField("path", path).Errorf("Failed to remove %s", what)
	}
}
