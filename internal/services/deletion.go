package services

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/rohits-web03/vaultbox/internal/repositories"
	"github.com/sirupsen/logrus"
)

type DeletionService struct {
	files  repositories.FileStore
	mirror repositories.BlobMirror
	log    *logrus.Logger
	remove func(name string) error
	now    func() time.Time
}

// NewDeletionService wires the delete path. mirror may be nil.
func NewDeletionService(files repositories.FileStore, mirror repositories.BlobMirror, log *logrus.Logger) *DeletionService {
	return &DeletionService{
		files:  files,
		mirror: mirror,
		log:    log,
		remove: os.Remove,
		now:    time.Now,
	}
}

// Deletion confirms a removed file.
type Deletion struct {
	FileID       uint      `json:"id"`
	OriginalName string    `json:"name"`
	DeletedAt    time.Time `json:"deletedAt"`
}

// Delete removes the ciphertext blob and then its record inside one store
// transaction. If the blob cannot be removed the transaction rolls back and
// the record stays. A blob that is already gone counts as removed.
func (s *DeletionService) Delete(ctx context.Context, ownerID, fileID uint) (*Deletion, error) {
	var deleted *models.FileRecord
	err := s.files.WithTx(ctx, func(tx repositories.FileStore) error {
		rec, err := tx.FindByIDAndOwner(ctx, fileID, ownerID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fail(ErrNotFound, "File not found or access denied", nil)
			}
			return fail(ErrStore, "Failed to look up file", err)
		}

		if err := s.remove(rec.StoragePath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fail(ErrDeletionFailed, "Failed to delete file from storage", err)
			}
			s.log.WithField("path", rec.StoragePath).Warn("Ciphertext already absent, removing record")
		}

		if err := tx.Delete(ctx, rec); err != nil {
			// A concurrent delete of the same file got there first.
			if errors.Is(err, repositories.ErrNotFound) {
				return fail(ErrNotFound, "File not found or access denied", nil)
			}
			return fail(ErrStore, "Failed to delete file record", err)
		}
		deleted = rec
		return nil
	})
	if err != nil {
		var se *Error
		if !errors.As(err, &se) {
			err = fail(ErrStore, "Failed to delete file record", err)
		}
		if !errors.Is(err, ErrNotFound) {
			s.log.WithError(err).WithFields(logrus.Fields{"file_id": fileID, "owner_id": ownerID}).
				Error("File deletion did not commit")
		}
		return nil, err
	}

	s.unmirror(ctx, deleted.StoredName)

	s.log.WithFields(logrus.Fields{"file_id": deleted.ID, "owner_id": ownerID}).Info("File deleted")
	return &Deletion{
		FileID:       deleted.ID,
		OriginalName: deleted.OriginalName,
		DeletedAt:    s.now().UTC(),
	}, nil
}

func (s *DeletionService) unmirror(ctx context.Context, storedName string) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	key := repositories.MirrorKey(storedName)
	if err := s.mirror.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Error("Failed to delete mirrored ciphertext")
	}
}
