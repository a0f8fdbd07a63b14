package repositories

import (
	"context"
	"errors"

	"github.com/rohits-web03/vaultbox/internal/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// FileStore persists FileRecords. Every lookup and delete is scoped to an
// owner; there is no way to reach another account's record through it.
type FileStore interface {
	Create(ctx context.Context, rec *models.FileRecord) error
	ListByOwner(ctx context.Context, ownerID uint) ([]models.FileRecord, error)
	FindByIDAndOwner(ctx context.Context, id, ownerID uint) (*models.FileRecord, error)
	Delete(ctx context.Context, rec *models.FileRecord) error
	// WithTx runs fn against a transactional store, committing when fn
	// returns nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx FileStore) error) error
}

type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, rec *models.FileRecord) error {
	return translate(r.db.WithContext(ctx).Create(rec).Error)
}

// ListByOwner returns the owner's files, newest first.
func (r *FileRepository) ListByOwner(ctx context.Context, ownerID uint) ([]models.FileRecord, error) {
	files := make([]models.FileRecord, 0)
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("uploaded_at DESC").
		Order("id DESC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *FileRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uint) (*models.FileRecord, error) {
	var rec models.FileRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&rec).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *FileRepository) Delete(ctx context.Context, rec *models.FileRecord) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", rec.ID, rec.OwnerID).
		Delete(&models.FileRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FileRepository) WithTx(ctx context.Context, fn func(tx FileStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&FileRepository{db: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
