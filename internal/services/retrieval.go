package services

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/rohits-web03/vaultbox/internal/encryption"
	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/rohits-web03/vaultbox/internal/repositories"
	"github.com/sirupsen/logrus"
)

// Decrypter is the read side of *encryption.Pipeline.
type Decrypter interface {
	UseStreaming(blobSize int64) bool
	DecryptToBuffer(srcPath string, iv []byte) ([]byte, error)
	DecryptToSink(ctx context.Context, srcPath string, iv []byte, sink io.Writer, ready func(plainSize int64)) (int64, error)
}

type RetrievalService struct {
	files repositories.FileStore
	dec   Decrypter
	log   *logrus.Logger
}

func NewRetrievalService(files repositories.FileStore, dec Decrypter, log *logrus.Logger) *RetrievalService {
	return &RetrievalService{files: files, dec: dec, log: log}
}

// Delivery describes how to send one resolved file.
type Delivery struct {
	Record      *models.FileRecord
	ContentType string
	Inline      bool
	blobPath    string
	blobSize    int64
	iv          []byte
}

// Disposition is the Content-Disposition header value.
func (d *Delivery) Disposition() string {
	kind := "attachment"
	if d.Inline {
		kind = "inline"
	}
	if v := mime.FormatMediaType(kind, map[string]string{"filename": d.Record.OriginalName}); v != "" {
		return v
	}
	return kind
}

// Streamed reports whether the blob is decrypted chunk by chunk.
func (d *Delivery) Streamed(dec Decrypter) bool {
	return dec.UseStreaming(d.blobSize)
}

// List returns the owner's files, newest first.
func (s *RetrievalService) List(ctx context.Context, ownerID uint) ([]FileSummary, error) {
	records, err := s.files.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fail(ErrStore, "Failed to fetch files. Please try again later.", err)
	}
	out := make([]FileSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, Summarize(rec))
	}
	return out, nil
}

// Retrieve resolves fileID for ownerID. A record owned by someone else, a
// missing record and a record whose blob is gone are all ErrNotFound.
func (s *RetrievalService) Retrieve(ctx context.Context, ownerID, fileID uint) (*Delivery, error) {
	rec, err := s.files.FindByIDAndOwner(ctx, fileID, ownerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fail(ErrNotFound, "File not found or access denied", nil)
		}
		return nil, fail(ErrStore, "Failed to look up file", err)
	}

	info, err := os.Stat(rec.StoragePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.WithFields(logrus.Fields{"file_id": rec.ID, "path": rec.StoragePath}).
				Warn("Ciphertext blob missing for existing record")
			return nil, fail(ErrNotFound, "File not found or access denied", nil)
		}
		return nil, fail(ErrStore, "Failed to read file", err)
	}

	iv, err := encryption.ParseIV(rec.IV)
	if err != nil {
		return nil, &Error{Kind: encryption.ErrCrypto, Message: "Failed to decrypt file", Err: err}
	}

	contentType := ContentTypeFor(rec.OriginalName)
	return &Delivery{
		Record:      rec,
		ContentType: contentType,
		Inline:      Previewable(contentType),
		blobPath:    rec.StoragePath,
		blobSize:    info.Size(),
		iv:          iv,
	}, nil
}

// Deliver decrypts d into w. Errors returned before any header is written
// leave w untouched; once headers are out the error is ErrDeliveryAborted
// and the caller must not write to w again.
func (s *RetrievalService) Deliver(ctx context.Context, d *Delivery, w http.ResponseWriter) error {
	if !d.Streamed(s.dec) {
		plain, err := s.dec.DecryptToBuffer(d.blobPath, d.iv)
		if err != nil {
			return &Error{Kind: encryption.ErrCrypto, Message: "Failed to decrypt file", Err: err}
		}
		s.writeHeaders(w, d, int64(len(plain)))
		if _, err := w.Write(plain); err != nil {
			return fail(ErrDeliveryAborted, "Download interrupted", err)
		}
		return nil
	}

	// Headers go out only once a crypto slot is held and the length is known.
	size := int64(-1)
	n, err := s.dec.DecryptToSink(ctx, d.blobPath, d.iv, w, func(plainSize int64) {
		size = plainSize
		s.writeHeaders(w, d, plainSize)
	})
	if size < 0 {
		switch {
		case errors.Is(err, encryption.ErrCrypto):
			return &Error{Kind: encryption.ErrCrypto, Message: "Failed to decrypt file", Err: err}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return fail(ErrUnavailable, "Server is busy, please try again", err)
		default:
			return fail(ErrStore, "Failed to read file", err)
		}
	}
	if err != nil {
		return fail(ErrDeliveryAborted, "Download interrupted", err)
	}
	if n != size {
		return fail(ErrDeliveryAborted, "Download interrupted", errors.New("plaintext length does not match Content-Length"))
	}
	return nil
}

func (s *RetrievalService) writeHeaders(w http.ResponseWriter, d *Delivery, length int64) {
	h := w.Header()
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Disposition", d.Disposition())
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
}
