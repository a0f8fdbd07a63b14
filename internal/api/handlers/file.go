package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rohits-web03/vaultbox/internal/services"
	"github.com/rohits-web03/vaultbox/internal/utils"
	"github.com/sirupsen/logrus"
)

// multipartOverhead covers boundaries and part headers around the file.
const multipartOverhead = 1 << 20

var errSpool = errors.New("cannot stage upload")

// POST /api/v1/files
// UploadFile godoc
// @Summary Upload and encrypt a file
// @Description Upload a single file (≤ MAX_UPLOAD_MB) in the "file" field. It is encrypted at rest with a per-file IV.
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Success 201 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 413 {object} utils.Payload
// @Failure 415 {object} utils.Payload
// @Router /files [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	maxBytes := h.Uploads.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		h.badRequest(w, "Invalid file upload form")
		return
	}
	part, err := nextFilePart(mr, "file")
	if err != nil {
		h.uploadReadFailed(w, r, err, "No file provided", maxBytes)
		return
	}
	defer part.Close()

	name := filepath.Base(part.FileName())
	if name == "." || name == string(filepath.Separator) {
		h.badRequest(w, "No file provided")
		return
	}
	mimeType := part.Header.Get("Content-Type")

	// Nothing touches disk for a type we would refuse anyway.
	if err := h.Uploads.Validate(mimeType, 0); err != nil {
		h.fail(w, r, err)
		return
	}

	tmpPath, size, err := h.spool(part, maxBytes+1)
	if err != nil {
		h.uploadReadFailed(w, r, err, "Upload interrupted", maxBytes)
		return
	}

	rec, err := h.Uploads.Ingest(r.Context(), ownerID, services.UploadedFile{
		TempPath:     tmpPath,
		MimeType:     mimeType,
		OriginalName: name,
		Size:         size,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "File uploaded and encrypted successfully.",
		Data:    services.Summarize(*rec),
	})
}

// GET /api/v1/files
// ListFiles godoc
// @Summary List the caller's files, newest first
// @Tags Files
// @Produce json
// @Success 200 {object} utils.Payload
// @Router /files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	files, err := h.Retrieval.List(r.Context(), ownerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Files retrieved successfully",
		Data:    map[string]any{"files": files},
	})
}

// GET /api/v1/files/view/{id}
// ViewFile godoc
// @Summary Download or preview a file
// @Description Decrypts the file into the response. Images and PDFs are sent inline, everything else as an attachment.
// @Tags Files
// @Produce application/octet-stream
// @Param id path int true "File ID"
// @Success 200 {file} binary
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /files/view/{id} [get]
func (h *Handler) ViewFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	fileID, err := utils.ParseID(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "Invalid file ID")
		return
	}

	d, err := h.Retrieval.Retrieve(r.Context(), ownerID, fileID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.Retrieval.Deliver(r.Context(), d, w); err != nil {
		if errors.Is(err, services.ErrDeliveryAborted) {
			// Headers are out; the only honest signal left is a cut connection.
			h.Log.WithError(err).WithFields(logrus.Fields{"file_id": fileID, "owner_id": ownerID}).
				Warn("Download aborted")
			panic(http.ErrAbortHandler)
		}
		h.fail(w, r, err)
	}
}

// DELETE /api/v1/files/{id}
// DeleteFile godoc
// @Summary Delete a file and its ciphertext
// @Tags Files
// @Produce json
// @Param id path int true "File ID"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /files/{id} [delete]
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	fileID, err := utils.ParseID(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "Invalid file ID")
		return
	}

	conf, err := h.Deletion.Delete(r.Context(), ownerID, fileID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "File deleted successfully",
		Data:    conf,
	})
}

// nextFilePart skips to the first part in field, discarding others.
func nextFilePart(mr *multipart.Reader, field string) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == field && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// spool copies at most limit bytes of src into a new temp file.
func (h *Handler) spool(src io.Reader, limit int64) (string, int64, error) {
	tmp, err := os.CreateTemp(h.TempDir, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", errSpool, err)
	}
	n, err := io.Copy(tmp, io.LimitReader(src, limit))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(tmp.Name()); rmErr != nil {
			h.Log.WithError(rmErr).WithField("path", tmp.Name()).Error("Failed to remove temporary upload")
		}
		return "", 0, err
	}
	return tmp.Name(), n, nil
}

func (h *Handler) uploadReadFailed(w http.ResponseWriter, r *http.Request, err error, message string, limit int64) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		utils.JSONResponse(w, http.StatusRequestEntityTooLarge, utils.Payload{
			Success: false,
			Message: fmt.Sprintf("File size exceeds the limit of %dMB", limit>>20),
		})
	case errors.Is(err, errSpool):
		h.fail(w, r, err)
	case errors.Is(err, io.EOF):
		h.badRequest(w, message)
	default:
		h.Log.WithError(err).WithField("path", r.URL.Path).Warn("Upload read failed")
		h.badRequest(w, message)
	}
}
