package handlers

import (
	"errors"
	"net/http"

	"github.com/rohits-web03/vaultbox/internal/api/middleware"
	"github.com/rohits-web03/vaultbox/internal/encryption"
	"github.com/rohits-web03/vaultbox/internal/services"
	"github.com/rohits-web03/vaultbox/internal/utils"
	"github.com/sirupsen/logrus"
)

// Deps are the collaborators the HTTP handlers delegate to.
type Deps struct {
	Uploads   *services.UploadService
	Retrieval *services.RetrievalService
	Deletion  *services.DeletionService
	Accounts  *services.AccountService
	Google    *services.GoogleProvider
	Log       *logrus.Logger

	// TempDir receives upload bodies before they are encrypted.
	TempDir     string
	FrontendURL string
	Production  bool
}

type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

func (h *Handler) ownerID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.JSONResponse(w, http.StatusUnauthorized, utils.Payload{
			Success: false,
			Message: "Unauthorized",
		})
	}
	return id, ok
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	utils.JSONResponse(w, http.StatusBadRequest, utils.Payload{
		Success: false,
		Message: message,
	})
}

// fail writes the error envelope for err. Diagnostic detail is included
// outside production.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, fallback := statusFor(err)
	payload := utils.Payload{
		Success: false,
		Message: services.PublicMessage(err, fallback),
	}
	if !h.Production {
		payload.Error = err.Error()
	}

	entry := h.Log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	utils.JSONResponse(w, status, payload)
}

func statusFor(err error) (int, string) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "Payload too large"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, services.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "Unsupported file type"
	case errors.Is(err, services.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "Payload too large"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, services.ErrUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	case errors.Is(err, encryption.ErrCrypto):
		return http.StatusInternalServerError, "Error processing file"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
