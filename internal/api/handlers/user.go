package handlers

import (
	"net/http"

	"github.com/rohits-web03/vaultbox/internal/services"
	"github.com/rohits-web03/vaultbox/internal/utils"
)

// GET /api/v1/users/me
// GetProfile godoc
// @Summary Current user's profile
// @Tags Users
// @Produce json
// @Success 200 {object} utils.Payload
// @Router /users/me [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	user, err := h.Accounts.Profile(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Profile retrieved",
		Data:    user,
	})
}

// PUT /api/v1/users/me
// UpdateProfile godoc
// @Summary Update name and/or email
// @Tags Users
// @Accept json
// @Produce json
// @Param body body services.ProfileUpdate true "Fields to change"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Router /users/me [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	var input services.ProfileUpdate
	if err := utils.DecodeJSON(r, &input); err != nil {
		h.badRequest(w, "Invalid input")
		return
	}
	user, err := h.Accounts.UpdateProfile(r.Context(), userID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Profile updated",
		Data:    user,
	})
}

// PUT /api/v1/users/me/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	var input struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := utils.DecodeJSON(r, &input); err != nil {
		h.badRequest(w, "Invalid input")
		return
	}
	if err := h.Accounts.ChangePassword(r.Context(), userID, input.CurrentPassword, input.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Password updated",
	})
}

// POST /api/v1/users/me/profile-picture
// UploadProfilePicture godoc
// @Summary Upload or replace the profile picture
// @Tags Users
// @Accept multipart/form-data
// @Produce json
// @Param profilePicture formData file true "Image, 2MB max"
// @Success 200 {object} utils.Payload
// @Failure 413 {object} utils.Payload
// @Failure 415 {object} utils.Payload
// @Router /users/me/profile-picture [post]
func (h *Handler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAvatarBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		h.badRequest(w, "Invalid file upload form")
		return
	}
	part, err := nextFilePart(mr, "profilePicture")
	if err != nil {
		h.uploadReadFailed(w, r, err, "No file uploaded", services.MaxAvatarBytes)
		return
	}
	defer part.Close()

	user, err := h.Accounts.SetProfilePicture(r.Context(), userID, part.Header.Get("Content-Type"), part)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Profile picture updated",
		Data:    map[string]string{"profilePicture": user.ProfilePicture},
	})
}
