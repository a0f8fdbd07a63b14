package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/rohits-web03/vaultbox/internal/api/middleware"
	"github.com/rohits-web03/vaultbox/internal/models"
	"github.com/rohits-web03/vaultbox/internal/services"
	"github.com/rohits-web03/vaultbox/internal/utils"
)

const oauthStateCookie = "oauth_state"

type sessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// POST /auth/sign-up
// RegisterUser godoc
// @Summary Create an account
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body object true "name, email, password"
// @Success 201 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Router /auth/sign-up [post]
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &input); err != nil {
		h.badRequest(w, "Invalid input")
		return
	}

	sess, err := h.Accounts.Register(r.Context(), input.Name, input.Email, input.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.setSessionCookie(w, sess)
	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "User registered successfully",
		Data:    sessionResponse{User: sess.User, Token: sess.Token},
	})
}

// POST /auth/login
// LoginUser godoc
// @Summary Sign in with email and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body object true "email, password"
// @Success 200 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Router /auth/login [post]
func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &input); err != nil {
		h.badRequest(w, "Invalid input")
		return
	}

	sess, err := h.Accounts.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.setSessionCookie(w, sess)
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Login successful",
		Data:    sessionResponse{User: sess.User, Token: sess.Token},
	})
}

// POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // maxAge < 0 deletes the cookie
		Secure:   h.Production,
		HttpOnly: true,
		SameSite: h.sameSite(),
	})

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Logged out successfully",
	})
}

// GET /auth/google/login?redirect=login|register
func (h *Handler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	redirectType := r.URL.Query().Get("redirect")
	if redirectType != "register" {
		redirectType = "login"
	}

	state, nonce, err := GenerateState(map[string]string{"flow": redirectType})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    nonce,
		Path:     "/api/v1/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		Secure:   h.Production,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.Google.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GET /auth/google/callback
func (h *Handler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	var nonce string
	if c, err := r.Cookie(oauthStateCookie); err == nil {
		nonce = c.Value
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/api/v1/auth/google", MaxAge: -1})

	stateData, err := DecodeState(r.FormValue("state"), nonce)
	if err != nil {
		h.Log.WithError(err).Warn("Invalid OAuth state")
		h.badRequest(w, "Invalid OAuth state")
		return
	}
	flowType := stateData["flow"]

	gu, err := h.Google.FetchUser(r.Context(), r.FormValue("code"))
	if err != nil {
		h.Log.WithError(err).Error("Google sign-in failed")
		h.redirectFrontend(w, r, "/login", "error", "google_failed")
		return
	}

	sess, err := h.Accounts.GoogleSignIn(r.Context(), flowType, gu)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrConflict):
		h.redirectFrontend(w, r, "/login", "error", "user_already_exists")
		return
	case errors.Is(err, services.ErrNotFound):
		h.redirectFrontend(w, r, "/register", "error", "user_not_found")
		return
	default:
		h.fail(w, r, err)
		return
	}

	h.setSessionCookie(w, sess)
	status := "success_login"
	if flowType == "register" {
		status = "success_register"
	}
	h.redirectFrontend(w, r, "/dashboard", "status", status)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sess *services.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		Secure:   h.Production,
		HttpOnly: true,
		SameSite: h.sameSite(),
	})
}

// SameSite cookie policy
func (h *Handler) sameSite() http.SameSite {
	if h.Production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (h *Handler) redirectFrontend(w http.ResponseWriter, r *http.Request, path, key, value string) {
	target := h.FrontendURL + path + "?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
