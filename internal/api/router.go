package api

import (
	"fmt"
	"net/http"

	_ "github.com/rohits-web03/vaultbox/docs"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/rohits-web03/vaultbox/internal/api/handlers"
	"github.com/rohits-web03/vaultbox/internal/api/middleware"
	"github.com/rs/cors"
)

// RouterConfig carries what the router needs beyond the handlers.
type RouterConfig struct {
	JWTSecret   []byte
	CorsOptions cors.Options
	// AvatarDir is served read-only at /uploads/profile-pictures/.
	AvatarDir string
}

func SetupRouter(h *handlers.Handler, cfg RouterConfig) http.Handler {
	mainMux := http.NewServeMux()
	c := cors.New(cfg.CorsOptions)
	requireAuth := middleware.AuthMiddleware(cfg.JWTSecret, h.Log)

	// ---------- PUBLIC ROUTES ----------
	mainMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	mainMux.HandleFunc("/docs/", httpSwagger.WrapHandler)

	mainMux.Handle("GET /uploads/profile-pictures/",
		http.StripPrefix("/uploads/profile-pictures/", http.FileServer(http.Dir(cfg.AvatarDir))),
	)

	authMux := http.NewServeMux()
	authMux.HandleFunc("POST /sign-up", h.RegisterUser)
	authMux.HandleFunc("POST /login", h.LoginUser)
	authMux.HandleFunc("GET /google/login", h.HandleGoogleLogin)
	authMux.HandleFunc("GET /google/callback", h.HandleGoogleCallback)
	authMux.Handle("POST /logout", requireAuth(http.HandlerFunc(h.Logout)))

	mainMux.Handle("/api/v1/auth/",
		http.StripPrefix("/api/v1/auth", authMux),
	)

	// ---------- PROTECTED ROUTES ----------
	protectedMux := http.NewServeMux()

	protectedMux.HandleFunc("GET /files", h.ListFiles)
	protectedMux.HandleFunc("POST /files", h.UploadFile)
	protectedMux.HandleFunc("GET /files/view/{id}", h.ViewFile)
	protectedMux.HandleFunc("DELETE /files/{id}", h.DeleteFile)

	protectedMux.HandleFunc("GET /users/me", h.GetProfile)
	protectedMux.HandleFunc("PUT /users/me", h.UpdateProfile)
	protectedMux.HandleFunc("PUT /users/me/password", h.ChangePassword)
	protectedMux.HandleFunc("POST /users/me/profile-picture", h.UploadProfilePicture)

	mainMux.Handle("/api/v1/",
		http.StripPrefix(
			"/api/v1",
			requireAuth(protectedMux),
		),
	)

	h.Log.Debug("Router initialized")
	handler := c.Handler(mainMux)
	handler = middleware.Logger(h.Log)(handler)
	return handler
}
