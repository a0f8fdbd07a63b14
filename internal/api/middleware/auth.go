package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rohits-web03/vaultbox/internal/auth"
	"github.com/rohits-web03/vaultbox/internal/utils"
	"github.com/sirupsen/logrus"
)

type contextKey string

const UserIDKey contextKey = "userID"

// TokenCookie is the session cookie set on login.
const TokenCookie = "token"

// AuthMiddleware admits requests carrying a valid session token, either as
// a Bearer header or the token cookie, and stores the account id in the
// request context.
func AuthMiddleware(secret []byte, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr := bearerToken(r)
			if tokenStr == "" {
				if c, err := r.Cookie(TokenCookie); err == nil {
					tokenStr = c.Value
				}
			}
			if tokenStr == "" {
				unauthorized(w)
				return
			}

			claims, err := auth.ParseToken(tokenStr, secret)
			if err != nil {
				log.WithError(err).WithField("path", r.URL.Path).Debug("Rejected session token")
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

func WithUserID(ctx context.Context, id uint) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

func UserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(UserIDKey).(uint)
	return id, ok && id != 0
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	utils.JSONResponse(w, http.StatusUnauthorized, utils.Payload{
		Success: false,
		Message: "Unauthorized",
	})
}
