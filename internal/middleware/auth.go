package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/request"
)

// UserUpserter ensures a row exists for an authenticated identity.
type UserUpserter interface {
	Upsert(ctx context.Context, user *models.User) error
}

// Auth validates HS256 bearer tokens and loads the user into the request
// context. The token subject is the user id; email and name ride along as
// private claims so a user row can be created on first sight.
func Auth(secret []byte, users UserUpserter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondAuthError(w, "Missing Authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondAuthError(w, "Invalid Authorization header format")
				return
			}

			token, err := jwt.Parse([]byte(parts[1]),
				jwt.WithKey(jwa.HS256, secret),
				jwt.WithValidate(true),
			)
			if err != nil {
				logger.Debug("token_rejected", zap.Error(err))
				respondAuthError(w, "Invalid or expired token")
				return
			}

			userID, err := uuid.Parse(token.Subject())
			if err != nil {
				respondAuthError(w, "Invalid token subject")
				return
			}
			email, _ := token.Get("email")
			emailStr, _ := email.(string)
			if emailStr == "" {
				respondAuthError(w, "Token is missing the email claim")
				return
			}

			user := &models.User{ID: userID, Email: strings.ToLower(emailStr)}
			if name, ok := token.Get("name"); ok {
				if nameStr, ok := name.(string); ok && nameStr != "" {
					user.Name = &nameStr
				}
			}

			ctx := r.Context()
			if err := users.Upsert(ctx, user); err != nil {
				logger.Error("user_upsert_failed",
					zap.String("user_id", userID.String()),
					zap.Error(err))
				respondJSONError(w, http.StatusInternalServerError, "Database error")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

func respondAuthError(w http.ResponseWriter, message string) {
	respondJSONError(w, http.StatusUnauthorized, message)
}

func respondJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
