package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"taskd/app/auth"
	"taskd/app/controllers"
)

// RequireAuth rejects requests without a valid bearer token and stores the
// caller in the request context.
func RequireAuth(authn controllers.Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(w, "Authorization header is required. Use: Bearer <token>")
				return
			}

			principal, err := authn.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					unauthorized(w, err.Error())
					return
				}
				unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(controllers.WithPrincipal(r.Context(), principal)))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="taskd"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(controllers.ErrorResponse{Error: message})
}
