package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"taskd/app/auth"
	"taskd/app/services"
)

// Authenticator resolves a session token to its caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// SignUpRequest is the body of POST /auth/signup.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SignInRequest is the body of POST /auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RecoveryRequest is the body of POST /auth/recovery.
type RecoveryRequest struct {
	Email string `json:"email"`
}

// CompleteRecoveryRequest is the body of PUT /auth/recovery.
type CompleteRecoveryRequest struct {
	UserID          string `json:"userId"`
	Secret          string `json:"secret"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

// MessageResponse carries a human readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// RecoverySentMessage is returned for every recovery request.
const RecoverySentMessage = "If an account exists for this email, a password reset link has been sent."

// AuthController handles account and session requests.
type AuthController struct {
	Auth     *auth.Service
	Sessions *services.Sessions
	Logger   *slog.Logger
}

// NewAuthController creates a new AuthController.
func NewAuthController(svc *auth.Service, sessions *services.Sessions, logger *slog.Logger) *AuthController {
	return &AuthController{Auth: svc, Sessions: sessions, Logger: logger}
}

// SignUp handles POST /auth/signup.
func (c *AuthController) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	session, err := c.Auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	c.Sessions.Open(r.Context(), session.User.ID)
	writeJSON(w, http.StatusCreated, session)
}

// SignIn handles POST /auth/signin.
func (c *AuthController) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	session, err := c.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	c.Sessions.Open(r.Context(), session.User.ID)
	writeJSON(w, http.StatusOK, session)
}

// SignOut handles POST /auth/signout.
func (c *AuthController) SignOut(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := c.Auth.SignOut(r.Context(), p.SessionID); err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	c.Sessions.Close(p.User.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (c *AuthController) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, p.User)
}

// RequestRecovery handles POST /auth/recovery.
func (c *AuthController) RequestRecovery(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := c.Auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageResponse{Message: RecoverySentMessage})
}

// CompleteRecovery handles PUT /auth/recovery.
func (c *AuthController) CompleteRecovery(w http.ResponseWriter, r *http.Request) {
	var req CompleteRecoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.UserID == "" || req.Secret == "" {
		respondErr(w, r, c.Logger, auth.ErrInvalidRecovery)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}
	if err := c.Auth.CompletePasswordReset(r.Context(), req.UserID, req.Secret, req.Password); err != nil {
		respondErr(w, r, c.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset. You can now sign in."})
}
