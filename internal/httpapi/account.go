package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"roundrobin/onboarding-service/internal/auth"
	"roundrobin/onboarding-service/internal/logging"
	"roundrobin/onboarding-service/internal/models"
	"roundrobin/onboarding-service/internal/notify"
	"roundrobin/onboarding-service/internal/store"

	"github.com/oklog/ulid/v2"
)

const (
	resetTokenTTL      = time.Hour
	invitationTokenTTL = 7 * 24 * time.Hour
	resetSecretBytes   = 32

	forgotPasswordMessage = "If an account with that email exists, a reset link has been sent."
)

var errInvalidResetToken = errors.New("invalid or expired token")

type credentialsRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	SignupKey string `json:"signupKey,omitempty"`
}

type sessionUser struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	IsAdmin        bool   `json:"isAdmin"`
	IsOwner        bool   `json:"isOwner"`
	ApplicantOrgID *int64 `json:"applicantOrgId"`
}

func newSessionUser(user models.User) sessionUser {
	return sessionUser{
		ID:             user.ID,
		Email:          user.Email,
		IsAdmin:        user.IsAdmin,
		IsOwner:        user.IsOwner,
		ApplicantOrgID: user.ApplicantOrgID,
	}
}

func identityOf(user models.User) auth.Identity {
	return auth.Identity{
		ID:             user.ID,
		Email:          user.Email,
		IsAdmin:        user.IsAdmin,
		IsOwner:        user.IsOwner,
		ApplicantOrgID: user.ApplicantOrgID,
	}
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	requestID := requestIDFromRequest(r)

	if req.Email == "" || req.Password == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "Email and password are required")
		return
	}
	if h.signupSecret == "" || subtle.ConstantTimeCompare([]byte(req.SignupKey), []byte(h.signupSecret)) != 1 {
		writeError(w, requestID, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "Invalid email format")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Password must be at least %d characters long", auth.MinPasswordLength))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.internalError(w, r, "signup", err)
		return
	}
	user, err := h.store.CreateUser(r.Context(), store.CreateUserInput{
		Email:        req.Email,
		PasswordHash: hash,
		IsAdmin:      true,
		IsOwner:      true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, requestID, http.StatusConflict, "duplicate_email", "User with this email already exists")
			return
		}
		h.internalError(w, r, "signup", err)
		return
	}
	if !h.startSession(w, r, user, "signup") {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User created successfully", "userId": user.ID})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "Email and password are required")
		return
	}

	user, hash, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.internalError(w, r, "login", err)
		return
	}
	if err != nil || !auth.VerifyPassword(hash, req.Password) {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "invalid_credentials", auth.ErrInvalidCredentials.Error())
		return
	}
	if !h.startSession(w, r, user, "login") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Login successful", "user": newSessionUser(user)})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user models.User, source string) bool {
	token, _, err := h.issuer.Sign(identityOf(user))
	if err != nil {
		h.internalError(w, r, source, err)
		return false
	}
	auth.SetSessionCookie(w, token, h.secureCookies)
	return true
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.secureCookies)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logout successful"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, err := h.issuer.Authenticate(auth.TokenFromRequest(r))
	if err != nil {
		writeUnauthorized(w, r)
		return
	}
	user, err := h.store.GetUser(r.Context(), claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "User not found")
			return
		}
		h.internalError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newSessionUser(user)})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "Email is required")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "Invalid email format")
		return
	}

	user, _, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage})
			return
		}
		h.internalError(w, r, "forgot-password", err)
		return
	}
	if err := h.issueAccountToken(r.Context(), user, notify.KindPasswordReset, resetTokenTTL); err != nil {
		h.internalError(w, r, "forgot-password", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage})
}

// issueAccountToken stores a single-use token for the user and hands the
// link to the notifier. Delivery failures are logged, not returned.
func (h *Handler) issueAccountToken(ctx context.Context, user models.User, kind notify.Kind, ttl time.Duration) error {
	now := h.now().UTC()
	secret, err := auth.RandomSecret(resetSecretBytes)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(secret)
	if err != nil {
		return err
	}
	if err := h.store.PruneResetTokens(ctx, user.ID, now); err != nil {
		return fmt.Errorf("prune reset tokens: %w", err)
	}
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	expiresAt := now.Add(ttl)
	if err := h.store.CreateResetToken(ctx, models.ResetToken{ID: id, UserID: user.ID, TokenHash: hash, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}

	msg := notify.Message{
		Kind:      kind,
		Recipient: user.Email,
		Link:      h.appURL + "/reset-password/" + id + "." + secret,
		ExpiresAt: expiresAt,
	}
	if err := h.notifier.Send(ctx, msg); err != nil {
		h.log.Error(ctx, "notify", err, logging.Fields{"userId": user.ID, "kind": string(kind)})
	}
	return nil
}

// lookupResetToken resolves "<id>.<secret>" to a live, unused token.
func (h *Handler) lookupResetToken(ctx context.Context, raw string) (models.ResetToken, error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || secret == "" {
		return models.ResetToken{}, errInvalidResetToken
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return models.ResetToken{}, errInvalidResetToken
	}
	token, err := h.store.GetResetToken(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.ResetToken{}, errInvalidResetToken
		}
		return models.ResetToken{}, err
	}
	if token.Used || !token.ExpiresAt.After(h.now()) || !auth.VerifyPassword(token.TokenHash, secret) {
		return models.ResetToken{}, errInvalidResetToken
	}
	return token, nil
}

func (h *Handler) handleCheckResetToken(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "Token is required")
		return
	}
	if _, err := h.lookupResetToken(r.Context(), raw); err != nil {
		h.writeResetTokenError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Token is valid"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	requestID := requestIDFromRequest(r)
	if req.Token == "" || req.Password == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "Token and password are required")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Password must be at least %d characters long", auth.MinPasswordLength))
		return
	}

	token, err := h.lookupResetToken(r.Context(), req.Token)
	if err != nil {
		h.writeResetTokenError(w, r, err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.internalError(w, r, "reset-password", err)
		return
	}
	// Another request may have consumed the token since the lookup.
	if err := h.store.ConsumeResetToken(r.Context(), token.ID, hash, h.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = errInvalidResetToken
		}
		h.writeResetTokenError(w, r, err)
		return
	}
	if err := h.store.PruneResetTokens(r.Context(), token.UserID, h.now().UTC()); err != nil {
		h.log.Error(r.Context(), "reset-password", err, logging.Fields{"userId": token.UserID})
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset successfully"})
}

func (h *Handler) writeResetTokenError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errInvalidResetToken) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_token", "Invalid or expired token")
		return
	}
	h.internalError(w, r, "reset-password", err)
}
