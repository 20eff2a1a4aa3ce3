package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"roundrobin/onboarding-service/internal/auth"
	"roundrobin/onboarding-service/internal/files"
	"roundrobin/onboarding-service/internal/logging"
	"roundrobin/onboarding-service/internal/models"
	"roundrobin/onboarding-service/internal/notify"
	"roundrobin/onboarding-service/internal/requirements"
	"roundrobin/onboarding-service/internal/store"

	"github.com/gorilla/mux"
)

const maxJSONBody = 1 << 20

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type FileService interface {
	ResolveAccessURL(ctx context.Context, fileID int64) (files.AccessURL, error)
	ResolveOrgAccessURL(ctx context.Context, orgID, fileID int64) (files.AccessURL, error)
	Upload(ctx context.Context, in files.UploadInput) (files.UploadResult, error)
	List(ctx context.Context, orgID int64) ([]models.File, error)
	Progress(ctx context.Context, orgID int64) (requirements.Report, error)
}

type Handler struct {
	store     store.Store
	files     FileService
	issuer    *auth.Issuer
	notifier  notify.Notifier
	log       logging.Sink
	now       func() time.Time
	clientLog *RateLimiter

	signupSecret   string
	appURL         string
	secureCookies  bool
	maxUploadBytes int64
	allowedOrigins []string
	apiKeys        []string
	trustProxy     bool
}

type Options struct {
	Issuer         *auth.Issuer
	Notifier       notify.Notifier
	Log            logging.Sink
	SignupSecret   string
	AppURL         string
	SecureCookies  bool
	MaxUploadBytes int64
	AllowedOrigins []string
	APIKeys        []string
	// LoggerPerMinute bounds client log intake per IP.
	LoggerPerMinute int
	// TrustProxy reads the caller IP from proxy headers.
	TrustProxy bool
	Now        func() time.Time
}

type errorResponse struct {
	RequestID string        `json:"request_id,omitempty"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func NewHandler(st store.Store, fileSvc FileService, options Options) *Handler {
	h := &Handler{
		store:          st,
		files:          fileSvc,
		issuer:         options.Issuer,
		notifier:       options.Notifier,
		log:            options.Log,
		now:            options.Now,
		signupSecret:   options.SignupSecret,
		appURL:         strings.TrimRight(options.AppURL, "/"),
		secureCookies:  options.SecureCookies,
		maxUploadBytes: options.MaxUploadBytes,
		allowedOrigins: options.AllowedOrigins,
		apiKeys:        options.APIKeys,
		trustProxy:     options.TrustProxy,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.notifier == nil {
		h.notifier = notify.New(notify.Config{})
	}
	if h.log == nil {
		h.log = logging.NewConsole("payments", nil)
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = files.DefaultMaxUploadBytes
	}
	perMinute := options.LoggerPerMinute
	if perMinute <= 0 {
		perMinute = 100
	}
	h.clientLog = NewRateLimiter(RateLimitConfig{IPPerMinute: perMinute, IPBurst: perMinute, TrustProxy: options.TrustProxy})
	return h
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signup", h.handleSignup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", h.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/auth/forgot-password", h.handleForgotPassword).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset-password", h.handleCheckResetToken).Methods(http.MethodGet)
	api.HandleFunc("/auth/reset-password", h.handleResetPassword).Methods(http.MethodPost)
	api.Handle("/logger", h.clientLog.Middleware(http.HandlerFunc(h.handleClientLog))).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireRole(auth.RoleAdmin))
	admin.HandleFunc("/create-client", h.handleCreateClient).Methods(http.MethodPost)
	admin.HandleFunc("/get-client-list", h.handleClientList).Methods(http.MethodPost)
	admin.HandleFunc("/get-client", h.handleGetClient).Methods(http.MethodPost)
	admin.HandleFunc("/update-client", h.handleUpdateClient).Methods(http.MethodPost)
	admin.HandleFunc("/get-client-files", h.handleClientFiles).Methods(http.MethodPost)
	admin.HandleFunc("/get-client-progress", h.handleClientProgress).Methods(http.MethodPost)
	admin.HandleFunc("/upload-file", h.handleAdminUpload).Methods(http.MethodPost)
	admin.HandleFunc("/get-file-url", h.handleAdminFileURL).Methods(http.MethodPost)

	applicant := api.PathPrefix("/applicant").Subrouter()
	applicant.Use(h.requireRole(auth.RoleApplicant))
	applicant.HandleFunc("/upload-file", h.handleApplicantUpload).Methods(http.MethodPost)
	applicant.HandleFunc("/get-file-url", h.handleApplicantFileURL).Methods(http.MethodPost)
	applicant.HandleFunc("/get-files", h.handleApplicantFiles).Methods(http.MethodPost)
	applicant.HandleFunc("/get-progress", h.handleApplicantProgress).Methods(http.MethodPost)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Error(r.Context(), "healthz", err, nil)
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "unavailable", "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// flexID accepts ids sent either as JSON numbers or numeric strings.
type flexID int64

func (id *flexID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*id = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errors.New("id must be a positive integer")
	}
	*id = flexID(value)
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func validEmail(email string) bool {
	return len(email) <= 255 && emailPattern.MatchString(email)
}

func lengthBetween(value string, min, max int) bool {
	n := len([]rune(value))
	return n >= min && n <= max
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, source string, err error) {
	h.log.Error(r.Context(), source, err, logging.Fields{"path": r.URL.Path})
	writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "Internal server error")
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "Unauthorized")
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
