package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"roundrobin/onboarding-service/internal/logging"
)

type clientLogRequest struct {
	Level    string         `json:"level"`
	Error    string         `json:"error"`
	Message  string         `json:"message"`
	Context  string         `json:"context"`
	Metadata map[string]any `json:"metadata"`
}

// clientAllowed admits browser calls from a known origin (or referer) and
// other callers presenting a configured x-api-key.
func (h *Handler) clientAllowed(r *http.Request) bool {
	allowed := append([]string{"http://localhost:3000", "https://localhost:3000"}, h.allowedOrigins...)
	if h.appURL != "" {
		allowed = append(allowed, h.appURL)
	}

	if origin := r.Header.Get("Origin"); origin != "" && slices.Contains(allowed, origin) {
		return true
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		if parsed, err := url.Parse(referer); err == nil && parsed.Scheme != "" && parsed.Host != "" {
			if slices.Contains(allowed, parsed.Scheme+"://"+parsed.Host) {
				return true
			}
		}
	}
	apiKey := r.Header.Get("X-Api-Key")
	return apiKey != "" && slices.Contains(h.apiKeys, apiKey)
}

func (h *Handler) handleClientLog(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	if !h.clientAllowed(r) {
		writeError(w, requestID, http.StatusForbidden, "forbidden", "Unauthorized")
		return
	}

	var req clientLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	level := strings.ToUpper(strings.TrimSpace(req.Level))
	if level == "" {
		level = "ERROR"
	}
	switch level {
	case "ERROR":
		if strings.TrimSpace(req.Error) == "" {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "Error message is required for ERROR level logs")
			return
		}
	case "INFO", "WARN":
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "Message is required for INFO/WARN level logs")
			return
		}
	default:
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "Invalid log level. Must be ERROR, WARN, or INFO")
		return
	}

	source := strings.TrimSpace(req.Context)
	if source == "" {
		source = "Client " + level
	}
	fields := logging.Fields{}
	for key, value := range req.Metadata {
		fields[key] = value
	}
	fields["client_ip"] = clientIP(r, h.trustProxy)

	switch level {
	case "ERROR":
		h.log.Error(r.Context(), source, errors.New(req.Error), fields)
	case "WARN":
		h.log.Info(r.Context(), source, "Warning: "+req.Message, fields)
	default:
		h.log.Info(r.Context(), source, req.Message, fields)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
