package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"roundrobin/onboarding-service/internal/logging"
	"roundrobin/onboarding-service/internal/models"
	"roundrobin/onboarding-service/internal/notify"
	"roundrobin/onboarding-service/internal/store"
)

const duplicateClientEmail = "Email already associated with another client."

type createClientRequest struct {
	CompanyName         string `json:"company_name"`
	PrimaryContactName  string `json:"primary_contact_name"`
	PrimaryContactEmail string `json:"primary_contact_email"`
	StorageBucketBase   string `json:"storage_bucket_base"`
}

type clientRequest struct {
	ClientID flexID `json:"clientID"`
}

type updateClientRequest struct {
	ClientID            flexID `json:"clientID"`
	CompanyName         string `json:"companyName"`
	PrimaryContactName  string `json:"primaryContactName"`
	PrimaryContactEmail string `json:"primaryContactEmail"`
	Status              string `json:"status"`
}

func validateOrgFields(companyName, contactName, contactEmail string) string {
	switch {
	case !lengthBetween(companyName, 2, 255):
		return "Company name must be between 2 and 255 characters"
	case !lengthBetween(contactName, 2, 255):
		return "Primary contact name must be between 2 and 255 characters"
	case !validEmail(contactEmail):
		return "Invalid email address"
	}
	return ""
}

func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.PrimaryContactName = strings.TrimSpace(req.PrimaryContactName)
	req.PrimaryContactEmail = strings.TrimSpace(req.PrimaryContactEmail)
	req.StorageBucketBase = strings.TrimSpace(req.StorageBucketBase)

	msg := validateOrgFields(req.CompanyName, req.PrimaryContactName, req.PrimaryContactEmail)
	if msg == "" && !lengthBetween(req.StorageBucketBase, 2, 25) {
		msg = "Storage bucket base must be between 2 and 25 characters"
	}
	if msg != "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", msg)
		return
	}

	org, contact, err := h.store.CreateOrgWithContact(r.Context(), store.CreateOrgInput{
		CompanyName:         req.CompanyName,
		PrimaryContactName:  req.PrimaryContactName,
		PrimaryContactEmail: req.PrimaryContactEmail,
		StorageBucketBase:   req.StorageBucketBase,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "duplicate_email", duplicateClientEmail)
			return
		}
		h.internalError(w, r, "create-client", err)
		return
	}
	h.log.Info(r.Context(), "create-client", "client created", logging.Fields{"clientID": org.ID})

	// The client row exists at this point; a failed invitation is reported
	// in the log and can be re-sent through forgot-password.
	if err := h.issueAccountToken(r.Context(), contact, notify.KindInvitation, invitationTokenTTL); err != nil {
		h.log.Error(r.Context(), "create-client", err, logging.Fields{"clientID": org.ID})
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "success", "orgId": strconv.FormatInt(org.ID, 10)})
}

func (h *Handler) handleClientList(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.store.ListOrgs(r.Context())
	if err != nil {
		h.internalError(w, r, "get-client-list", err)
		return
	}
	if orgs == nil {
		orgs = []models.ApplicantOrg{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "success", "clientList": orgs})
}

// decodeClientID reads {"clientID": ...} and rejects non-positive ids.
func decodeClientID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return 0, false
	}
	if req.ClientID <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "clientID is required")
		return 0, false
	}
	return int64(req.ClientID), true
}

func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) {
	clientID, ok := decodeClientID(w, r)
	if !ok {
		return
	}
	org, err := h.store.GetOrg(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "Client not found")
			return
		}
		h.internalError(w, r, "get-client", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "success", "client": org})
}

func (h *Handler) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var req updateClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.PrimaryContactName = strings.TrimSpace(req.PrimaryContactName)
	req.PrimaryContactEmail = strings.TrimSpace(req.PrimaryContactEmail)
	status := models.OrgStatus(strings.TrimSpace(req.Status))

	msg := validateOrgFields(req.CompanyName, req.PrimaryContactName, req.PrimaryContactEmail)
	switch {
	case req.ClientID <= 0:
		msg = "clientID is required"
	case msg == "" && !status.Valid():
		msg = "Invalid status"
	}
	if msg != "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", msg)
		return
	}

	org, err := h.store.UpdateOrg(r.Context(), store.UpdateOrgInput{
		ID:                  int64(req.ClientID),
		CompanyName:         req.CompanyName,
		PrimaryContactName:  req.PrimaryContactName,
		PrimaryContactEmail: req.PrimaryContactEmail,
		Status:              status,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "Client not found")
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "duplicate_email", duplicateClientEmail)
		default:
			h.internalError(w, r, "update-client", err)
		}
		return
	}
	h.log.Info(r.Context(), "update-client", "client updated", logging.Fields{"clientID": org.ID})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Client updated successfully", "client": org})
}

func (h *Handler) handleClientFiles(w http.ResponseWriter, r *http.Request) {
	clientID, ok := decodeClientID(w, r)
	if !ok {
		return
	}
	h.writeFiles(w, r, clientID)
}

func (h *Handler) handleClientProgress(w http.ResponseWriter, r *http.Request) {
	clientID, ok := decodeClientID(w, r)
	if !ok {
		return
	}
	h.writeProgress(w, r, clientID)
}
