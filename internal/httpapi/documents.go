package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"roundrobin/onboarding-service/internal/files"
	"roundrobin/onboarding-service/internal/store"
)

const multipartMemory = 8 << 20

type fileURLRequest struct {
	FileID flexID `json:"fileId"`
}

type fileURLResponse struct {
	SignedURL string `json:"signedUrl"`
	ExpiresAt string `json:"expiresAt"`
}

type uploadResponse struct {
	Message  string `json:"message"`
	FileID   int64  `json:"fileId"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

func (h *Handler) handleAdminUpload(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	if !h.parseUpload(w, r) {
		return
	}
	clientID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("clientID")), 10, 64)
	if err != nil || clientID <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "clientID is required")
		return
	}
	if _, err := h.store.GetOrg(r.Context(), clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "Client not found")
			return
		}
		h.internalError(w, r, "upload-file", err)
		return
	}
	h.upload(w, r, clientID, claims.ID)
}

func (h *Handler) handleApplicantUpload(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	if !h.parseUpload(w, r) {
		return
	}
	h.upload(w, r, claims.OrgID(), claims.ID)
}

func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "File size exceeds limit")
			return false
		}
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "invalid multipart payload")
		return false
	}
	return true
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, orgID, uploadedBy int64) {
	in := files.UploadInput{
		OrgID:       orgID,
		Requirement: strings.TrimSpace(r.FormValue("requirement")),
		Note:        r.FormValue("note"),
		UploadedBy:  uploadedBy,
	}
	part, header, err := r.FormFile("file")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "invalid file part")
		return
	}
	if part != nil {
		defer part.Close()
		in.Body = part
		in.Filename = header.Filename
		in.Size = header.Size
		in.ContentType = header.Header.Get("Content-Type")
	}

	res, err := h.files.Upload(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, files.ErrInvalidRequirement), errors.Is(err, files.ErrNoFile), errors.Is(err, files.ErrFileTooLarge):
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", uploadMessage(err))
		default:
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "upload_failed", uploadMessage(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  "File uploaded successfully",
		FileID:   res.File.ID,
		FileURL:  res.File.URL,
		FileName: res.Filename,
		FileSize: res.Size,
	})
}

func uploadMessage(err error) string {
	switch {
	case errors.Is(err, files.ErrInvalidRequirement):
		return "Invalid requirement type"
	case errors.Is(err, files.ErrNoFile):
		return "No file provided"
	case errors.Is(err, files.ErrFileTooLarge):
		return "File size exceeds limit"
	case errors.Is(err, files.ErrMetadata):
		return "Failed to save file metadata"
	default:
		return "Failed to upload file"
	}
}

func decodeFileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var req fileURLRequest
	if !decodeJSON(w, r, &req) {
		return 0, false
	}
	if req.FileID <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "fileId is required")
		return 0, false
	}
	return int64(req.FileID), true
}

func (h *Handler) handleAdminFileURL(w http.ResponseWriter, r *http.Request) {
	fileID, ok := decodeFileID(w, r)
	if !ok {
		return
	}
	access, err := h.files.ResolveAccessURL(r.Context(), fileID)
	h.writeAccessURL(w, r, access, err)
}

func (h *Handler) handleApplicantFileURL(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	fileID, ok := decodeFileID(w, r)
	if !ok {
		return
	}
	access, err := h.files.ResolveOrgAccessURL(r.Context(), claims.OrgID(), fileID)
	h.writeAccessURL(w, r, access, err)
}

func (h *Handler) writeAccessURL(w http.ResponseWriter, r *http.Request, access files.AccessURL, err error) {
	if err != nil {
		switch {
		case errors.Is(err, files.ErrNotFound):
			writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "File not found")
		case errors.Is(err, files.ErrProviderFailure):
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "provider_failure", "Failed to generate signed URL")
		default:
			h.internalError(w, r, "get-file-url", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, fileURLResponse{SignedURL: access.URL, ExpiresAt: files.FormatTimestamp(access.ExpiresAt)})
}

func (h *Handler) handleApplicantFiles(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	h.writeFiles(w, r, claims.OrgID())
}

func (h *Handler) handleApplicantProgress(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFromContext(r.Context())
	h.writeProgress(w, r, claims.OrgID())
}

func (h *Handler) writeFiles(w http.ResponseWriter, r *http.Request, orgID int64) {
	list, err := h.files.List(r.Context(), orgID)
	if err != nil {
		h.internalError(w, r, "get-files", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": list})
}

func (h *Handler) writeProgress(w http.ResponseWriter, r *http.Request, orgID int64) {
	report, err := h.files.Progress(r.Context(), orgID)
	if err != nil {
		h.internalError(w, r, "get-progress", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
