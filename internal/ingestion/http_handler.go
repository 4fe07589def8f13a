package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/impactdash/internal/auth"
	"github.com/rpattn/impactdash/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxUploadBytes = 32 << 20

// Handler exposes ingestion as HTTP endpoints:
//
//	POST /api/uploads          multipart file + columnMapping
//	POST /api/uploads/preview  same form, nothing is written
//	GET  /api/uploads          uploads of the scoped owner
type Handler struct {
	service        *Service
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHTTPHandler wraps the service. maxUploadBytes <= 0 uses 32 MiB.
func NewHTTPHandler(service *Service, maxUploadBytes int64, logger *zap.Logger) http.Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, maxUploadBytes: maxUploadBytes, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/preview"):
		h.handlePreview(w, r)
	case r.Method == http.MethodPost:
		h.handleSubmit(w, r)
	case r.Method == http.MethodGet:
		h.handleList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type uploadForm struct {
	ownerID  uuid.UUID
	fileName string
	data     []byte
	mapping  domain.ColumnMapping
}

func (h *Handler) readUploadForm(w http.ResponseWriter, r *http.Request) (uploadForm, bool) {
	ownerID, ok := auth.OrganizationIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrOwnerRequired.Error())
		return uploadForm{}, false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return uploadForm{}, false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return uploadForm{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file required: %v", err))
		return uploadForm{}, false
	}
	defer file.Close()

	mapping, err := domain.ParseColumnMapping(r.FormValue("columnMapping"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid columnMapping: %v", err))
		return uploadForm{}, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read file: %v", err))
		return uploadForm{}, false
	}

	return uploadForm{
		ownerID:  ownerID,
		fileName: header.Filename,
		data:     data,
		mapping:  mapping,
	}, true
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	form, ok := h.readUploadForm(w, r)
	if !ok {
		return
	}

	result, err := h.service.SubmitUpload(r.Context(), Request{
		OwnerID:       form.ownerID,
		FileName:      form.fileName,
		FileSize:      int64(len(form.data)),
		Data:          form.data,
		ColumnMapping: form.mapping,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	form, ok := h.readUploadForm(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.FormValue("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	result, err := h.service.Preview(r.Context(), PreviewRequest{
		OwnerID:       form.ownerID,
		FileName:      form.fileName,
		Data:          form.data,
		ColumnMapping: form.mapping,
		Limit:         limit,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OrganizationIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrOwnerRequired.Error())
		return
	}

	uploads, err := h.service.ListUploads(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploads)
}

type duplicateResponse struct {
	Error            string    `json:"error"`
	ExistingUploadID uuid.UUID `json:"existingUploadId"`
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var duplicate *DuplicateUploadError
	switch {
	case errors.As(err, &duplicate):
		writeJSON(w, http.StatusConflict, duplicateResponse{
			Error:            duplicate.Error(),
			ExistingUploadID: duplicate.ExistingID,
		})
	case errors.Is(err, ErrDuplicateUpload):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyOrInvalidFile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrOwnerRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.Error("Ingestion request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
