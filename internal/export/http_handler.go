package export

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rpattn/impactdash/internal/auth"
	"github.com/rpattn/impactdash/internal/observations"

	"go.uber.org/zap"
)

// Handler serves GET /api/exports/observations?format=csv|xlsx plus the
// observation list filters.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHTTPHandler(service *Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, ok := auth.OrganizationIDFromContext(r.Context())
	if !ok {
		http.Error(w, "owner id is required", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	filter, err := observations.ParseFilter(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		http.Error(w, fmt.Sprintf("%s: %s", ErrUnsupportedFormat, format), http.StatusBadRequest)
		return
	}

	tempFile, err := os.CreateTemp("", "observations-*."+format)
	if err != nil {
		h.logger.Error("Failed to create export file", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempFile.Name())
	}()

	summary, err := h.service.Export(r.Context(), ownerID, filter, format, tempFile)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Observation export failed", zap.String("owner_id", ownerID.String()), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, err := tempFile.Seek(0, 0); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	filename := FileName(filter, format, now)
	w.Header().Set("Content-Type", ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("X-Export-Rows", fmt.Sprintf("%d", summary.Rows))
	http.ServeContent(w, r, filename, now, tempFile)
}
