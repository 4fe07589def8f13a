package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rpattn/impactdash/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrganizationHeader carries the owner identity on every API request.
const OrganizationHeader = "X-Organization-ID"

// OwnerScope resolves the request owner and stores it in the context.
// The header wins; when it is absent, fallback is used if non-nil. The
// resolved owner must exist in the organization catalog.
func OwnerScope(orgs repository.OrganizationRepository, fallback uuid.UUID, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := fallback
			if raw := strings.TrimSpace(r.Header.Get(OrganizationHeader)); raw != "" {
				parsed, err := uuid.Parse(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid "+OrganizationHeader+" header")
					return
				}
				ownerID = parsed
			}
			if ownerID == uuid.Nil {
				writeError(w, http.StatusUnauthorized, OrganizationHeader+" header is required")
				return
			}

			if _, err := orgs.GetByID(r.Context(), ownerID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					writeError(w, http.StatusNotFound, "organization not found")
					return
				}
				logger.Error("Failed to resolve organization", zap.String("organization_id", ownerID.String()), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithOrganizationID(r.Context(), ownerID)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
