package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/impactdash/internal/auth"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOwnerRateLimitPerOwner(t *testing.T) {
	handler := OwnerRateLimit(1, 2, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(method string, owner uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/uploads", nil)
		req = req.WithContext(auth.ContextWithOrganizationID(req.Context(), owner))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	busy := uuid.New()
	assert.Equal(t, http.StatusOK, send(http.MethodPost, busy).Code)
	assert.Equal(t, http.StatusOK, send(http.MethodPost, busy).Code)

	limited := send(http.MethodPost, busy)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send(http.MethodGet, busy).Code, "reads are not limited")
	assert.Equal(t, http.StatusOK, send(http.MethodPost, uuid.New()).Code, "owners have separate budgets")
}

func TestOwnerRateLimitDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := OwnerRateLimit(0, 1, nil)(next)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestOwnerRateLimitSkipsExemptPaths(t *testing.T) {
	handler := OwnerRateLimit(1, 1, nil, "/api/uploads/preview")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	owner := uuid.New()

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req = req.WithContext(auth.ContextWithOrganizationID(req.Context(), owner))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send("/api/uploads/preview"), "previews do not spend the budget")
	}
	assert.Equal(t, http.StatusOK, send("/api/uploads"))
	assert.Equal(t, http.StatusTooManyRequests, send("/api/uploads"))
	assert.Equal(t, http.StatusOK, send("/api/uploads/preview"))
}
