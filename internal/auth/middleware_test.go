package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type stubOrgRepo struct {
	orgs map[uuid.UUID]domain.Organization
	err  error
}

func (s *stubOrgRepo) Create(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	s.orgs[org.ID] = org
	return org, nil
}

func (s *stubOrgRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Organization, error) {
	if s.err != nil {
		return domain.Organization{}, s.err
	}
	org, ok := s.orgs[id]
	if !ok {
		return domain.Organization{}, repository.ErrNotFound
	}
	return org, nil
}

func (s *stubOrgRepo) List(ctx context.Context) ([]domain.Organization, error) {
	return nil, nil
}

func TestOwnerScope(t *testing.T) {
	known := domain.NewOrganization("Food Bank North", "")
	fallback := domain.NewOrganization("Demo", "")
	repo := &stubOrgRepo{orgs: map[uuid.UUID]domain.Organization{known.ID: known, fallback.ID: fallback}}

	tests := []struct {
		name     string
		header   string
		fallback uuid.UUID
		repoErr  error
		status   int
		owner    uuid.UUID
	}{
		{name: "header", header: known.ID.String(), status: http.StatusOK, owner: known.ID},
		{name: "header beats fallback", header: known.ID.String(), fallback: fallback.ID, status: http.StatusOK, owner: known.ID},
		{name: "fallback", fallback: fallback.ID, status: http.StatusOK, owner: fallback.ID},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "malformed", header: "org-1", status: http.StatusBadRequest},
		{name: "unknown", header: uuid.NewString(), status: http.StatusNotFound},
		{name: "storage down", header: known.ID.String(), repoErr: errors.New("timeout"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.err = tt.repoErr
			var got uuid.UUID
			handler := OwnerScope(repo, tt.fallback, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = OrganizationIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/uploads", nil)
			if tt.header != "" {
				req.Header.Set(OrganizationHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.owner, got)
		})
	}
}

func TestOrganizationIDFromContextTreatsNilAsAbsent(t *testing.T) {
	_, ok := OrganizationIDFromContext(ContextWithOrganizationID(context.Background(), uuid.Nil))
	assert.False(t, ok)

	id := uuid.New()
	got, ok := OrganizationIDFromContext(ContextWithOrganizationID(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
