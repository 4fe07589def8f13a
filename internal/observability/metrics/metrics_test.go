package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadFinishedCountsRowsAndOutcome(t *testing.T) {
	m := New()

	m.UploadFinished("completed", 3, 1, 20*time.Millisecond)
	m.UploadFinished("duplicate", 0, 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rowsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rowsFailed))
}

func TestHandlerExposesRegisteredSeries(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodPost, "/api/uploads", http.StatusOK, 5*time.Millisecond)
	m.StaleUploadsReconciled(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `impactdash_http_requests_total{method="POST",route="/api/uploads",status="200"} 1`))
	assert.True(t, strings.Contains(body, "impactdash_ingestion_stale_uploads_reconciled_total 2"))
}
