package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)

	timer.ObserveDuration(HTTPRequestDuration.WithLabelValues("GET", "/health"))
}

func TestHandlerExposesPortalMetrics(t *testing.T) {
	ExperienceGrantedTotal.WithLabelValues("attendance").Add(10)
	HTTPRequestDuration.WithLabelValues("GET", "/metrics").Observe(0.01)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `pdportal_experience_granted_total{reason="attendance"}`)
	assert.Contains(t, body, "pdportal_http_request_duration_seconds")
}
