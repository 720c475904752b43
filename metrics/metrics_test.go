package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordScan(t *testing.T) {
	beforeReward := testutil.ToFloat64(scans.WithLabelValues(ScanReward))
	beforeStamps := testutil.ToFloat64(stampsAdded)
	beforeBirthday := testutil.ToFloat64(birthdayBonuses)

	RecordScan(ScanReward, 2, true)
	RecordScan(ScanError, 5, true)

	assert.Equal(t, beforeReward+1, testutil.ToFloat64(scans.WithLabelValues(ScanReward)))
	assert.Equal(t, beforeStamps+2, testutil.ToFloat64(stampsAdded))
	assert.Equal(t, beforeBirthday+1, testutil.ToFloat64(birthdayBonuses))
}

func TestRecordRedemptionAndSweep(t *testing.T) {
	beforeErr := testutil.ToFloat64(redemptions.WithLabelValues("redeem", "error"))
	RecordRedemption("redeem", errors.New("not enough stamps"))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(redemptions.WithLabelValues("redeem", "error")))

	beforeRuns := testutil.ToFloat64(sweepRuns.WithLabelValues("true"))
	beforeReminders := testutil.ToFloat64(sweepReminders)
	RecordBirthdaySweep(3, 40*time.Millisecond, nil)
	assert.Equal(t, beforeRuns+1, testutil.ToFloat64(sweepRuns.WithLabelValues("true")))
	assert.Equal(t, beforeReminders+3, testutil.ToFloat64(sweepReminders))
}

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler())

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/customers/{id}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/customers/{id}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stampcard_http_requests_total")
}
