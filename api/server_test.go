package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelbelss/heartbeat-avs/monitor"
)

type stubProvider struct {
	report *monitor.StatusReport
	err    error
	alerts []string
}

func (s *stubProvider) Report(_ context.Context) (*monitor.StatusReport, error) {
	return s.report, s.err
}

func (s *stubProvider) RecentAlerts() []string {
	return s.alerts
}

func testReport() *monitor.StatusReport {
	return &monitor.StatusReport{
		ChainTime:     1700000000,
		FreshSnapshot: true,
		Operators: []monitor.OperatorReport{
			{
				Operator:       "0x1111111111111111111111111111111111111111",
				Status:         "healthy",
				EverProved:     true,
				ProofAge:       12,
				LastCheckedAge: 3,
			},
			{
				Operator:       "0x2222222222222222222222222222222222222222",
				Status:         "overdue",
				EverProved:     true,
				ProofAge:       90,
				LastCheckedAge: 3,
			},
		},
	}
}

func doRequest(t *testing.T, provider *stubProvider, path string) *httptest.ResponseRecorder {
	srv := NewServer(provider, ":0")
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec
}

func TestGetReport(t *testing.T) {
	rec := doRequest(t, &stubProvider{report: testReport()}, "/api/v1/operators")
	require.Equal(t, http.StatusOK, rec.Code)

	var got monitor.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1700000000), got.ChainTime)
	require.Len(t, got.Operators, 2)
	assert.Equal(t, "healthy", got.Operators[0].Status)
}

func TestGetReport_ProviderError(t *testing.T) {
	rec := doRequest(t, &stubProvider{err: errors.New("monitor not running")}, "/api/v1/operators")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "monitor not running")
}

func TestGetOperator(t *testing.T) {
	provider := &stubProvider{report: testReport()}

	// Address matching ignores case.
	path := "/api/v1/operators/" + strings.ToLower("0x2222222222222222222222222222222222222222")
	rec := doRequest(t, provider, path)
	require.Equal(t, http.StatusOK, rec.Code)
	var got monitor.OperatorReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "overdue", got.Status)

	rec = doRequest(t, provider, "/api/v1/operators/0x9999999999999999999999999999999999999999")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "operator not observed")
}

func TestGetAlerts(t *testing.T) {
	provider := &stubProvider{alerts: []string{"first alert", "second alert"}}
	rec := doRequest(t, provider, "/api/v1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Alerts []string `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, provider.alerts, got.Alerts)
}

func TestGetHealth(t *testing.T) {
	rec := doRequest(t, &stubProvider{}, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
