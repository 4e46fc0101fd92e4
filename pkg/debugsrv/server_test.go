package debugsrv

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/config"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/model"
	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/netw"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type fakeLister struct{}

func (fakeLister) Interfaces() ([]netw.Device, error) { return nil, nil }

func emptyManager() *netw.Manager {
	return netw.NewManager(testLogger(), nil, model.RoleSink, config.Load(), fakeLister{}, nil, nil)
}

func TestLake_Debugsrv_ValidateRequiresManager(t *testing.T) {
	t.Parallel()
	cfg := Config{Logger: testLogger()}
	require.Error(t, cfg.Validate())
}

func TestLake_Debugsrv_HealthzAlwaysServed(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Logger: testLogger(), Manager: emptyManager()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLake_Debugsrv_DebugRoutesOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Logger: testLogger(), Manager: emptyManager(), Enabled: false})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/adapters", nil)
	s.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLake_Debugsrv_DebugRoutesServedWhenEnabled(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Logger: testLogger(), Manager: emptyManager(), Enabled: true})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/adapters", nil)
	s.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestLake_Debugsrv_MetricsEndpointServed(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Logger: testLogger(), Manager: emptyManager()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
