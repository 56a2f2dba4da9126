package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/meteo-telemetry-service/internal/adapter/http"
	"github.com/couchcryptid/meteo-telemetry-service/internal/allowlist"
	"github.com/couchcryptid/meteo-telemetry-service/internal/display"
	"github.com/couchcryptid/meteo-telemetry-service/internal/domain"
	"github.com/couchcryptid/meteo-telemetry-service/internal/observability"
	"github.com/couchcryptid/meteo-telemetry-service/internal/settings"
	"github.com/couchcryptid/meteo-telemetry-service/internal/store"
	"github.com/couchcryptid/meteo-telemetry-service/internal/telemetry"
	"github.com/couchcryptid/meteo-telemetry-service/internal/units"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	srv *httpadapter.Server
	mem *store.Memory
}

func newEnv(t *testing.T, opts map[string]string, clientIPHeader string) testEnv {
	t.Helper()
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClock()

	mem := store.NewMemory()
	cached := store.NewCached(mem, store.DefaultLatestTTL, clock, metrics, logger)
	formatter, err := display.New()
	require.NoError(t, err)
	svc := telemetry.NewService(settings.NewMemory(opts), allowlist.NewMatcher(nil, logger), cached, formatter, clock, metrics, logger)

	return testEnv{
		srv: httpadapter.NewServer(":0", svc, &mockReadiness{}, clientIPHeader, logger),
		mem: mem,
	}
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", nil, &mockReadiness{err: readyErr}, "", slog.Default())
}

func serve(srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeMap(t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeMap(t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("store not reachable")), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "store not reachable", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestIngest_GetQuery(t *testing.T) {
	env := newEnv(t, nil, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingest?T=21,5&H=60&FOO=bar", nil)

	rec := serve(env.srv, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeMap(t, rec)
	assert.Equal(t, "stored", body["status"])
	assert.InDelta(t, 1, body["id"], 0)

	r, err := env.mem.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Value("21.5"), r.Fields["T"])
	assert.NotContains(t, r.Fields, "FOO")
}

func TestIngest_PostFormQueryWins(t *testing.T) {
	env := newEnv(t, nil, "")
	form := url.Values{"T": {"10"}, "H": {"55"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest?T=12", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := serve(env.srv, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r, err := env.mem.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Value("12"), r.Fields["T"])
	assert.Equal(t, domain.Value("55"), r.Fields["H"])
}

func TestIngest_PostJSON(t *testing.T) {
	env := newEnv(t, map[string]string{settings.KeySecretRequired: "1", settings.KeySecret: "abc"}, "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest",
		strings.NewReader(`{"T": 21.5, "SW": "roof", "PASS": "abc", "nested": {"x": 1}}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(env.srv, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r, err := env.mem.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Value("21.5"), r.Fields["T"])
	assert.Equal(t, "roof", r.StationID)
	assert.NotContains(t, r.Fields, "PASS")
}

func TestIngest_InvalidJSON(t *testing.T) {
	env := newEnv(t, nil, "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(`{"T":`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(env.srv, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeMap(t, rec)["error"])
}

func TestIngest_Unauthorized(t *testing.T) {
	env := newEnv(t, map[string]string{settings.KeySecretRequired: "1", settings.KeySecret: "abc"}, "")

	rec := serve(env.srv, httptest.NewRequest(http.MethodGet, "/api/v1/ingest?T=20&PASS=ABC", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "unauthorized", body["error"])
	assert.NotEmpty(t, body["message"])
	assert.Zero(t, env.mem.Len())
}

func TestIngest_OriginDenied(t *testing.T) {
	env := newEnv(t, map[string]string{
		settings.KeyIPAllowlistEnabled: "1",
		settings.KeyIPAllowlist:        "192.0.2.0/24",
	}, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingest?T=20", nil)
	req.RemoteAddr = "203.0.113.9:40000"

	rec := serve(env.srv, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "origin_denied", decodeMap(t, rec)["error"])
	assert.Zero(t, env.mem.Len())
}

func TestIngest_ClientIPHeader(t *testing.T) {
	opts := map[string]string{
		settings.KeyIPAllowlistEnabled: "1",
		settings.KeyIPAllowlist:        "192.0.2.0/24",
	}
	env := newEnv(t, opts, "X-Forwarded-For")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingest?T=20", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("X-Forwarded-For", "192.0.2.44, 10.0.0.1")
	rec := serve(env.srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ingest?T=20", nil)
	req.Header.Set("X-Forwarded-For", "garbage")
	rec = serve(env.srv, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid_address", decodeMap(t, rec)["error"])
}

func TestLatest_NotFound(t *testing.T) {
	env := newEnv(t, nil, "")
	rec := serve(env.srv, httptest.NewRequest(http.MethodGet, "/api/v1/latest", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeMap(t, rec)["error"])
}

func TestLatest_ConvertsWindToMPS(t *testing.T) {
	env := newEnv(t, map[string]string{settings.KeyWindUnit: "kmh"}, "")
	require.Equal(t, http.StatusOK, serve(env.srv, httptest.NewRequest(http.MethodGet, "/api/v1/ingest?W=10&G=15&T=20", nil)).Code)

	rec := serve(env.srv, httptest.NewRequest(http.MethodGet, "/api/v1/latest?fields=W,G&w_unit=mps", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Latest        map[string]float64 `json:"latest"`
		AvailableKeys []string           `json:"available_keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.InDelta(t, 2.78, body.Latest["W"], 0.005)
	assert.InDelta(t, 4.17, body.Latest["G"], 0.005)
	assert.Len(t, body.Latest, 2)
	assert.Equal(t, []string{"G", "T", "U", "W"}, body.AvailableKeys)
}

func TestDisplay_Table(t *testing.T) {
	env := newEnv(t, nil, "")
	require.Equal(t, http.StatusOK, serve(env.srv, httptest.NewRequest(http.MethodGet, "/api/v1/ingest?T=21.5&S=180", nil)).Code)

	rec := serve(env.srv, httptest.NewRequest(http.MethodGet, "/api/v1/display?fields=T,S&style=table&decimals=1&t_unit=F&dir=compass", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "70.7")
	assert.Contains(t, rec.Body.String(), "<td>S</td>")
}

func TestDisplay_PlaceholderWhenEmpty(t *testing.T) {
	env := newEnv(t, nil, "")
	rec := serve(env.srv, httptest.NewRequest(http.MethodGet, "/api/v1/display?style=single&placeholder=--", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "--", rec.Body.String())
}

func TestDisplay_BadParams(t *testing.T) {
	env := newEnv(t, nil, "")
	for _, q := range []string{"style=marquee", "decimals=x", "decimals=9", "dir=sideways"} {
		t.Run(q, func(t *testing.T) {
			rec := serve(env.srv, httptest.NewRequest(http.MethodGet, "/api/v1/display?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// failingService returns a store failure for every call.
type failingService struct{}

func (failingService) Ingest(context.Context, telemetry.Request) (telemetry.Result, error) {
	return telemetry.Result{}, domain.StoreError("insert reading", fmt.Errorf("disk full"))
}

func (failingService) Latest(context.Context, []string, units.Set) (store.Snapshot, error) {
	return store.Snapshot{}, fmt.Errorf("unexpected")
}

func (failingService) Render(context.Context, display.Options) (display.Output, error) {
	return display.Output{}, fmt.Errorf("unexpected")
}

func TestStoreFailureIs500(t *testing.T) {
	srv := httpadapter.NewServer(":0", failingService{}, &mockReadiness{}, "", discardLogger())

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/ingest?T=1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "store_failure", decodeMap(t, rec)["error"])

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/latest", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
