package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/refresh"
)

const fastlyBody = `{"addresses":["23.235.32.0/20","43.249.72.0/22"],"ipv6_addresses":["2a04:4e40::/32"]}`

func testConfig(t *testing.T, fastlyURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Providers.AWS.Enabled = false
	cfg.Providers.Azure.Enabled = false
	cfg.Providers.Cloudflare.Enabled = false
	cfg.Providers.GCP.Enabled = false
	cfg.Providers.Linode.Enabled = false
	cfg.Providers.Oracle.Enabled = false
	cfg.Providers.DigitalOcean.Enabled = false
	cfg.Providers.Fastly.URL = fastlyURL
	cfg.HTTP.RetryMax = 0
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestController(t *testing.T, cfg *config.Config) *Controller {
	t.Helper()
	ctrl, err := New(context.Background(), cfg, WithoutLoggingSetup())
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.Close(context.Background()) })
	return ctrl
}

func TestNewController(t *testing.T) {
	ctrl := newTestController(t, testConfig(t, "http://127.0.0.1:1/unused"))

	assert.NotNil(t, ctrl.Config())
	providers := ctrl.Providers()
	require.Len(t, providers, 1)
	assert.Equal(t, domain.Fastly, providers[0].Name)
	assert.Equal(t, []string{"http://127.0.0.1:1/unused"}, providers[0].Upstreams)
}

func TestNewControllerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/unused")
	cfg.Refresh.Interval = 0

	_, err := New(context.Background(), cfg, WithoutLoggingSetup())
	assert.Error(t, err)
}

func TestRefreshAndQuery(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fastlyBody))
	}))
	defer upstream.Close()

	ctrl := newTestController(t, testConfig(t, upstream.URL))

	_, err := ctrl.Query(domain.Fastly, nil)
	assert.True(t, errors.Is(err, domain.ErrNotYetAvailable))

	report, err := ctrl.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refresh.StatusPublished, report.Outcomes[domain.Fastly].Status)

	got, err := ctrl.Query(domain.Fastly, url.Values{"ipv6": {"true"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2a04:4e40::/32"}, got)

	status := ctrl.Status()
	require.Len(t, status, 1)
	assert.True(t, status[0].Published)

	// the same dataset again is reported as unchanged
	report, err = ctrl.Refresh(context.Background(), domain.Fastly)
	require.NoError(t, err)
	assert.Equal(t, refresh.StatusUnchanged, report.Outcomes[domain.Fastly].Status)

	_, err = ctrl.Refresh(context.Background(), domain.Azure)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedProvider))
}

func TestRefreshFailureKeepsServing(t *testing.T) {
	var fail atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(fastlyBody))
	}))
	defer upstream.Close()

	ctrl := newTestController(t, testConfig(t, upstream.URL))
	_, err := ctrl.Refresh(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	report, err := ctrl.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, refresh.StatusFailed, report.Outcomes[domain.Fastly].Status)

	rr := httptest.NewRecorder()
	ctrl.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/fastly?ipv4=true", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"success","data":["23.235.32.0/20","43.249.72.0/22"]}`, rr.Body.String())
}

func TestStartAndClose(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fastlyBody))
	}))
	defer upstream.Close()

	ctrl := newTestController(t, testConfig(t, upstream.URL))
	require.NoError(t, ctrl.Start(context.Background()))

	// Start runs the first cycle before returning
	got, err := ctrl.Query(domain.Fastly, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	assert.NoError(t, ctrl.Close(context.Background()))
}
