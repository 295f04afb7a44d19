package cloudflare

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
)

func newServer(t *testing.T, v4, v6 string, v6Status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ips-v4/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(v4))
	})
	mux.HandleFunc("/ips-v6/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(v6Status)
		_, _ = w.Write([]byte(v6))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func client() *fetch.Client {
	return fetch.NewClient(config.HTTPConfig{Timeout: time.Second})
}

func TestFetchAndParse(t *testing.T) {
	srv := newServer(t, "173.245.48.0/20\n103.21.244.0/22\n\n", "2400:cb00::/32\r\n2606:4700::/32", http.StatusOK)

	got, err := New(client(), srv.URL+"/ips-v4/", srv.URL+"/ips-v6/").FetchAndParse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"173.245.48.0/20", "103.21.244.0/22"}, got.Data.IPv4CIDRs)
	assert.Equal(t, []string{"2400:cb00::/32", "2606:4700::/32"}, got.Data.IPv6CIDRs)
	assert.Equal(t, fetch.Fingerprint([]byte("173.245.48.0/20\n103.21.244.0/22\n\n"), []byte("2400:cb00::/32\r\n2606:4700::/32")), got.Fingerprint)
}

func TestFetchAndParseNeedsBothLists(t *testing.T) {
	srv := newServer(t, "173.245.48.0/20\n", "", http.StatusForbidden)

	_, err := New(client(), srv.URL+"/ips-v4/", srv.URL+"/ips-v6/").FetchAndParse(context.Background())
	require.ErrorIs(t, err, domain.ErrNetwork)
}

func TestFetchAndParseRejectsGarbage(t *testing.T) {
	srv := newServer(t, "<!DOCTYPE html>\n<title>Just a moment...</title>", "2400:cb00::/32", http.StatusOK)

	_, err := New(client(), srv.URL+"/ips-v4/", srv.URL+"/ips-v6/").FetchAndParse(context.Background())
	require.ErrorIs(t, err, domain.ErrParse)
}
