package digitalocean

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

func TestFetchAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("104.131.0.0/18,US,US-NY,New York,10011\n" +
			"2604:a880::/48,US,US-NY,New York,10011\n" +
			"178.62.0.0/18,GB,GB-SLG,London,EC1V\n"))
	}))
	defer srv.Close()

	client := fetch.NewClient(config.HTTPConfig{Timeout: time.Second})
	a := New(client, srv.URL)
	assert.Equal(t, domain.DigitalOcean, a.Name())

	got, err := a.FetchAndParse(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Data.Ranges, 3)
	assert.Equal(t, domain.GeoRange{IPPrefix: "178.62.0.0/18", Alpha2Code: "GB", Region: "GB-SLG", City: "London"}, got.Data.Ranges[2])
}

func TestFetchAndParseUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := fetch.NewClient(config.HTTPConfig{Timeout: time.Second})
	_, err := New(client, srv.URL).FetchAndParse(context.Background())
	require.ErrorIs(t, err, domain.ErrNetwork)
}
