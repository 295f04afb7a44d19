package oracle

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
		_, _ = w.Write([]byte(`{
			"last_updated_timestamp": "2024-01-02T03:04:05.678Z",
			"regions": [
				{"region": "us-phoenix-1", "cidrs": [
					{"cidr": "129.146.0.0/21", "tags": ["OCI"]},
					{"cidr": "134.70.8.0/21"}
				]},
				{"region": "eu-frankfurt-1", "cidrs": [
					{"cidr": "130.61.0.0/16", "tags": ["OCI", "OSN"]}
				]}
			]
		}`))
	}))
	defer srv.Close()

	client := fetch.NewClient(config.HTTPConfig{Timeout: time.Second})
	got, err := New(client, srv.URL).FetchAndParse(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Data.Regions, 2)

	phoenix := got.Data.Regions[0]
	assert.Equal(t, "us-phoenix-1", phoenix.Region)
	assert.Equal(t, []string{"OCI"}, phoenix.CIDRs[0].Tags)
	assert.NotNil(t, phoenix.CIDRs[1].Tags)
	assert.Empty(t, phoenix.CIDRs[1].Tags)
}

func TestFetchAndParseMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"regions": [{"region": 1}]}`))
	}))
	defer srv.Close()

	client := fetch.NewClient(config.HTTPConfig{Timeout: time.Second})
	_, err := New(client, srv.URL).FetchAndParse(context.Background())
	require.ErrorIs(t, err, domain.ErrParse)
}
