package aws

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

const sample = `{
  "syncToken": "1700000000",
  "createDate": "2023-11-14-22-13-20",
  "prefixes": [
    {"ip_prefix": "3.5.140.0/22", "region": "ap-northeast-2", "service": "AMAZON", "network_border_group": "ap-northeast-2"},
    {"ip_prefix": "52.94.76.0/22", "region": "us-west-2", "service": "EC2", "network_border_group": "us-west-2"}
  ],
  "ipv6_prefixes": [
    {"ipv6_prefix": "2600:1f14::/35", "region": "us-west-2", "service": "EC2", "network_border_group": "us-west-2"}
  ]
}`

func testClient() *fetch.Client {
	return fetch.NewClient(config.HTTPConfig{Timeout: time.Second, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
}

func TestFetchAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	a := New(testClient(), srv.URL)
	assert.Equal(t, domain.AWS, a.Name())

	got, err := a.FetchAndParse(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got.Data)
	assert.Equal(t, fetch.Fingerprint([]byte(sample)), got.Fingerprint)
	require.Len(t, got.Data.Prefixes, 2)
	assert.Equal(t, "EC2", got.Data.Prefixes[1].Service)
	assert.Equal(t, "us-west-2", got.Data.Prefixes[1].NetworkBorderGroup)
	require.Len(t, got.Data.IPv6Prefixes, 1)
	assert.Equal(t, "2600:1f14::/35", got.Data.IPv6Prefixes[0].IPv6Prefix)
}

func TestFetchAndParseErrors(t *testing.T) {
	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer malformed.Close()

	_, err := New(testClient(), malformed.URL).FetchAndParse(context.Background())
	require.ErrorIs(t, err, domain.ErrParse)

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	_, err = New(testClient(), missing.URL).FetchAndParse(context.Background())
	require.ErrorIs(t, err, domain.ErrNetwork)
}

func TestDefaultURL(t *testing.T) {
	assert.Equal(t, DefaultURL, New(testClient(), "").url)
}
