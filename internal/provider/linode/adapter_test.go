package linode

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
		_, _ = w.Write([]byte("# Linode geofeed\n# updated daily\n# prefix,country,region,city\n" +
			"172.104.0.0/15,US,US-NJ,Cedar Knolls,\n" +
			"2a01:7e00::/32,GB,GB-LND,London,\n"))
	}))
	defer srv.Close()

	client := fetch.NewClient(config.HTTPConfig{Timeout: time.Second})
	a := New(client, srv.URL)
	assert.Equal(t, domain.Linode, a.Name())

	got, err := a.FetchAndParse(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Data.Ranges, 2)
	assert.Equal(t, "US-NJ", got.Data.Ranges[0].Region)
	assert.Equal(t, "2a01:7e00::/32", got.Data.Ranges[1].IPPrefix)
}

func TestFetchAndParseRejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>\n<body>502 Bad Gateway</body>\n</html>"))
	}))
	defer srv.Close()

	client := fetch.NewClient(config.HTTPConfig{Timeout: time.Second})
	_, err := New(client, srv.URL).FetchAndParse(context.Background())
	require.ErrorIs(t, err, domain.ErrParse)
}
