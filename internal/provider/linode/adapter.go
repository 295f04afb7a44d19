// Package linode implements the adapter for Linode's geofeed.
package linode

import (
	"context"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
	"github.com/ipranges/internal/provider/geofeed"
)

// DefaultURL is Linode's geofeed
const DefaultURL = "https://geoip.linode.com/"

var log = logging.Logger("provider/linode")

// Adapter fetches and decodes the geofeed
type Adapter struct {
	client *fetch.Client
	url    string
}

// New creates a Linode adapter. An empty url selects DefaultURL.
func New(client *fetch.Client, url string) *Adapter {
	if url == "" {
		url = DefaultURL
	}
	return &Adapter{client: client, url: url}
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.Linode
}

// FetchAndParse downloads and decodes the current geofeed
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.LinodeIPRanges], error) {
	body, err := a.client.Get(ctx, domain.Linode, a.url)
	if err != nil {
		return domain.Fetched[domain.LinodeIPRanges]{}, err
	}

	ranges, err := geofeed.Parse(body)
	if err != nil {
		return domain.Fetched[domain.LinodeIPRanges]{}, domain.NewParseError(domain.Linode, "parse geofeed", err)
	}

	log.Debugw("decoded geofeed", "execution_id", domain.ExecutionID(ctx), "ranges", len(ranges))
	return domain.Fetched[domain.LinodeIPRanges]{
		Data:        &domain.LinodeIPRanges{Ranges: ranges},
		Fingerprint: fetch.Fingerprint(body),
	}, nil
}

// URL returns the upstream location
func (a *Adapter) URL() string {
	return a.url
}
