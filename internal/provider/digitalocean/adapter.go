// Package digitalocean implements the adapter for DigitalOcean's geofeed.
package digitalocean

import (
	"context"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
	"github.com/ipranges/internal/provider/geofeed"
)

// DefaultURL is DigitalOcean's geofeed
const DefaultURL = "https://digitalocean.com/geo/google.csv"

var log = logging.Logger("provider/digitalocean")

// Adapter fetches and decodes the geofeed
type Adapter struct {
	client *fetch.Client
	url    string
}

// New creates a DigitalOcean adapter. An empty url selects DefaultURL.
func New(client *fetch.Client, url string) *Adapter {
	if url == "" {
		url = DefaultURL
	}
	return &Adapter{client: client, url: url}
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.DigitalOcean
}

// FetchAndParse downloads and decodes the current geofeed
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.DigitalOceanIPRanges], error) {
	body, err := a.client.Get(ctx, domain.DigitalOcean, a.url)
	if err != nil {
		return domain.Fetched[domain.DigitalOceanIPRanges]{}, err
	}

	ranges, err := geofeed.Parse(body)
	if err != nil {
		return domain.Fetched[domain.DigitalOceanIPRanges]{}, domain.NewParseError(domain.DigitalOcean, "parse geofeed", err)
	}

	log.Debugw("decoded geofeed", "execution_id", domain.ExecutionID(ctx), "ranges", len(ranges))
	return domain.Fetched[domain.DigitalOceanIPRanges]{
		Data:        &domain.DigitalOceanIPRanges{Ranges: ranges},
		Fingerprint: fetch.Fingerprint(body),
	}, nil
}

// URL returns the upstream location
func (a *Adapter) URL() string {
	return a.url
}
