// Package fastly implements the adapter for Fastly's public IP list.
package fastly

import (
	"context"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
)

// DefaultURL is Fastly's public IP list endpoint
const DefaultURL = "https://api.fastly.com/public-ip-list"

var log = logging.Logger("provider/fastly")

// Adapter fetches and decodes the public IP list
type Adapter struct {
	client *fetch.Client
	url    string
}

// New creates a Fastly adapter. An empty url selects DefaultURL.
func New(client *fetch.Client, url string) *Adapter {
	if url == "" {
		url = DefaultURL
	}
	return &Adapter{client: client, url: url}
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.Fastly
}

// FetchAndParse downloads and decodes the current list
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.FastlyIPRanges], error) {
	body, err := a.client.Get(ctx, domain.Fastly, a.url)
	if err != nil {
		return domain.Fetched[domain.FastlyIPRanges]{}, err
	}

	data, err := fetch.DecodeJSON[domain.FastlyIPRanges](domain.Fastly, body)
	if err != nil {
		return domain.Fetched[domain.FastlyIPRanges]{}, err
	}

	log.Debugw("decoded public ip list",
		"execution_id", domain.ExecutionID(ctx),
		"ipv4", len(data.IPv4Addresses),
		"ipv6", len(data.IPv6Addresses))
	return domain.Fetched[domain.FastlyIPRanges]{Data: data, Fingerprint: fetch.Fingerprint(body)}, nil
}

// URL returns the upstream location
func (a *Adapter) URL() string {
	return a.url
}
