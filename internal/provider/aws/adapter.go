// Package aws implements the adapter for the AWS ip-ranges.json publication.
package aws

import (
	"context"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
)

// DefaultURL is the public AWS IP ranges document
const DefaultURL = "https://ip-ranges.amazonaws.com/ip-ranges.json"

var log = logging.Logger("provider/aws")

// Adapter fetches and decodes ip-ranges.json
type Adapter struct {
	client *fetch.Client
	url    string
}

// New creates an AWS adapter. An empty url selects DefaultURL.
func New(client *fetch.Client, url string) *Adapter {
	if url == "" {
		url = DefaultURL
	}
	return &Adapter{client: client, url: url}
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.AWS
}

// FetchAndParse downloads and decodes the current publication
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.AWSIPRanges], error) {
	body, err := a.client.Get(ctx, domain.AWS, a.url)
	if err != nil {
		return domain.Fetched[domain.AWSIPRanges]{}, err
	}

	data, err := fetch.DecodeJSON[domain.AWSIPRanges](domain.AWS, body)
	if err != nil {
		return domain.Fetched[domain.AWSIPRanges]{}, err
	}

	log.Debugw("decoded ip ranges",
		"execution_id", domain.ExecutionID(ctx),
		"sync_token", data.SyncToken,
		"ipv4", len(data.Prefixes),
		"ipv6", len(data.IPv6Prefixes))
	return domain.Fetched[domain.AWSIPRanges]{Data: data, Fingerprint: fetch.Fingerprint(body)}, nil
}

// URL returns the upstream location
func (a *Adapter) URL() string {
	return a.url
}
