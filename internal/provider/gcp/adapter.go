// Package gcp implements the adapter for Google Cloud's cloud.json
// publication.
package gcp

import (
	"context"
	"errors"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
)

// DefaultURL is the Google Cloud external IP ranges document
const DefaultURL = "https://www.gstatic.com/ipranges/cloud.json"

var log = logging.Logger("provider/gcp")

// Adapter fetches and decodes cloud.json
type Adapter struct {
	client *fetch.Client
	url    string
}

// New creates a GCP adapter. An empty url selects DefaultURL.
func New(client *fetch.Client, url string) *Adapter {
	if url == "" {
		url = DefaultURL
	}
	return &Adapter{client: client, url: url}
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.GCP
}

// FetchAndParse downloads and decodes the current publication. Entries
// carrying neither an IPv4 nor an IPv6 prefix are dropped.
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.GCPIPRanges], error) {
	body, err := a.client.Get(ctx, domain.GCP, a.url)
	if err != nil {
		return domain.Fetched[domain.GCPIPRanges]{}, err
	}

	data, err := fetch.DecodeJSON[domain.GCPIPRanges](domain.GCP, body)
	if err != nil {
		return domain.Fetched[domain.GCPIPRanges]{}, err
	}

	kept := data.Prefixes[:0]
	for _, p := range data.Prefixes {
		if p.Prefix() != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 && len(data.Prefixes) > 0 {
		return domain.Fetched[domain.GCPIPRanges]{}, domain.NewParseError(domain.GCP, "decode prefixes", errors.New("no entry carries a prefix"))
	}
	data.Prefixes = kept

	log.Debugw("decoded ip ranges",
		"execution_id", domain.ExecutionID(ctx),
		"sync_token", data.SyncToken,
		"prefixes", len(data.Prefixes))
	return domain.Fetched[domain.GCPIPRanges]{Data: data, Fingerprint: fetch.Fingerprint(body)}, nil
}

// URL returns the upstream location
func (a *Adapter) URL() string {
	return a.url
}
