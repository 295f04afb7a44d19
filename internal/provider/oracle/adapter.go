// Package oracle implements the adapter for Oracle Cloud's public IP ranges.
package oracle

import (
	"context"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
)

// DefaultURL is the OCI public IP ranges document
const DefaultURL = "https://docs.oracle.com/en-us/iaas/tools/public_ip_ranges.json"

var log = logging.Logger("provider/oracle")

// Adapter fetches and decodes public_ip_ranges.json
type Adapter struct {
	client *fetch.Client
	url    string
}

// New creates an Oracle adapter. An empty url selects DefaultURL.
func New(client *fetch.Client, url string) *Adapter {
	if url == "" {
		url = DefaultURL
	}
	return &Adapter{client: client, url: url}
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.Oracle
}

// FetchAndParse downloads and decodes the current publication. CIDRs
// without tags get an empty tag list.
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.OracleIPRanges], error) {
	body, err := a.client.Get(ctx, domain.Oracle, a.url)
	if err != nil {
		return domain.Fetched[domain.OracleIPRanges]{}, err
	}

	data, err := fetch.DecodeJSON[domain.OracleIPRanges](domain.Oracle, body)
	if err != nil {
		return domain.Fetched[domain.OracleIPRanges]{}, err
	}

	cidrs := 0
	for i := range data.Regions {
		for j := range data.Regions[i].CIDRs {
			if data.Regions[i].CIDRs[j].Tags == nil {
				data.Regions[i].CIDRs[j].Tags = []string{}
			}
		}
		cidrs += len(data.Regions[i].CIDRs)
	}

	log.Debugw("decoded ip ranges",
		"execution_id", domain.ExecutionID(ctx),
		"regions", len(data.Regions),
		"cidrs", cidrs)
	return domain.Fetched[domain.OracleIPRanges]{Data: data, Fingerprint: fetch.Fingerprint(body)}, nil
}

// URL returns the upstream location
func (a *Adapter) URL() string {
	return a.url
}
