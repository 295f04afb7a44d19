// Package cloudflare implements the adapter for Cloudflare's plain-text
// IPv4 and IPv6 lists.
package cloudflare

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
)

const (
	// DefaultIPv4URL lists Cloudflare's IPv4 ranges, one per line
	DefaultIPv4URL = "https://www.cloudflare.com/ips-v4/"
	// DefaultIPv6URL lists Cloudflare's IPv6 ranges, one per line
	DefaultIPv6URL = "https://www.cloudflare.com/ips-v6/"
)

var log = logging.Logger("provider/cloudflare")

// Adapter fetches both Cloudflare lists
type Adapter struct {
	client  *fetch.Client
	ipv4URL string
	ipv6URL string
}

// New creates a Cloudflare adapter. Empty URLs select the defaults.
func New(client *fetch.Client, ipv4URL, ipv6URL string) *Adapter {
	if ipv4URL == "" {
		ipv4URL = DefaultIPv4URL
	}
	if ipv6URL == "" {
		ipv6URL = DefaultIPv6URL
	}
	return &Adapter{client: client, ipv4URL: ipv4URL, ipv6URL: ipv6URL}
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.Cloudflare
}

// FetchAndParse downloads both lists. The dataset is only produced when both
// downloads succeed.
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.CloudflareIPRanges], error) {
	v4body, err := a.client.Get(ctx, domain.Cloudflare, a.ipv4URL)
	if err != nil {
		return domain.Fetched[domain.CloudflareIPRanges]{}, err
	}
	v6body, err := a.client.Get(ctx, domain.Cloudflare, a.ipv6URL)
	if err != nil {
		return domain.Fetched[domain.CloudflareIPRanges]{}, err
	}

	v4, err := parseList(v4body)
	if err != nil {
		return domain.Fetched[domain.CloudflareIPRanges]{}, domain.NewParseError(domain.Cloudflare, "parse ipv4 list", err)
	}
	v6, err := parseList(v6body)
	if err != nil {
		return domain.Fetched[domain.CloudflareIPRanges]{}, domain.NewParseError(domain.Cloudflare, "parse ipv6 list", err)
	}

	log.Debugw("decoded ip lists",
		"execution_id", domain.ExecutionID(ctx),
		"ipv4", len(v4),
		"ipv6", len(v6))
	return domain.Fetched[domain.CloudflareIPRanges]{
		Data:        &domain.CloudflareIPRanges{IPv4CIDRs: v4, IPv6CIDRs: v6},
		Fingerprint: fetch.Fingerprint(v4body, v6body),
	}, nil
}

// parseList returns the trimmed, non-empty lines of body. Every line must
// be a CIDR prefix.
func parseList(body []byte) ([]string, error) {
	cidrs := []string{}
	sc := bufio.NewScanner(bytes.NewReader(body))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := netip.ParsePrefix(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		cidrs = append(cidrs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cidrs, nil
}

// URLs returns the IPv4 and IPv6 list locations
func (a *Adapter) URLs() []string {
	return []string{a.ipv4URL, a.ipv6URL}
}
