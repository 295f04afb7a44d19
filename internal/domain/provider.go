package domain

import (
	"fmt"
	"strings"
)

// ProviderName is the stable, case-sensitive cache key of a provider.
type ProviderName string

const (
	AWS                ProviderName = "aws"
	Azure              ProviderName = "azure"
	Cloudflare         ProviderName = "cloudflare"
	Fastly             ProviderName = "fastly"
	GCP                ProviderName = "gcp"
	Linode             ProviderName = "linode"
	Oracle             ProviderName = "oracle"
	DigitalOcean       ProviderName = "digitalocean"
	AWSPrefixListsName ProviderName = "aws-prefix-lists"
)

// AllProviders lists every provider known to the service, in display order.
func AllProviders() []ProviderName {
	return []ProviderName{AWS, Azure, Cloudflare, Fastly, GCP, Linode, Oracle, DigitalOcean, AWSPrefixListsName}
}

func (p ProviderName) String() string {
	return string(p)
}

// DisplayName returns the human readable provider name used in messages.
func (p ProviderName) DisplayName() string {
	switch p {
	case AWS:
		return "AWS"
	case Azure:
		return "Azure"
	case Cloudflare:
		return "Cloudflare"
	case Fastly:
		return "Fastly"
	case GCP:
		return "GCP"
	case Linode:
		return "Linode"
	case Oracle:
		return "Oracle"
	case DigitalOcean:
		return "DigitalOcean"
	case AWSPrefixListsName:
		return "AWS prefix list"
	default:
		return string(p)
	}
}

// ParseProviderName resolves a user supplied name, ignoring case.
func ParseProviderName(s string) (ProviderName, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range AllProviders() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
}
