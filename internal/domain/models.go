// Package domain contains the core domain models for the IP range
// aggregator. Each provider publishes its ranges in its own shape; the
// models below mirror those publications closely so that query filters can
// match on every attribute the provider exposes.
package domain

import (
	"strings"
)

// IsIPv4 reports whether a CIDR prefix is an IPv4 prefix. Providers publish
// both families in string form, and any prefix containing a dot is IPv4.
func IsIPv4(prefix string) bool {
	return strings.Contains(prefix, ".")
}

// ===============================================
// AWS
// ===============================================

// AWSIPRanges is the decoded ip-ranges.json publication
type AWSIPRanges struct {
	SyncToken    string          `json:"syncToken"`
	CreateDate   string          `json:"createDate"`
	Prefixes     []AWSPrefix     `json:"prefixes"`
	IPv6Prefixes []AWSIPv6Prefix `json:"ipv6_prefixes"`
}

// AWSPrefix is one IPv4 entry of ip-ranges.json
type AWSPrefix struct {
	IPPrefix           string `json:"ip_prefix"`
	Region             string `json:"region"`
	Service            string `json:"service"`
	NetworkBorderGroup string `json:"network_border_group"`
}

// AWSIPv6Prefix is one IPv6 entry of ip-ranges.json
type AWSIPv6Prefix struct {
	IPv6Prefix         string `json:"ipv6_prefix"`
	Region             string `json:"region"`
	Service            string `json:"service"`
	NetworkBorderGroup string `json:"network_border_group"`
}

// AWSPrefixLists holds the AWS-managed prefix lists visible to the
// configured account, resolved through the EC2 API.
type AWSPrefixLists struct {
	Region string          `json:"region"`
	Lists  []AWSPrefixList `json:"lists"`
}

// AWSPrefixList is a single managed prefix list and its entries
type AWSPrefixList struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	AddressFamily string   `json:"address_family"`
	CIDRs         []string `json:"cidrs"`
}

// ===============================================
// Azure
// ===============================================

// AzureServiceTags is the decoded ServiceTags_Public JSON document
type AzureServiceTags struct {
	ChangeNumber int          `json:"changeNumber"`
	Cloud        string       `json:"cloud"`
	Values       []AzureValue `json:"values"`
}

// AzureValue is one service tag
type AzureValue struct {
	Name       string          `json:"name"`
	ID         string          `json:"id"`
	Properties AzureProperties `json:"properties"`
}

// AzureProperties carries the ranges of a service tag
type AzureProperties struct {
	ChangeNumber    int      `json:"changeNumber"`
	Region          string   `json:"region"`
	RegionID        int      `json:"regionId"`
	Platform        string   `json:"platform"`
	SystemService   string   `json:"systemService"`
	AddressPrefixes []string `json:"addressPrefixes"`
}

// ===============================================
// Cloudflare / Fastly
// ===============================================

// CloudflareIPRanges holds the two plain-text Cloudflare lists
type CloudflareIPRanges struct {
	IPv4CIDRs []string `json:"ipv4_cidrs"`
	IPv6CIDRs []string `json:"ipv6_cidrs"`
}

// FastlyIPRanges is the decoded public-ip-list document
type FastlyIPRanges struct {
	IPv4Addresses []string `json:"addresses"`
	IPv6Addresses []string `json:"ipv6_addresses"`
}

// ===============================================
// GCP
// ===============================================

// GCPIPRanges is the decoded cloud.json publication
type GCPIPRanges struct {
	SyncToken    string      `json:"syncToken"`
	CreationTime string      `json:"creationTime"`
	Prefixes     []GCPPrefix `json:"prefixes"`
}

// GCPPrefix carries exactly one of IPv4Prefix or IPv6Prefix
type GCPPrefix struct {
	IPv4Prefix string `json:"ipv4Prefix,omitempty"`
	IPv6Prefix string `json:"ipv6Prefix,omitempty"`
	Service    string `json:"service"`
	Scope      string `json:"scope"`
}

// Prefix returns whichever prefix family is set
func (p GCPPrefix) Prefix() string {
	if p.IPv4Prefix != "" {
		return p.IPv4Prefix
	}
	return p.IPv6Prefix
}

// ===============================================
// Oracle
// ===============================================

// OracleIPRanges is the decoded public_ip_ranges.json publication
type OracleIPRanges struct {
	LastUpdatedTimestamp string         `json:"last_updated_timestamp"`
	Regions              []OracleRegion `json:"regions"`
}

// OracleRegion groups CIDRs per region
type OracleRegion struct {
	Region string       `json:"region"`
	CIDRs  []OracleCIDR `json:"cidrs"`
}

// OracleCIDR is a tagged Oracle CIDR. Tags may be absent upstream.
type OracleCIDR struct {
	CIDR string   `json:"cidr"`
	Tags []string `json:"tags"`
}

// ===============================================
// Geofeed providers (Linode, DigitalOcean)
// ===============================================

// GeoRange is one row of an RFC 8805 style geofeed CSV
type GeoRange struct {
	IPPrefix   string `json:"ip_prefix"`
	Alpha2Code string `json:"alpha2code"`
	Region     string `json:"region"`
	City       string `json:"city,omitempty"`
}

// LinodeIPRanges is the decoded Linode geofeed
type LinodeIPRanges struct {
	Ranges []GeoRange `json:"ranges"`
}

// DigitalOceanIPRanges is the decoded DigitalOcean geofeed
type DigitalOceanIPRanges struct {
	Ranges []GeoRange `json:"ranges"`
}
