// Package query projects provider datasets onto flat prefix lists. All
// functions are pure: they read a snapshot's data and never modify it.
// String filters compare case-insensitively and an empty filter matches
// everything.
package query

import (
	"strconv"
	"strings"

	"github.com/ipranges/internal/domain"
)

// Families selects the address families included in a result
type Families struct {
	IPv4 bool
	IPv6 bool
}

// Both selects IPv4 and IPv6
var Both = Families{IPv4: true, IPv6: true}

// ParseFamilies interprets the ipv4 and ipv6 flags of a request. When
// neither flag is true both families are returned.
func ParseFamilies(ipv4, ipv6 string) (Families, error) {
	v4, err := parseFlag("ipv4", ipv4)
	if err != nil {
		return Families{}, err
	}
	v6, err := parseFlag("ipv6", ipv6)
	if err != nil {
		return Families{}, err
	}
	if !v4 && !v6 {
		return Both, nil
	}
	return Families{IPv4: v4, IPv6: v6}, nil
}

func parseFlag(name, v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, domain.NewValidationError(name, "must be a boolean")
	}
	return b, nil
}

// Allows reports whether prefix belongs to a selected family
func (f Families) Allows(prefix string) bool {
	if domain.IsIPv4(prefix) {
		return f.IPv4
	}
	return f.IPv6
}

func matches(filter, value string) bool {
	return filter == "" || strings.EqualFold(filter, value)
}

func contains(filter, value string) bool {
	return filter == "" || strings.Contains(strings.ToLower(value), strings.ToLower(filter))
}

// collector accumulates unique prefixes in first-seen order
type collector struct {
	seen map[string]struct{}
	out  []string
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{}), out: []string{}}
}

func (c *collector) add(prefix string) {
	if _, dup := c.seen[prefix]; dup {
		return
	}
	c.seen[prefix] = struct{}{}
	c.out = append(c.out, prefix)
}

// AWSFilter selects entries of ip-ranges.json
type AWSFilter struct {
	Region             string
	Service            string
	NetworkBorderGroup string
	Families           Families
}

// AWS returns the prefixes matching f
func AWS(data *domain.AWSIPRanges, f AWSFilter) []string {
	c := newCollector()
	if f.Families.IPv4 {
		for _, p := range data.Prefixes {
			if matches(f.Region, p.Region) && matches(f.Service, p.Service) && matches(f.NetworkBorderGroup, p.NetworkBorderGroup) {
				c.add(p.IPPrefix)
			}
		}
	}
	if f.Families.IPv6 {
		for _, p := range data.IPv6Prefixes {
			if matches(f.Region, p.Region) && matches(f.Service, p.Service) && matches(f.NetworkBorderGroup, p.NetworkBorderGroup) {
				c.add(p.IPv6Prefix)
			}
		}
	}
	return c.out
}

// AzureFilter selects service tags
type AzureFilter struct {
	Region        string
	SystemService string
	Families      Families
}

// Azure returns the address prefixes of the service tags matching f
func Azure(data *domain.AzureServiceTags, f AzureFilter) []string {
	c := newCollector()
	for _, v := range data.Values {
		if !matches(f.Region, v.Properties.Region) || !matches(f.SystemService, v.Properties.SystemService) {
			continue
		}
		for _, p := range v.Properties.AddressPrefixes {
			if f.Families.Allows(p) {
				c.add(p)
			}
		}
	}
	return c.out
}

// Cloudflare returns the selected families of Cloudflare's lists
func Cloudflare(data *domain.CloudflareIPRanges, f Families) []string {
	c := newCollector()
	if f.IPv4 {
		for _, p := range data.IPv4CIDRs {
			c.add(p)
		}
	}
	if f.IPv6 {
		for _, p := range data.IPv6CIDRs {
			c.add(p)
		}
	}
	return c.out
}

// Fastly returns the selected families of Fastly's list
func Fastly(data *domain.FastlyIPRanges, f Families) []string {
	c := newCollector()
	if f.IPv4 {
		for _, p := range data.IPv4Addresses {
			c.add(p)
		}
	}
	if f.IPv6 {
		for _, p := range data.IPv6Addresses {
			c.add(p)
		}
	}
	return c.out
}

// GCPFilter selects entries of cloud.json
type GCPFilter struct {
	Scope    string
	Service  string
	Families Families
}

// GCP returns the prefixes matching f
func GCP(data *domain.GCPIPRanges, f GCPFilter) []string {
	c := newCollector()
	for _, p := range data.Prefixes {
		if !matches(f.Scope, p.Scope) || !matches(f.Service, p.Service) {
			continue
		}
		if p.IPv4Prefix != "" && f.Families.IPv4 {
			c.add(p.IPv4Prefix)
		}
		if p.IPv6Prefix != "" && f.Families.IPv6 {
			c.add(p.IPv6Prefix)
		}
	}
	return c.out
}

// GeoFilter selects geofeed rows. Alpha2Code must match exactly (ignoring
// case) while Region matches as a substring, so "US" finds "US-NJ".
type GeoFilter struct {
	Alpha2Code string
	Region     string
	Families   Families
}

// Geo returns the prefixes of the geofeed rows matching f
func Geo(ranges []domain.GeoRange, f GeoFilter) []string {
	c := newCollector()
	for _, r := range ranges {
		if matches(f.Alpha2Code, r.Alpha2Code) && contains(f.Region, r.Region) && f.Families.Allows(r.IPPrefix) {
			c.add(r.IPPrefix)
		}
	}
	return c.out
}

// Linode returns the Linode prefixes matching f
func Linode(data *domain.LinodeIPRanges, f GeoFilter) []string {
	return Geo(data.Ranges, f)
}

// DigitalOcean returns the DigitalOcean prefixes matching f
func DigitalOcean(data *domain.DigitalOceanIPRanges, f GeoFilter) []string {
	return Geo(data.Ranges, f)
}

// OracleFilter selects OCI CIDRs by region and tag
type OracleFilter struct {
	Region string
	Tag    string
}

// Oracle returns the CIDRs matching f
func Oracle(data *domain.OracleIPRanges, f OracleFilter) []string {
	c := newCollector()
	for _, r := range data.Regions {
		if !matches(f.Region, r.Region) {
			continue
		}
		for _, cidr := range r.CIDRs {
			if f.Tag == "" || hasTag(cidr.Tags, f.Tag) {
				c.add(cidr.CIDR)
			}
		}
	}
	return c.out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// PrefixListFilter selects AWS managed prefix lists by name or ID
type PrefixListFilter struct {
	Name     string
	Families Families
}

// PrefixLists returns the entries of the lists matching f
func PrefixLists(data *domain.AWSPrefixLists, f PrefixListFilter) []string {
	c := newCollector()
	for _, l := range data.Lists {
		if f.Name != "" && !strings.EqualFold(f.Name, l.Name) && !strings.EqualFold(f.Name, l.ID) {
			continue
		}
		for _, cidr := range l.CIDRs {
			if f.Families.Allows(cidr) {
				c.add(cidr)
			}
		}
	}
	return c.out
}
