package query

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ipranges/internal/cache"
	"github.com/ipranges/internal/domain"
)

// Project applies the filters in v to the published dataset of provider
// name. It fails with domain.ErrNotYetAvailable when the provider is
// disabled or has not published, and with domain.ErrInvalidInput when a
// filter value is malformed.
func Project(store *cache.Store, name domain.ProviderName, v url.Values) ([]string, error) {
	switch name {
	case domain.AWS:
		return project(store, name, v, ProjectAWS)
	case domain.AWSPrefixListsName:
		return project(store, name, v, ProjectPrefixLists)
	case domain.Azure:
		return project(store, name, v, ProjectAzure)
	case domain.Cloudflare:
		return project(store, name, v, ProjectCloudflare)
	case domain.Fastly:
		return project(store, name, v, ProjectFastly)
	case domain.GCP:
		return project(store, name, v, ProjectGCP)
	case domain.Linode:
		return project(store, name, v, ProjectLinode)
	case domain.Oracle:
		return project(store, name, v, ProjectOracle)
	case domain.DigitalOcean:
		return project(store, name, v, ProjectDigitalOcean)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, name)
	}
}

// project looks the dataset up by name; a disabled provider has no slot in
// the store and reads as not yet available
func project[T any](store *cache.Store, name domain.ProviderName, v url.Values, fn func(*T, url.Values) ([]string, error)) ([]string, error) {
	snap, err := cache.Lookup[T](store, name)
	if err != nil {
		return nil, err
	}
	return fn(snap.Data, v)
}

func families(v url.Values) (Families, error) {
	return ParseFamilies(v.Get("ipv4"), v.Get("ipv6"))
}

// ProjectAWS reads region, service, network_border_group, ipv4 and ipv6
func ProjectAWS(data *domain.AWSIPRanges, v url.Values) ([]string, error) {
	fam, err := families(v)
	if err != nil {
		return nil, err
	}
	return AWS(data, AWSFilter{
		Region:             v.Get("region"),
		Service:            v.Get("service"),
		NetworkBorderGroup: v.Get("network_border_group"),
		Families:           fam,
	}), nil
}

// ProjectPrefixLists reads name, ipv4 and ipv6
func ProjectPrefixLists(data *domain.AWSPrefixLists, v url.Values) ([]string, error) {
	fam, err := families(v)
	if err != nil {
		return nil, err
	}
	return PrefixLists(data, PrefixListFilter{Name: v.Get("name"), Families: fam}), nil
}

// ProjectAzure reads region, system_service, ipv4 and ipv6
func ProjectAzure(data *domain.AzureServiceTags, v url.Values) ([]string, error) {
	fam, err := families(v)
	if err != nil {
		return nil, err
	}
	return Azure(data, AzureFilter{
		Region:        v.Get("region"),
		SystemService: v.Get("system_service"),
		Families:      fam,
	}), nil
}

// ProjectCloudflare reads ipv4 and ipv6
func ProjectCloudflare(data *domain.CloudflareIPRanges, v url.Values) ([]string, error) {
	fam, err := families(v)
	if err != nil {
		return nil, err
	}
	return Cloudflare(data, fam), nil
}

// ProjectFastly reads ipv4 and ipv6
func ProjectFastly(data *domain.FastlyIPRanges, v url.Values) ([]string, error) {
	fam, err := families(v)
	if err != nil {
		return nil, err
	}
	return Fastly(data, fam), nil
}

// ProjectGCP reads scope, service, ipv4 and ipv6
func ProjectGCP(data *domain.GCPIPRanges, v url.Values) ([]string, error) {
	fam, err := families(v)
	if err != nil {
		return nil, err
	}
	return GCP(data, GCPFilter{Scope: v.Get("scope"), Service: v.Get("service"), Families: fam}), nil
}

func geoFilter(v url.Values) (GeoFilter, error) {
	fam, err := families(v)
	if err != nil {
		return GeoFilter{}, err
	}
	return GeoFilter{
		Alpha2Code: strings.ToUpper(v.Get("alpha2code")),
		Region:     v.Get("region"),
		Families:   fam,
	}, nil
}

// ProjectLinode reads alpha2code, region, ipv4 and ipv6
func ProjectLinode(data *domain.LinodeIPRanges, v url.Values) ([]string, error) {
	f, err := geoFilter(v)
	if err != nil {
		return nil, err
	}
	return Linode(data, f), nil
}

// ProjectDigitalOcean reads alpha2code, region, ipv4 and ipv6
func ProjectDigitalOcean(data *domain.DigitalOceanIPRanges, v url.Values) ([]string, error) {
	f, err := geoFilter(v)
	if err != nil {
		return nil, err
	}
	return DigitalOcean(data, f), nil
}

// ProjectOracle reads region and tag
func ProjectOracle(data *domain.OracleIPRanges, v url.Values) ([]string, error) {
	return Oracle(data, OracleFilter{Region: v.Get("region"), Tag: v.Get("tag")}), nil
}
