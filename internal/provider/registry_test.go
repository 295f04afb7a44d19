package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipranges/internal/cache"
	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/provider/awsprefixlist"
	"github.com/ipranges/internal/refresh"
)

type stubEC2 struct{}

func (stubEC2) DescribeManagedPrefixLists(context.Context, *ec2.DescribeManagedPrefixListsInput, ...func(*ec2.Options)) (*ec2.DescribeManagedPrefixListsOutput, error) {
	return &ec2.DescribeManagedPrefixListsOutput{PrefixLists: []types.ManagedPrefixList{{
		PrefixListId:   aws.String("pl-3b927c52"),
		PrefixListName: aws.String("com.amazonaws.global.cloudfront.origin-facing"),
		AddressFamily:  aws.String("IPv4"),
	}}}, nil
}

func (stubEC2) GetManagedPrefixListEntries(context.Context, *ec2.GetManagedPrefixListEntriesInput, ...func(*ec2.Options)) (*ec2.GetManagedPrefixListEntriesOutput, error) {
	return &ec2.GetManagedPrefixListEntriesOutput{Entries: []types.PrefixListEntry{{Cidr: aws.String("13.32.0.0/15")}}}, nil
}

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/aws.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prefixes":[{"ip_prefix":"3.5.140.0/22","region":"ap-northeast-2","service":"AMAZON","network_border_group":"ap-northeast-2"}]}`))
	})
	mux.HandleFunc("/v4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("173.245.48.0/20\n"))
	})
	mux.HandleFunc("/v6", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("2400:cb00::/32\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func onlyEnabled(cfg *config.Config, names ...string) {
	for _, n := range []string{"aws", "azure", "cloudflare", "fastly", "gcp", "linode", "oracle", "digitalocean"} {
		cfg.Providers.ByName(n).Enabled = false
	}
	for _, n := range names {
		cfg.Providers.ByName(n).Enabled = true
	}
}

func TestBuildDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	store := cache.New()
	r, err := Build(context.Background(), cfg, fetch.NewClient(cfg.HTTP), store)
	require.NoError(t, err)

	assert.Equal(t, []domain.ProviderName{
		domain.AWS, domain.Azure, domain.Cloudflare, domain.Fastly,
		domain.GCP, domain.Linode, domain.Oracle, domain.DigitalOcean,
	}, r.Names())
	assert.Len(t, r.Tasks(), 8)
	assert.Len(t, store.Names(), 8)
	_, err = cache.SlotFor[domain.AWSIPRanges](store, domain.AWS)
	assert.NoError(t, err)
	_, err = cache.SlotFor[domain.DigitalOceanIPRanges](store, domain.DigitalOcean)
	assert.NoError(t, err)
	_, err = cache.SlotFor[domain.AWSPrefixLists](store, domain.AWSPrefixListsName)
	assert.ErrorIs(t, err, domain.ErrNotYetAvailable)
	assert.False(t, r.Enabled(domain.AWSPrefixListsName))
	assert.Equal(t, []string{cfg.Providers.Cloudflare.URL, cfg.Providers.Cloudflare.IPv6URL}, r.Upstreams(domain.Cloudflare))
}

func TestBuildDisabledProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	onlyEnabled(cfg, "gcp", "oracle")

	store := cache.New()
	r, err := Build(context.Background(), cfg, fetch.NewClient(cfg.HTTP), store)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProviderName{domain.GCP, domain.Oracle}, r.Names())
	assert.Equal(t, []domain.ProviderName{domain.GCP, domain.Oracle}, store.Names())
	_, err = cache.SlotFor[domain.AWSIPRanges](store, domain.AWS)
	assert.ErrorIs(t, err, domain.ErrNotYetAvailable)
	assert.True(t, r.Enabled(domain.Oracle))
	assert.False(t, r.Enabled(domain.Fastly))
}

func TestBuildTypeConflict(t *testing.T) {
	cfg := config.DefaultConfig()
	onlyEnabled(cfg, "aws")
	store := cache.New()
	_, err := cache.Register[string](store, domain.AWS)
	require.NoError(t, err)

	_, err = Build(context.Background(), cfg, fetch.NewClient(cfg.HTTP), store)
	require.ErrorIs(t, err, cache.ErrTypeMismatch)
}

func TestRegistryEndToEnd(t *testing.T) {
	srv := upstream(t)
	cfg := config.DefaultConfig()
	onlyEnabled(cfg, "aws", "cloudflare")
	cfg.Providers.AWS.URL = srv.URL + "/aws.json"
	cfg.Providers.Cloudflare.URL = srv.URL + "/v4"
	cfg.Providers.Cloudflare.IPv6URL = srv.URL + "/v6"
	cfg.AWS.PrefixLists.Enabled = true
	cfg.HTTP.Timeout = time.Second

	store := cache.New()
	r, err := Build(context.Background(), cfg, fetch.NewClient(cfg.HTTP), store, WithEC2Client(stubEC2{}))
	require.NoError(t, err)
	require.Len(t, r.Tasks(), 3)

	report := refresh.New(r.Tasks()).RunCycle(context.Background())
	require.NoError(t, report.Err())
	assert.Equal(t, 3, report.Count(refresh.StatusPublished))

	awsSnap, err := cache.Lookup[domain.AWSIPRanges](store, domain.AWS)
	require.NoError(t, err)
	assert.Equal(t, "3.5.140.0/22", awsSnap.Data.Prefixes[0].IPPrefix)

	cf, err := cache.Lookup[domain.CloudflareIPRanges](store, domain.Cloudflare)
	require.NoError(t, err)
	assert.Equal(t, []string{"2400:cb00::/32"}, cf.Data.IPv6CIDRs)

	pl, err := cache.Lookup[domain.AWSPrefixLists](store, domain.AWSPrefixListsName)
	require.NoError(t, err)
	assert.Equal(t, []string{"13.32.0.0/15"}, pl.Data.Lists[0].CIDRs)
}

func TestBuildSkipsPrefixListsWithoutCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	onlyEnabled(cfg, "fastly")
	cfg.AWS.PrefixLists.Enabled = true
	failing := func(o *buildOptions) {
		o.loadPrefixLists = func(context.Context, config.AWSConfig) (*awsprefixlist.Adapter, error) {
			return nil, errors.New("no EC2 IMDS role found")
		}
	}

	store := cache.New()
	r, err := Build(context.Background(), cfg, fetch.NewClient(cfg.HTTP), store, failing)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProviderName{domain.Fastly}, r.Names())
	assert.False(t, r.Enabled(domain.AWSPrefixListsName))
	assert.Equal(t, []domain.ProviderName{domain.Fastly}, store.Names())
}
