package query

import (
	"errors"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipranges/internal/cache"
	"github.com/ipranges/internal/domain"
)

func TestProject(t *testing.T) {
	store := cache.New()
	awsSlot, err := cache.Register[domain.AWSIPRanges](store, domain.AWS)
	require.NoError(t, err)
	_, err = cache.Register[domain.CloudflareIPRanges](store, domain.Cloudflare)
	require.NoError(t, err)

	_, err = Project(store, domain.AWS, nil)
	assert.True(t, errors.Is(err, domain.ErrNotYetAvailable), "unpublished provider")

	_, err = Project(store, domain.Azure, nil)
	assert.True(t, errors.Is(err, domain.ErrNotYetAvailable), "disabled provider")

	_, err = Project(store, domain.ProviderName("akamai"), nil)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedProvider))

	require.NoError(t, awsSlot.Publish(cache.NewSnapshot(awsFixture(), "fp", uuid.New())))

	got, err := Project(store, domain.AWS, url.Values{"region": {"us-west-2"}, "ipv6": {"true"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2600:1f14::/35"}, got)

	_, err = Project(store, domain.AWS, url.Values{"ipv6": {"sometimes"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestProjectPrefixLists(t *testing.T) {
	store := cache.New()
	slot, err := cache.Register[domain.AWSPrefixLists](store, domain.AWSPrefixListsName)
	require.NoError(t, err)

	_, err = Project(store, domain.AWSPrefixListsName, nil)
	require.ErrorIs(t, err, domain.ErrNotYetAvailable)

	data := &domain.AWSPrefixLists{Region: "us-east-1", Lists: []domain.AWSPrefixList{
		{ID: "pl-3b927c52", Name: "com.amazonaws.global.cloudfront.origin-facing", CIDRs: []string{"13.32.0.0/15", "2600:9000::/28"}},
		{ID: "pl-02cd2c6b", Name: "com.amazonaws.us-east-1.dynamodb", CIDRs: []string{"3.218.180.0/22"}},
	}}
	require.NoError(t, slot.Publish(cache.NewSnapshot(data, "fp", uuid.New())))

	got, err := Project(store, domain.AWSPrefixListsName, url.Values{"name": {"COM.AMAZONAWS.GLOBAL.CLOUDFRONT.ORIGIN-FACING"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"13.32.0.0/15", "2600:9000::/28"}, got)

	got, err = Project(store, domain.AWSPrefixListsName, url.Values{"name": {"pl-3b927c52"}, "ipv6": {"true"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2600:9000::/28"}, got)

	got, err = Project(store, domain.AWSPrefixListsName, url.Values{"name": {"com.amazonaws.us-east-1.s3"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProjectGeoUppercasesAlpha2(t *testing.T) {
	data := &domain.DigitalOceanIPRanges{Ranges: []domain.GeoRange{
		{IPPrefix: "104.131.0.0/18", Alpha2Code: "US", Region: "US-NY"},
		{IPPrefix: "46.101.0.0/18", Alpha2Code: "DE", Region: "DE-HE"},
	}}

	got, err := ProjectDigitalOcean(data, url.Values{"alpha2code": {"de"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"46.101.0.0/18"}, got)
}
