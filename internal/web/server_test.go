package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipranges/internal/cache"
	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/telemetry"
)

type fixtureSlots struct {
	AWS         *cache.Slot[domain.AWSIPRanges]
	PrefixLists *cache.Slot[domain.AWSPrefixLists]
	Azure       *cache.Slot[domain.AzureServiceTags]
	Linode      *cache.Slot[domain.LinodeIPRanges]
	Oracle      *cache.Slot[domain.OracleIPRanges]
}

type fixture struct {
	server  *Server
	store   *cache.Store
	slots   fixtureSlots
	metrics *telemetry.Metrics
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	store := cache.New()
	var slots fixtureSlots
	var err error
	slots.AWS, err = cache.Register[domain.AWSIPRanges](store, domain.AWS)
	require.NoError(t, err)
	slots.PrefixLists, err = cache.Register[domain.AWSPrefixLists](store, domain.AWSPrefixListsName)
	require.NoError(t, err)
	slots.Azure, err = cache.Register[domain.AzureServiceTags](store, domain.Azure)
	require.NoError(t, err)
	slots.Linode, err = cache.Register[domain.LinodeIPRanges](store, domain.Linode)
	require.NoError(t, err)
	slots.Oracle, err = cache.Register[domain.OracleIPRanges](store, domain.Oracle)
	require.NoError(t, err)

	metrics := telemetry.NewMetrics()
	s := NewServer(cfg, store, metrics)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return &fixture{server: s, store: store, slots: slots, metrics: metrics}
}

// queryResponse mirrors Response with a concrete data type
type queryResponse struct {
	Status  string   `json:"status"`
	Data    []string `json:"data"`
	Message string   `json:"message"`
}

func (f *fixture) get(t *testing.T, target string) (*httptest.ResponseRecorder, queryResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)

	var resp queryResponse
	if rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr, resp
}

func publishAWS(t *testing.T, slot *cache.Slot[domain.AWSIPRanges]) {
	t.Helper()
	data := &domain.AWSIPRanges{
		Prefixes: []domain.AWSPrefix{
			{IPPrefix: "3.5.140.0/22", Region: "ap-northeast-2", Service: "AMAZON", NetworkBorderGroup: "ap-northeast-2"},
			{IPPrefix: "52.94.76.0/22", Region: "us-west-2", Service: "AMAZON", NetworkBorderGroup: "us-west-2"},
		},
		IPv6Prefixes: []domain.AWSIPv6Prefix{
			{IPv6Prefix: "2600:1f14::/35", Region: "us-west-2", Service: "EC2", NetworkBorderGroup: "us-west-2"},
		},
	}
	require.NoError(t, slot.Publish(cache.NewSnapshot(data, "fp-aws", uuid.New())))
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rr, _ := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestQueryBeforeFirstPublish(t *testing.T) {
	f := newFixture(t, nil)

	rr, resp := f.get(t, "/v1/aws")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, statusError, resp.Status)
	assert.Equal(t, "AWS data not found", resp.Message)
}

func TestQueryDisabledProvider(t *testing.T) {
	f := newFixture(t, nil)

	rr, resp := f.get(t, "/v1/cloudflare")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Cloudflare data not found", resp.Message)

	rr, _ = f.get(t, "/v1/nosuchprovider")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueryAWS(t *testing.T) {
	f := newFixture(t, nil)
	publishAWS(t, f.slots.AWS)

	tests := []struct {
		target string
		want   []string
	}{
		{"/v1/aws", []string{"3.5.140.0/22", "52.94.76.0/22", "2600:1f14::/35"}},
		{"/v1/aws?region=US-West-2", []string{"52.94.76.0/22", "2600:1f14::/35"}},
		{"/v1/aws?region=us-west-2&ipv4=true", []string{"52.94.76.0/22"}},
		{"/v1/aws?ipv6=true", []string{"2600:1f14::/35"}},
		{"/v1/aws?service=ec2", []string{"2600:1f14::/35"}},
		{"/v1/aws?network_border_group=ap-northeast-2", []string{"3.5.140.0/22"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rr, resp := f.get(t, tt.target)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, statusSuccess, resp.Status)
			assert.ElementsMatch(t, tt.want, resp.Data)
		})
	}
}

func TestQueryEmptyResultIsNotAnError(t *testing.T) {
	f := newFixture(t, nil)
	publishAWS(t, f.slots.AWS)

	rr, _ := f.get(t, "/v1/aws?region=eu-central-1")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"success","data":[]}`, rr.Body.String())
}

func TestQueryInvalidBool(t *testing.T) {
	f := newFixture(t, nil)
	publishAWS(t, f.slots.AWS)

	rr, resp := f.get(t, "/v1/aws?ipv4=maybe")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, statusError, resp.Status)
	assert.Contains(t, resp.Message, "ipv4")
}

func TestQueryServesStaleData(t *testing.T) {
	f := newFixture(t, nil)
	publishAWS(t, f.slots.AWS)
	f.slots.AWS.RecordFailure(domain.NewNetworkError(domain.AWS, "fetch", errors.New("connection refused")), time.Now())

	rr, resp := f.get(t, "/v1/aws?ipv6=true")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.ElementsMatch(t, []string{"2600:1f14::/35"}, resp.Data)

	rr, _ = f.get(t, "/v1/status")
	require.Equal(t, http.StatusOK, rr.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Len(t, status.Providers, 5)
	aws := status.Providers[0]
	assert.Equal(t, "aws", aws.Name)
	assert.True(t, aws.Published)
	assert.Equal(t, 1, aws.ConsecutiveFailures)
	assert.Contains(t, aws.LastError, "connection refused")
}

func TestQueryGeoAndOracle(t *testing.T) {
	f := newFixture(t, nil)
	linode := &domain.LinodeIPRanges{Ranges: []domain.GeoRange{
		{IPPrefix: "45.33.0.0/17", Alpha2Code: "US", Region: "US-CA", City: "Fremont"},
		{IPPrefix: "139.162.0.0/17", Alpha2Code: "JP", Region: "JP-13", City: "Tokyo"},
	}}
	require.NoError(t, f.slots.Linode.Publish(cache.NewSnapshot(linode, "fp-linode", uuid.New())))
	oracle := &domain.OracleIPRanges{Regions: []domain.OracleRegion{
		{Region: "us-phoenix-1", CIDRs: []domain.OracleCIDR{{CIDR: "129.146.0.0/21", Tags: []string{"OCI"}}}},
	}}
	require.NoError(t, f.slots.Oracle.Publish(cache.NewSnapshot(oracle, "fp-oracle", uuid.New())))

	_, resp := f.get(t, "/v1/linode?alpha2code=jp")
	assert.ElementsMatch(t, []string{"139.162.0.0/17"}, resp.Data)

	_, resp = f.get(t, "/v1/linode?region=ca")
	assert.ElementsMatch(t, []string{"45.33.0.0/17"}, resp.Data)

	_, resp = f.get(t, "/v1/oracle?tag=oci")
	assert.ElementsMatch(t, []string{"129.146.0.0/21"}, resp.Data)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	publishAWS(t, f.slots.AWS)
	f.get(t, "/v1/aws")
	f.get(t, "/v1/azure")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `ipranges_query_requests_total{code="200",provider="aws"} 1`)
	assert.Contains(t, rr.Body.String(), `ipranges_query_requests_total{code="404",provider="azure"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Telemetry.MetricsEnabled = false })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOpenAPIEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil)
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Contains(t, doc["paths"], "/v1/aws/prefix-lists")
}

func TestRateLimitedQueries(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, Burst: 2}
	})
	publishAWS(t, f.slots.AWS)

	for i := 0; i < 2; i++ {
		rr, _ := f.get(t, "/v1/aws")
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
	}
	rr, resp := f.get(t, "/v1/aws")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, statusError, resp.Status)

	// health is not limited
	rr, _ = f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestQueryPrefixLists(t *testing.T) {
	f := newFixture(t, nil)

	rr, resp := f.get(t, "/v1/aws/prefix-lists")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "AWS prefix list data not found", resp.Message)

	data := &domain.AWSPrefixLists{Region: "us-east-1", Lists: []domain.AWSPrefixList{
		{ID: "pl-63a5400a", Name: "com.amazonaws.us-east-1.s3", AddressFamily: "IPv4", CIDRs: []string{"52.216.0.0/15", "54.231.0.0/16"}},
		{ID: "pl-0b0a9c3f", Name: "com.amazonaws.us-east-1.ipv6.s3", AddressFamily: "IPv6", CIDRs: []string{"2600::/32"}},
	}}
	require.NoError(t, f.slots.PrefixLists.Publish(cache.NewSnapshot(data, "fp-pl", uuid.New())))

	rr, resp = f.get(t, "/v1/aws/prefix-lists")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"52.216.0.0/15", "54.231.0.0/16", "2600::/32"}, resp.Data)

	rr, resp = f.get(t, "/v1/aws/prefix-lists?name=COM.AMAZONAWS.US-EAST-1.IPV6.S3&ipv6=true")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"2600::/32"}, resp.Data)

	rr, resp = f.get(t, "/v1/aws/prefix-lists?name=pl-63A5400A&ipv6=true")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, resp.Data)
}

func TestProviderStatus(t *testing.T) {
	f := newFixture(t, nil)
	publishAWS(t, f.slots.AWS)

	rr, _ := f.get(t, "/v1/status/AWS")
	require.Equal(t, http.StatusOK, rr.Code)
	var status ProviderStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "aws", status.Provider.Name)
	assert.True(t, status.Provider.Published)
	assert.Equal(t, "fp-aws", status.Provider.Fingerprint)

	rr, resp := f.get(t, "/v1/status/cloudflare")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Cloudflare is not enabled", resp.Message)

	rr, _ = f.get(t, "/v1/status/akamai")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
