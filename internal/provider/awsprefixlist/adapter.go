// Package awsprefixlist implements an adapter resolving AWS-managed prefix
// lists (for example com.amazonaws.global.cloudfront.origin-facing) through
// the EC2 API.
package awsprefixlist

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
)

var log = logging.Logger("provider/awsprefixlist")

// EC2API is the subset of the EC2 client used by the adapter
type EC2API interface {
	ec2.DescribeManagedPrefixListsAPIClient
	ec2.GetManagedPrefixListEntriesAPIClient
}

// Adapter lists AWS-managed prefix lists and their entries
type Adapter struct {
	client     EC2API
	region     string
	ids        []string
	namePrefix string
}

// New creates an adapter over an EC2 client
func New(client EC2API, cfg config.AWSConfig) *Adapter {
	return &Adapter{
		client:     client,
		region:     cfg.Region,
		ids:        cfg.PrefixLists.IDs,
		namePrefix: cfg.PrefixLists.NamePrefix,
	}
}

// NewFromConfig loads the default AWS credential chain for cfg.Region
func NewFromConfig(ctx context.Context, cfg config.AWSConfig) (*Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(ec2.NewFromConfig(awsCfg), cfg), nil
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.AWSPrefixListsName
}

// FetchAndParse resolves the selected prefix lists and all their entries
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.AWSPrefixLists], error) {
	input := &ec2.DescribeManagedPrefixListsInput{}
	if len(a.ids) > 0 {
		input.PrefixListIds = a.ids
	} else {
		input.Filters = []types.Filter{{Name: aws.String("owner-id"), Values: []string{"AWS"}}}
	}

	var lists []domain.AWSPrefixList
	pager := ec2.NewDescribeManagedPrefixListsPaginator(a.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return domain.Fetched[domain.AWSPrefixLists]{}, domain.NewNetworkError(domain.AWSPrefixListsName, "DescribeManagedPrefixLists", err)
		}
		for _, pl := range page.PrefixLists {
			name := aws.ToString(pl.PrefixListName)
			if a.namePrefix != "" && !strings.HasPrefix(name, a.namePrefix) {
				continue
			}
			lists = append(lists, domain.AWSPrefixList{
				ID:            aws.ToString(pl.PrefixListId),
				Name:          name,
				AddressFamily: aws.ToString(pl.AddressFamily),
			})
		}
	}

	for i := range lists {
		cidrs, err := a.entries(ctx, lists[i].ID)
		if err != nil {
			return domain.Fetched[domain.AWSPrefixLists]{}, err
		}
		lists[i].CIDRs = cidrs
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].ID < lists[j].ID })

	log.Debugw("resolved managed prefix lists",
		"execution_id", domain.ExecutionID(ctx),
		"region", a.region,
		"lists", len(lists))
	data := &domain.AWSPrefixLists{Region: a.region, Lists: lists}
	return domain.Fetched[domain.AWSPrefixLists]{Data: data, Fingerprint: fingerprint(data)}, nil
}

func (a *Adapter) entries(ctx context.Context, id string) ([]string, error) {
	cidrs := []string{}
	pager := ec2.NewGetManagedPrefixListEntriesPaginator(a.client, &ec2.GetManagedPrefixListEntriesInput{
		PrefixListId: aws.String(id),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, domain.NewNetworkError(domain.AWSPrefixListsName, "GetManagedPrefixListEntries "+id, err)
		}
		for _, e := range page.Entries {
			if cidr := aws.ToString(e.Cidr); cidr != "" {
				cidrs = append(cidrs, cidr)
			}
		}
	}
	sort.Strings(cidrs)
	return cidrs, nil
}

// fingerprint digests the sorted list contents, since the API has no raw
// payload to hash.
func fingerprint(data *domain.AWSPrefixLists) string {
	var b strings.Builder
	for _, l := range data.Lists {
		b.WriteString(l.ID)
		b.WriteByte('\n')
		for _, c := range l.CIDRs {
			b.WriteString(c)
			b.WriteByte('\n')
		}
	}
	return fetch.Fingerprint([]byte(b.String()))
}
