// Package provider wires the provider adapters to their cache slots. The
// Registry is the single place that knows every provider's data type; the
// orchestrator sees type-erased tasks and the query layer looks slots up by
// name in the store.
package provider

import (
	"context"
	"fmt"

	"github.com/ipranges/internal/cache"
	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
	"github.com/ipranges/internal/provider/aws"
	"github.com/ipranges/internal/provider/awsprefixlist"
	"github.com/ipranges/internal/provider/azure"
	"github.com/ipranges/internal/provider/cloudflare"
	"github.com/ipranges/internal/provider/digitalocean"
	"github.com/ipranges/internal/provider/fastly"
	"github.com/ipranges/internal/provider/gcp"
	"github.com/ipranges/internal/provider/linode"
	"github.com/ipranges/internal/provider/oracle"
	"github.com/ipranges/internal/refresh"
)

// Registry holds the enabled providers' tasks. Their slots live in Store.
type Registry struct {
	Store *cache.Store

	tasks     []refresh.Task
	upstreams map[domain.ProviderName][]string
}

var log = logging.Logger("provider")

// Option customizes Build
type Option func(*buildOptions)

type buildOptions struct {
	ec2             awsprefixlist.EC2API
	loadPrefixLists func(context.Context, config.AWSConfig) (*awsprefixlist.Adapter, error)
}

// WithEC2Client uses client for the AWS prefix list adapter instead of one
// built from the default credential chain.
func WithEC2Client(client awsprefixlist.EC2API) Option {
	return func(o *buildOptions) {
		o.ec2 = client
	}
}

// Build creates an adapter and a slot in store for every enabled provider
func Build(ctx context.Context, cfg *config.Config, client *fetch.Client, store *cache.Store, opts ...Option) (*Registry, error) {
	bo := buildOptions{loadPrefixLists: awsprefixlist.NewFromConfig}
	for _, opt := range opts {
		opt(&bo)
	}

	r := &Registry{
		Store:     store,
		upstreams: make(map[domain.ProviderName][]string),
	}
	p := cfg.Providers

	if p.AWS.Enabled {
		a := aws.New(client, p.AWS.URL)
		if err := add[domain.AWSIPRanges](r, a, a.URL()); err != nil {
			return nil, err
		}
	}
	if p.Azure.Enabled {
		a := azure.New(client, p.Azure.URL)
		if err := add[domain.AzureServiceTags](r, a, a.PageURL()); err != nil {
			return nil, err
		}
	}
	if p.Cloudflare.Enabled {
		a := cloudflare.New(client, p.Cloudflare.URL, p.Cloudflare.IPv6URL)
		if err := add[domain.CloudflareIPRanges](r, a, a.URLs()...); err != nil {
			return nil, err
		}
	}
	if p.Fastly.Enabled {
		a := fastly.New(client, p.Fastly.URL)
		if err := add[domain.FastlyIPRanges](r, a, a.URL()); err != nil {
			return nil, err
		}
	}
	if p.GCP.Enabled {
		a := gcp.New(client, p.GCP.URL)
		if err := add[domain.GCPIPRanges](r, a, a.URL()); err != nil {
			return nil, err
		}
	}
	if p.Linode.Enabled {
		a := linode.New(client, p.Linode.URL)
		if err := add[domain.LinodeIPRanges](r, a, a.URL()); err != nil {
			return nil, err
		}
	}
	if p.Oracle.Enabled {
		a := oracle.New(client, p.Oracle.URL)
		if err := add[domain.OracleIPRanges](r, a, a.URL()); err != nil {
			return nil, err
		}
	}
	if p.DigitalOcean.Enabled {
		a := digitalocean.New(client, p.DigitalOcean.URL)
		if err := add[domain.DigitalOceanIPRanges](r, a, a.URL()); err != nil {
			return nil, err
		}
	}

	if cfg.AWS.PrefixLists.Enabled {
		if err := r.addPrefixLists(ctx, cfg.AWS, bo); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// addPrefixLists registers the EC2 prefix list adapter. Failing to load AWS
// credentials leaves the provider disabled instead of failing the service.
func (r *Registry) addPrefixLists(ctx context.Context, cfg config.AWSConfig, bo buildOptions) error {
	var a *awsprefixlist.Adapter
	if bo.ec2 != nil {
		a = awsprefixlist.New(bo.ec2, cfg)
	} else {
		var err error
		if a, err = bo.loadPrefixLists(ctx, cfg); err != nil {
			log.Errorw("AWS prefix lists disabled", "region", cfg.Region, "err", err)
			return nil
		}
	}
	upstream := fmt.Sprintf("ec2:%s/managed-prefix-lists", cfg.Region)
	return add[domain.AWSPrefixLists](r, a, upstream)
}

// add registers the adapter's slot and binds the two into a task
func add[T any](r *Registry, a domain.Adapter[T], upstreams ...string) error {
	slot, err := cache.Register[T](r.Store, a.Name())
	if err != nil {
		return fmt.Errorf("register %s: %w", a.Name(), err)
	}
	r.tasks = append(r.tasks, refresh.Bind[T](a, slot))
	r.upstreams[a.Name()] = upstreams
	return nil
}

// Tasks returns the refresh tasks of every enabled provider
func (r *Registry) Tasks() []refresh.Task {
	return r.tasks
}

// Names returns the enabled provider names in registration order
func (r *Registry) Names() []domain.ProviderName {
	names := make([]domain.ProviderName, len(r.tasks))
	for i, t := range r.tasks {
		names[i] = t.Name()
	}
	return names
}

// Enabled reports whether name has a registered task
func (r *Registry) Enabled(name domain.ProviderName) bool {
	_, ok := r.upstreams[name]
	return ok
}

// Upstreams returns the upstream locations of an enabled provider
func (r *Registry) Upstreams(name domain.ProviderName) []string {
	return r.upstreams[name]
}
