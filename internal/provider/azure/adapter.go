// Package azure implements the adapter for Azure's public service tags.
// Microsoft publishes the service tags JSON under a URL that changes weekly;
// the current URL is discovered from the download confirmation page.
package azure

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/ipranges/internal/domain"
	"github.com/ipranges/internal/fetch"
	"github.com/ipranges/internal/logging"
)

// DefaultPageURL is the download page linking the current service tags file
const DefaultPageURL = "https://www.microsoft.com/en-us/download/confirmation.aspx?id=56519"

// linkMarker identifies the service tags download link
const linkMarker = "ServiceTags_"

var log = logging.Logger("provider/azure")

// errNoLink is returned when the download page carries no service tags link
var errNoLink = errors.New("no service tags link on download page")

// Adapter discovers and decodes the current service tags file. It remembers
// the last resolved file URL and falls back to it when the download page
// cannot be scraped.
type Adapter struct {
	client  *fetch.Client
	pageURL string

	mu      sync.Mutex
	lastURL string
}

// New creates an Azure adapter. An empty pageURL selects DefaultPageURL.
func New(client *fetch.Client, pageURL string) *Adapter {
	if pageURL == "" {
		pageURL = DefaultPageURL
	}
	return &Adapter{client: client, pageURL: pageURL}
}

// Name returns the provider identifier
func (a *Adapter) Name() domain.ProviderName {
	return domain.Azure
}

// FetchAndParse resolves the current file URL, then downloads and decodes it
func (a *Adapter) FetchAndParse(ctx context.Context) (domain.Fetched[domain.AzureServiceTags], error) {
	fileURL, err := a.resolveFileURL(ctx)
	if err != nil {
		return domain.Fetched[domain.AzureServiceTags]{}, err
	}

	body, err := a.client.Get(ctx, domain.Azure, fileURL)
	if err != nil {
		return domain.Fetched[domain.AzureServiceTags]{}, err
	}

	data, err := fetch.DecodeJSON[domain.AzureServiceTags](domain.Azure, body)
	if err != nil {
		return domain.Fetched[domain.AzureServiceTags]{}, err
	}

	a.mu.Lock()
	a.lastURL = fileURL
	a.mu.Unlock()

	log.Debugw("decoded service tags",
		"execution_id", domain.ExecutionID(ctx),
		"url", fileURL,
		"change_number", data.ChangeNumber,
		"values", len(data.Values))
	return domain.Fetched[domain.AzureServiceTags]{Data: data, Fingerprint: fetch.Fingerprint(body)}, nil
}

// LastURL returns the most recently used service tags file URL
func (a *Adapter) LastURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastURL
}

func (a *Adapter) resolveFileURL(ctx context.Context) (string, error) {
	page, err := a.client.Get(ctx, domain.Azure, a.pageURL)
	if err == nil {
		var href string
		href, err = findLink(page, a.pageURL)
		if err == nil {
			return href, nil
		}
		err = domain.NewParseError(domain.Azure, "scrape download page", err)
	}

	if last := a.LastURL(); last != "" {
		log.Warnw("download page unusable, reusing last service tags url",
			"execution_id", domain.ExecutionID(ctx),
			"url", last,
			"err", err)
		return last, nil
	}
	return "", err
}

// findLink returns the first anchor href containing the service tags
// marker, resolved against base.
func findLink(page []byte, base string) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", errNoLink
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" && strings.Contains(string(val), linkMarker) {
					return resolve(base, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

func resolve(base, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

// PageURL returns the download page the file URL is scraped from
func (a *Adapter) PageURL() string {
	return a.pageURL
}
