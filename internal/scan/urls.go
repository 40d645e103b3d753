package scan

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ampscan/ampscan/internal/content"
)

// URLProvider enumerates a representative sample of site URLs: one URL per
// public post type, per supported taxonomy and per author at each list
// position, plus singleton home, date and search URLs. It is a pure read
// over the site index.
type URLProvider struct {
	index content.SiteIndex
	clock Clock

	// limitPerType caps how many URLs of each type a single call emits.
	limitPerType int
	// includeConditionals, when non-empty, is an authoritative allowlist
	// of template keys; it overrides persisted settings entirely.
	includeConditionals []string
	// includeUnsupported treats every template and post as supported.
	includeUnsupported bool
}

// NewURLProvider constructs a URLProvider.
func NewURLProvider(
	index content.SiteIndex,
	clock Clock,
	limitPerType int,
	includeConditionals []string,
	includeUnsupported bool,
) *URLProvider {
	if limitPerType <= 0 {
		limitPerType = 20
	}
	return &URLProvider{
		index:               index,
		clock:               clock,
		limitPerType:        limitPerType,
		includeConditionals: includeConditionals,
		includeUnsupported:  includeUnsupported,
	}
}

// GetURLs returns the candidate URLs starting at the given per-type offset.
// Types with fewer than offset+1 items simply contribute nothing.
func (p *URLProvider) GetURLs(ctx context.Context, offset int) ([]PageURL, error) {
	settings, err := p.index.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load site settings: %w", err)
	}

	var urls []PageURL

	// The home URL is only sampled when the front page shows latest posts;
	// it is never offset-dependent.
	if settings.ShowOnFront == content.ShowOnFrontPosts && p.isTemplateSupported(settings, "is_home") {
		urls = append(urls, PageURL{URL: settings.HomeURL, Type: TypeHome})
	}

	var taxonomies []string
	for _, taxonomy := range settings.PublicTaxonomies {
		if p.taxonomySupported(settings, taxonomy) {
			taxonomies = append(taxonomies, taxonomy)
		}
	}

	// One URL of each content type per iteration, then another of each type
	// on the next iteration.
	for i := offset; i < offset+p.limitPerType; i++ {
		for _, postType := range settings.PublicPostTypes {
			post, ok, err := p.postAt(ctx, settings, postType, i)
			if err != nil {
				return nil, err
			}
			if ok {
				urls = append(urls, PageURL{URL: post.Permalink, Type: postType})
			}
		}

		for _, taxonomy := range taxonomies {
			terms, err := p.index.TermsByTaxonomy(ctx, taxonomy, i, 1)
			if err != nil {
				return nil, fmt.Errorf("list %s terms: %w", taxonomy, err)
			}
			if len(terms) > 0 {
				urls = append(urls, PageURL{URL: terms[0].Link, Type: taxonomy})
			}
		}

		if p.isTemplateSupported(settings, "is_author") {
			authors, err := p.index.Authors(ctx, i, 1)
			if err != nil {
				return nil, fmt.Errorf("list authors: %w", err)
			}
			if len(authors) > 0 {
				urls = append(urls, PageURL{URL: authors[0].URL, Type: TypeAuthor})
			}
		}
	}

	// Only one date and one search page, regardless of offset.
	if p.isTemplateSupported(settings, "is_date") {
		urls = append(urls, PageURL{
			URL:  addQueryArg(settings.HomeURL, "year", strconv.Itoa(p.clock.Now().Year())),
			Type: TypeDate,
		})
	}
	if p.isTemplateSupported(settings, "is_search") {
		urls = append(urls, PageURL{
			URL:  addQueryArg(settings.HomeURL, "s", "example"),
			Type: TypeSearch,
		})
	}

	return urls, nil
}

// CountURLsToValidate returns how many URLs a full call at offset zero yields.
func (p *URLProvider) CountURLsToValidate(ctx context.Context) (int, error) {
	urls, err := p.GetURLs(ctx, 0)
	if err != nil {
		return 0, err
	}
	return len(urls), nil
}

// HomeIncluded reports whether the home URL is part of the sample, which the
// cron scheduler uses to size its always-checked baseline.
func (p *URLProvider) HomeIncluded(ctx context.Context) (bool, error) {
	settings, err := p.index.Settings(ctx)
	if err != nil {
		return false, fmt.Errorf("load site settings: %w", err)
	}
	return settings.ShowOnFront == content.ShowOnFrontPosts && p.isTemplateSupported(settings, "is_home"), nil
}

// IsTemplateSupported resolves the support predicate for one template key.
func (p *URLProvider) IsTemplateSupported(ctx context.Context, template string) (bool, error) {
	settings, err := p.index.Settings(ctx)
	if err != nil {
		return false, fmt.Errorf("load site settings: %w", err)
	}
	return p.isTemplateSupported(settings, template), nil
}

// isTemplateSupported applies the override chain: a non-empty allowlist is
// authoritative, then the force flag, then the persisted per-template flag.
func (p *URLProvider) isTemplateSupported(settings content.Settings, template string) bool {
	if len(p.includeConditionals) > 0 {
		for _, c := range p.includeConditionals {
			if c == template {
				return true
			}
		}
		return false
	}
	if p.includeUnsupported {
		return true
	}
	return settings.SupportedTemplates[template]
}

// taxonomySupported maps a taxonomy name to its template key. post_tag uses
// the key "tag"; custom taxonomies match either is_<taxonomy> or
// is_tax[<taxonomy>].
func (p *URLProvider) taxonomySupported(settings content.Settings, taxonomy string) bool {
	key := taxonomy
	if key == "post_tag" {
		key = "tag"
	}
	return p.isTemplateSupported(settings, "is_"+key) ||
		p.isTemplateSupported(settings, fmt.Sprintf("is_tax[%s]", taxonomy))
}

// postAt returns the post of the given type at list position i, subject to
// the singular-template and per-post opt-out predicates.
func (p *URLProvider) postAt(ctx context.Context, settings content.Settings, postType string, i int) (content.Post, bool, error) {
	if !p.isTemplateSupported(settings, "is_singular") {
		return content.Post{}, false, nil
	}
	posts, err := p.index.PostsByType(ctx, postType, i, 1)
	if err != nil {
		return content.Post{}, false, fmt.Errorf("list %s posts: %w", postType, err)
	}
	if len(posts) == 0 {
		return content.Post{}, false, nil
	}
	post := posts[0]
	if !p.includeUnsupported && !post.AMPEnabled {
		return content.Post{}, false, nil
	}
	return post, true, nil
}

// addQueryArg appends a query parameter to a URL, preserving existing ones.
// Malformed base URLs fall back to naive concatenation rather than failing,
// since the provider never raises.
func addQueryArg(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + key + "=" + value
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
