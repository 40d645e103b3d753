// Package content models the site content state sampled by the URL provider.
// It is a read-only view: posts, taxonomy terms, authors and the persisted
// per-template support settings of the site under scan.
package content

import "context"

// ShowOnFrontPosts is the front-page setting meaning "latest posts".
const ShowOnFrontPosts = "posts"

// Post is one published entry of a public post type.
type Post struct {
	ID         int64
	Type       string
	Permalink  string
	AMPEnabled bool
}

// Term is one term of a public taxonomy.
type Term struct {
	ID       int64
	Taxonomy string
	Link     string
}

// Author is one user with a public archive page.
type Author struct {
	ID  int64
	URL string
}

// Settings captures the persisted site options the provider consults.
type Settings struct {
	HomeURL string
	// ShowOnFront mirrors the front-page display option; the home URL is
	// only sampled when it equals ShowOnFrontPosts.
	ShowOnFront string
	// SupportedTemplates maps template keys (is_singular, is_author,
	// is_tax[genre], ...) to their persisted supported flag.
	SupportedTemplates map[string]bool
	PublicPostTypes    []string
	PublicTaxonomies   []string
}

// SiteIndex enumerates site content for URL sampling. Implementations must
// order posts by ID descending and terms and authors by ID ascending so that
// offset paging is deterministic.
type SiteIndex interface {
	Settings(ctx context.Context) (Settings, error)
	// PostsByType returns up to limit published posts of the given type
	// starting at the given list position.
	PostsByType(ctx context.Context, postType string, offset, limit int) ([]Post, error)
	// TermsByTaxonomy returns up to limit terms of the taxonomy starting
	// at the given list position.
	TermsByTaxonomy(ctx context.Context, taxonomy string, offset, limit int) ([]Term, error)
	// Authors returns up to limit authors starting at the given position.
	Authors(ctx context.Context, offset, limit int) ([]Author, error)
}
