// Package memory provides an in-memory SiteIndex for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ampscan/ampscan/internal/content"
)

// Index implements content.SiteIndex over in-memory slices.
type Index struct {
	mu       sync.RWMutex
	settings content.Settings
	posts    []content.Post
	terms    []content.Term
	authors  []content.Author
}

// NewIndex constructs an empty Index with the given settings.
func NewIndex(settings content.Settings) *Index {
	if settings.SupportedTemplates == nil {
		settings.SupportedTemplates = make(map[string]bool)
	}
	return &Index{settings: settings}
}

// AddPost registers a published post.
func (i *Index) AddPost(p content.Post) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.posts = append(i.posts, p)
}

// AddTerm registers a taxonomy term.
func (i *Index) AddTerm(t content.Term) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.terms = append(i.terms, t)
}

// AddAuthor registers an author with a public archive.
func (i *Index) AddAuthor(a content.Author) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.authors = append(i.authors, a)
}

// Settings returns a copy of the site settings.
func (i *Index) Settings(_ context.Context) (content.Settings, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s := i.settings
	s.SupportedTemplates = make(map[string]bool, len(i.settings.SupportedTemplates))
	for k, v := range i.settings.SupportedTemplates {
		s.SupportedTemplates[k] = v
	}
	s.PublicPostTypes = append([]string(nil), i.settings.PublicPostTypes...)
	s.PublicTaxonomies = append([]string(nil), i.settings.PublicTaxonomies...)
	return s, nil
}

// PostsByType pages through posts of one type, newest (highest ID) first.
func (i *Index) PostsByType(_ context.Context, postType string, offset, limit int) ([]content.Post, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var matched []content.Post
	for _, p := range i.posts {
		if p.Type == postType {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].ID > matched[b].ID })
	return page(matched, offset, limit), nil
}

// TermsByTaxonomy pages through terms of one taxonomy by ascending ID.
func (i *Index) TermsByTaxonomy(_ context.Context, taxonomy string, offset, limit int) ([]content.Term, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var matched []content.Term
	for _, t := range i.terms {
		if t.Taxonomy == taxonomy {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].ID < matched[b].ID })
	return page(matched, offset, limit), nil
}

// Authors pages through authors by ascending ID.
func (i *Index) Authors(_ context.Context, offset, limit int) ([]content.Author, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	matched := append([]content.Author(nil), i.authors...)
	sort.Slice(matched, func(a, b int) bool { return matched[a].ID < matched[b].ID })
	return page(matched, offset, limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 || offset >= len(items) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}
