// Package postgres provides a Postgres-backed SiteIndex.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ampscan/ampscan/internal/content"
	storepg "github.com/ampscan/ampscan/internal/store/postgres"
)

// Index implements content.SiteIndex over four tables:
//
//	CREATE TABLE site_settings (id SMALLINT PRIMARY KEY DEFAULT 1, settings JSONB NOT NULL);
//	CREATE TABLE posts   (id BIGINT PRIMARY KEY, post_type TEXT, permalink TEXT, status TEXT, amp_enabled BOOLEAN);
//	CREATE TABLE terms   (id BIGINT PRIMARY KEY, taxonomy TEXT, link TEXT);
//	CREATE TABLE authors (id BIGINT PRIMARY KEY, archive_url TEXT);
type Index struct {
	pool storepg.Pool
}

// NewIndex constructs an Index over an existing pool.
func NewIndex(pool storepg.Pool) *Index {
	return &Index{pool: pool}
}

// Settings loads the singleton settings row.
func (i *Index) Settings(ctx context.Context) (content.Settings, error) {
	var raw []byte
	err := i.pool.QueryRow(ctx, `SELECT settings FROM site_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return content.Settings{SupportedTemplates: map[string]bool{}}, nil
	}
	if err != nil {
		return content.Settings{}, fmt.Errorf("load site settings: %w", err)
	}
	var settings struct {
		HomeURL            string          `json:"home_url"`
		ShowOnFront        string          `json:"show_on_front"`
		SupportedTemplates map[string]bool `json:"supported_templates"`
		PublicPostTypes    []string        `json:"public_post_types"`
		PublicTaxonomies   []string        `json:"public_taxonomies"`
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return content.Settings{}, fmt.Errorf("decode site settings: %w", err)
	}
	if settings.SupportedTemplates == nil {
		settings.SupportedTemplates = map[string]bool{}
	}
	return content.Settings{
		HomeURL:            settings.HomeURL,
		ShowOnFront:        settings.ShowOnFront,
		SupportedTemplates: settings.SupportedTemplates,
		PublicPostTypes:    settings.PublicPostTypes,
		PublicTaxonomies:   settings.PublicTaxonomies,
	}, nil
}

// PostsByType pages published posts of one type, newest first. Attachments
// inherit their parent's status, so they are matched on "inherit" instead of
// "publish".
func (i *Index) PostsByType(ctx context.Context, postType string, offset, limit int) ([]content.Post, error) {
	status := "publish"
	if postType == "attachment" {
		status = "inherit"
	}
	rows, err := i.pool.Query(ctx,
		`SELECT id, post_type, permalink, amp_enabled
		 FROM posts
		 WHERE post_type = $1 AND status = $2
		 ORDER BY id DESC
		 OFFSET $3 LIMIT $4`,
		postType, status, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s posts: %w", postType, err)
	}
	defer rows.Close()

	var posts []content.Post
	for rows.Next() {
		var p content.Post
		if err := rows.Scan(&p.ID, &p.Type, &p.Permalink, &p.AMPEnabled); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post rows: %w", err)
	}
	return posts, nil
}

// TermsByTaxonomy pages terms of one taxonomy by ascending ID.
func (i *Index) TermsByTaxonomy(ctx context.Context, taxonomy string, offset, limit int) ([]content.Term, error) {
	rows, err := i.pool.Query(ctx,
		`SELECT id, taxonomy, link
		 FROM terms
		 WHERE taxonomy = $1
		 ORDER BY id ASC
		 OFFSET $2 LIMIT $3`,
		taxonomy, offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s terms: %w", taxonomy, err)
	}
	defer rows.Close()

	var terms []content.Term
	for rows.Next() {
		var t content.Term
		if err := rows.Scan(&t.ID, &t.Taxonomy, &t.Link); err != nil {
			return nil, fmt.Errorf("scan term row: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate term rows: %w", err)
	}
	return terms, nil
}

// Authors pages authors by ascending ID.
func (i *Index) Authors(ctx context.Context, offset, limit int) ([]content.Author, error) {
	rows, err := i.pool.Query(ctx,
		`SELECT id, archive_url
		 FROM authors
		 ORDER BY id ASC
		 OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	var authors []content.Author
	for rows.Next() {
		var a content.Author
		if err := rows.Scan(&a.ID, &a.URL); err != nil {
			return nil, fmt.Errorf("scan author row: %w", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate author rows: %w", err)
	}
	return authors, nil
}
