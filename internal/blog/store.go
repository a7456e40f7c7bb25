package blog

import (
	"context"
	"errors"

	"github.com/aTylerRobertson/sheet-posting/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrPostNotFound - no visible post carries the requested slug. Callers
// treat it as "back to the blog index", not as a fault.
var ErrPostNotFound = errors.New("post not found")

// Store is the read facade over the blog cache, consumed by the web
// layer. All operations for one identifier share the same cache entry,
// so a page render never triggers more than one refresh.
type Store struct {
	cache *Cache
}

func NewStore(cache *Cache) *Store {
	return &Store{
		cache: cache,
	}
}

// GetAllPosts returns all visible posts for the blog, in sheet order.
func (s *Store) GetAllPosts(ctx context.Context, spreadsheetID string) (posts []Post, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "blogStore.getAllPosts")
	span.SetAttributes(attribute.String("spreadsheet.id", spreadsheetID))
	defer span.End()

	entry, err := s.cache.GetOrFetch(ctx, spreadsheetID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return entry.Posts(), nil
}

// GetSinglePost looks one post up by its slug, case-insensitively.
func (s *Store) GetSinglePost(ctx context.Context, spreadsheetID, slug string) (Post, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "blogStore.getSinglePost")
	span.SetAttributes(attribute.String("spreadsheet.id", spreadsheetID))
	span.SetAttributes(attribute.String("post.slug", slug))
	defer span.End()

	entry, err := s.cache.GetOrFetch(ctx, spreadsheetID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Post{}, err
	}

	post, ok := entry.Post(slug)
	if !ok {
		return Post{}, ErrPostNotFound
	}

	return post, nil
}

// GetSEO returns the blog's SEO settings; default-empty values when the
// sheet has none.
func (s *Store) GetSEO(ctx context.Context, spreadsheetID string) (SEO, error) {
	entry, err := s.cache.GetOrFetch(ctx, spreadsheetID)
	if err != nil {
		return SEO{}, err
	}
	return entry.Meta.SEO, nil
}

// GetCSS returns the blog's stylesheet text; empty when the sheet has
// none.
func (s *Store) GetCSS(ctx context.Context, spreadsheetID string) (string, error) {
	entry, err := s.cache.GetOrFetch(ctx, spreadsheetID)
	if err != nil {
		return "", err
	}
	return entry.Meta.CSS, nil
}
