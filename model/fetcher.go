package model

import "context"

// PageFetcher retrieves one page of characters. Pages are 1-indexed. A failed
// fetch returns a *FetchError.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) (Page, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, page int) (Page, error)

// FetchPage calls f(ctx, page).
func (f PageFetcherFunc) FetchPage(ctx context.Context, page int) (Page, error) {
	return f(ctx, page)
}

type freshKey struct{}

// WithFresh marks ctx so that caching fetchers skip stored pages and go to
// the source. The fetched page may still be stored.
func WithFresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

// IsFresh reports whether ctx was marked by WithFresh.
func IsFresh(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshKey{}).(bool)
	return fresh
}
