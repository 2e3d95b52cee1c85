package fetcher

import (
	"context"

	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/model"
)

// InstrumentedFetcher wraps a PageFetcher with a "charlist.page" span.
type InstrumentedFetcher struct {
	next model.PageFetcher
}

// NewInstrumentedFetcher wraps next.
func NewInstrumentedFetcher(next model.PageFetcher) *InstrumentedFetcher {
	return &InstrumentedFetcher{next: next}
}

// FetchPage traces the wrapped fetch and annotates the span with its result.
func (f *InstrumentedFetcher) FetchPage(ctx context.Context, page int) (p model.Page, err error) {
	ctx, span := observability.StartPageSpan(ctx, page)
	defer func() { observability.EndSpanWithError(span, err) }()

	p, err = f.next.FetchPage(ctx, page)
	if err == nil {
		observability.AnnotatePage(span, len(p.Items), p.HasMore)
	}
	return p, err
}
