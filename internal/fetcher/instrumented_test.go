package fetcher

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs an always-sampling provider backed by an in-memory
// exporter.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func spanAttrMap(s tracetest.SpanStub) map[string]string {
	m := make(map[string]string)
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}

func TestInstrumentedFetcher_success(t *testing.T) {
	exporter := setupTestTracer(t)
	f := NewInstrumentedFetcher(NewMockFetcher())

	page, err := f.FetchPage(context.Background(), 4)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(page.Items))
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "charlist.page" {
		t.Errorf("span name = %q, want charlist.page", spans[0].Name)
	}
	attrs := spanAttrMap(spans[0])
	if attrs["charlist.page"] != "4" {
		t.Errorf("charlist.page = %q, want 4", attrs["charlist.page"])
	}
	if attrs["charlist.item_count"] != "2" {
		t.Errorf("charlist.item_count = %q, want 2", attrs["charlist.item_count"])
	}
	if attrs["charlist.has_more"] != "false" {
		t.Errorf("charlist.has_more = %q, want false", attrs["charlist.has_more"])
	}
}

func TestInstrumentedFetcher_errorSetsStatus(t *testing.T) {
	exporter := setupTestTracer(t)
	f := NewInstrumentedFetcher(NewErrorFetcher())

	if _, err := f.FetchPage(context.Background(), 1); err == nil {
		t.Fatal("FetchPage() error = nil, want error")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
}
