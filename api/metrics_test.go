package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestCardListMetricsLogProducesObservabilityEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newCardListMetrics(context.Background(), logger)
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.ObserveAuth(10 * time.Millisecond)
	metrics.ObserveFetch(15 * time.Millisecond)
	metrics.ObserveEncode(5 * time.Millisecond)
	metrics.SetCardsReturned(3)

	metrics.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Message != "observability.event" {
		t.Fatalf("unexpected message: %s", entry.Message)
	}
	if got := entry.Data["event.name"]; got != cardsEventName {
		t.Fatalf("unexpected event name: %v", got)
	}
	if got := entry.Data["event.domain"]; got != cardsEventDomain {
		t.Fatalf("unexpected event domain: %v", got)
	}
	attrsVal, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrsVal["http.route"] != cardsRoute {
		t.Fatalf("unexpected route attribute: %#v", attrsVal["http.route"])
	}
	switch v := attrsVal["kanban.cards.cards_returned"].(type) {
	case int64:
		if v != 3 {
			t.Fatalf("unexpected cards returned: %v", v)
		}
	case int:
		if v != 3 {
			t.Fatalf("unexpected cards returned: %v", v)
		}
	default:
		t.Fatalf("unexpected type for cards returned: %T", v)
	}
	if total, ok := attrsVal["kanban.cards.total_ms"].(float64); !ok || total == 0 {
		t.Fatalf("expected total duration attribute, got %#v", attrsVal["kanban.cards.total_ms"])
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("expected trace_id to be recorded, got %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != cardsSpanName {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if spanAttrs["http.route"] != cardsRoute {
		t.Fatalf("span route attribute mismatch: %#v", spanAttrs["http.route"])
	}
	if code, ok := spanAttrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("unexpected http.status_code on span: %#v", spanAttrs["http.status_code"])
	}
	if stage, exists := spanAttrs["kanban.cards.error_stage"]; exists && stage != "" {
		t.Fatalf("expected no error stage, got %#v", stage)
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", span.Status.Code)
	}

	var event sdktrace.Event
	for _, ev := range span.Events {
		if ev.Name == "observability.event" {
			event = ev
			break
		}
	}
	if event.Name == "" {
		t.Fatalf("expected observability.event span event, got %#v", span.Events)
	}
	eventAttrs := attributesToMap(event.Attributes)
	if total, ok := eventAttrs["kanban.cards.total_ms"].(float64); !ok || total == 0 {
		t.Fatalf("expected span event total_ms to be set, got %#v", eventAttrs["kanban.cards.total_ms"])
	}
}

func TestCardListMetricsLogWithErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newCardListMetrics(context.Background(), logger)
	metrics.SetErrorStage("fetch")
	boom := errors.New("store failure")

	metrics.Log(http.StatusInternalServerError, boom)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Fatalf("expected span status error, got %v", span.Status.Code)
	}
	if span.Status.Description != "fetch" {
		t.Fatalf("expected error stage as status description, got %q", span.Status.Description)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if spanAttrs["kanban.cards.error_stage"] != "fetch" {
		t.Fatalf("expected error stage attribute, got %#v", spanAttrs["kanban.cards.error_stage"])
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["error"] != boom.Error() {
		t.Fatalf("expected error field, got %#v", entry.Data["error"])
	}
}

func TestDurationToMillis(t *testing.T) {
	if got := durationToMillis(0); got != 0 {
		t.Fatalf("zero duration should be 0, got %v", got)
	}
	if got := durationToMillis(-time.Second); got != 0 {
		t.Fatalf("negative duration should be 0, got %v", got)
	}
	if got := durationToMillis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("expected 1.5ms, got %v", got)
	}
}
