package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	cardsRoute       = "/api/card/get-by-board-id/:boardId"
	cardsSpanName    = "cards.list"
	cardsEventName   = "cards.request"
	cardsEventDomain = "kanban"
)

// cardListMetrics times the stages of one card-list request, records them on
// an otel span and emits a single structured observability event when the
// request finishes.
type cardListMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	cardsReturned  int
	errorStage     string
}

func newCardListMetrics(ctx context.Context, logger *log.Logger) (*cardListMetrics, context.Context) {
	m := &cardListMetrics{
		logger: logger,
		start:  time.Now(),
	}
	spanCtx, span := otel.Tracer("kanban-api").Start(ctx, cardsSpanName)
	m.span = span
	return m, spanCtx
}

func (m *cardListMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *cardListMetrics) ObserveFetch(duration time.Duration) {
	if duration > 0 {
		m.fetchDuration = duration
	}
}

func (m *cardListMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *cardListMetrics) SetCardsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.cardsReturned = count
}

func (m *cardListMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits the observability event. Must be called
// exactly once per request.
func (m *cardListMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	attrs := []attribute.KeyValue{
		attribute.String("http.route", cardsRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("kanban.cards.total_ms", totalMs),
		attribute.Int("kanban.cards.cards_returned", m.cardsReturned),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("kanban.cards.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("kanban.cards.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("kanban.cards.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("kanban.cards.error_stage", m.errorStage))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		if err != nil || m.errorStage != "" {
			m.span.SetStatus(codes.Error, m.errorStage)
			if err != nil {
				m.span.RecordError(err)
			}
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.AddEvent("observability.event", trace.WithAttributes(attrs...))
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":   cardsEventName,
		"event.domain": cardsEventDomain,
		"attributes":   attrMap,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
