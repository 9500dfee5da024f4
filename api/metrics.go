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
	moveRoute       = "/api/cards/:id/move"
	moveSpanName    = "board.move"
	moveEventName   = "board.move.request"
	moveEventDomain = "board"
	tracerName      = "board-api/api"
)

// moveRequestMetrics collects per-request timings for the move endpoint
// and emits them both as an otel span and a structured log entry.
type moveRequestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	authDuration  time.Duration
	moveDuration  time.Duration
	cardsReturned int
	errorStage    string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger) (*moveRequestMetrics, context.Context) {
	m := &moveRequestMetrics{logger: logger, start: time.Now()}
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, moveSpanName)
	m.span = span
	return m, spanCtx
}

func (m *moveRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *moveRequestMetrics) ObserveMove(d time.Duration) {
	if d > 0 {
		m.moveDuration = d
	}
}

func (m *moveRequestMetrics) SetCardsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.cardsReturned = count
}

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the span and writes one observability event carrying the
// request's timings.
func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMillis := durationToMillis(time.Since(m.start))
	attrs := []attribute.KeyValue{
		attribute.String("http.route", moveRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.move.total_ms", totalMillis),
		attribute.Int("board.move.cards_returned", m.cardsReturned),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.move.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.moveDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.move.move_ms", durationToMillis(m.moveDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.move.error_stage", m.errorStage))
	}

	severityText, severityNumber := severityForStatus(status, err)
	fields := log.Fields{
		"event.name":      moveEventName,
		"event.domain":    moveEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	attrFields := map[string]any{}
	for _, a := range attrs {
		attrFields[string(a.Key)] = a.Value.AsInterface()
	}
	fields["attributes"] = attrFields

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", moveEventName),
			attribute.String("event.domain", moveEventDomain),
			attribute.String("severity_text", severityText),
		}, attrs...)
		if err != nil {
			eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
		}
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil {
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.End()
	}

	if err != nil {
		fields["error"] = err.Error()
	}
	switch severityText {
	case "ERROR":
		m.logger.WithFields(fields).Error("observability.event")
	case "WARN":
		m.logger.WithFields(fields).Warn("observability.event")
	default:
		m.logger.WithFields(fields).Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= 500:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
