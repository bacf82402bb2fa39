package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "tasks-api/api"
	listSpanName     = "tasks.list"
	listMetricsEvent = "tasks.list.metrics"
	listRoute        = "/api/tasks"
)

// listRequestMetrics collects timings for a single list request and emits
// them as one log line and one span event when the request finishes.
type listRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	fetchDuration  time.Duration
	encodeDuration time.Duration
	filterProvided bool
	tasksReturned  int
	errorStage     string
	err            error
}

func newListRequestMetrics(ctx context.Context, logger *log.Logger) (*listRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, listSpanName,
		trace.WithAttributes(attribute.String("http.route", listRoute)))
	return &listRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *listRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *listRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *listRequestMetrics) SetFilterProvided(provided bool) {
	m.filterProvided = provided
}

func (m *listRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

// Fail records the stage a request failed at along with the cause.
func (m *listRequestMetrics) Fail(stage string, err error) {
	if stage != "" {
		m.errorStage = stage
	}
	if err != nil {
		m.err = err
	}
}

// Log writes the metrics line and ends the span.
func (m *listRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.err
	}

	total := time.Since(m.start)
	fields := log.Fields{
		"route":           listRoute,
		"status":          status,
		"total_ms":        durationToMillis(total),
		"filter_provided": m.filterProvided,
		"tasks_returned":  m.tasksReturned,
	}
	attrs := []attribute.KeyValue{
		attribute.Int("http.status_code", status),
		attribute.Float64("tasks.total_ms", durationToMillis(total)),
		attribute.Bool("tasks.filter_provided", m.filterProvided),
		attribute.Int("tasks.tasks_returned", m.tasksReturned),
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
		attrs = append(attrs, attribute.Float64("tasks.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
		attrs = append(attrs, attribute.Float64("tasks.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
		attrs = append(attrs, attribute.String("tasks.error_stage", m.errorStage))
	}
	if err != nil {
		fields["error"] = err.Error()
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	level := levelForStatus(status, err)
	if m.span != nil {
		sc := m.span.SpanContext()
		if sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		m.span.SetAttributes(attrs...)
		m.span.AddEvent(listMetricsEvent, trace.WithAttributes(
			append(attrs, attribute.String("severity_text", severityText(level)))...))
		if level <= log.ErrorLevel {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger != nil {
		m.logger.WithFields(fields).Log(level, listMetricsEvent)
	}
}

// levelForStatus maps a response to a log level: 5xx and unexplained
// errors are errors, 4xx are warnings.
func levelForStatus(status int, err error) log.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return log.ErrorLevel
	case status >= http.StatusBadRequest:
		return log.WarnLevel
	case status == 0 && err != nil:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func severityText(level log.Level) string {
	switch level {
	case log.ErrorLevel:
		return "ERROR"
	case log.WarnLevel:
		return "WARN"
	default:
		return "INFO"
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
