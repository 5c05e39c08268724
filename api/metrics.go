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
	tracerName    = "todo-api/api"
	listSpanName  = "tasks.list"
	listRoutePath = "/api/users/:userID/tasks"
)

// listRequestMetrics tracks timings and result shape of a single list request.
// It backs both the request span and the structured metrics log line.
type listRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	queryDuration  time.Duration
	encodeDuration time.Duration
	filterApplied  bool
	tasksReturned  int
	totalMatched   int
	errorStage     string
}

func newListRequestMetrics(ctx context.Context, logger *log.Logger) (*listRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, listSpanName)
	return &listRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *listRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *listRequestMetrics) ObserveQuery(duration time.Duration) {
	if duration > 0 {
		m.queryDuration = duration
	}
}

func (m *listRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *listRequestMetrics) SetFilterApplied(applied bool) {
	m.filterApplied = applied
}

func (m *listRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *listRequestMetrics) SetTotalMatched(count int) {
	if count < 0 {
		count = 0
	}
	m.totalMatched = count
}

func (m *listRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the request span and emits the metrics log line.
func (m *listRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := time.Since(m.start)

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", listRoutePath),
			attribute.Int("http.status_code", status),
			attribute.Float64("tasks.list.total_ms", durationToMillis(total)),
			attribute.Int("tasks.list.returned", m.tasksReturned),
			attribute.Int("tasks.list.total_matched", m.totalMatched),
			attribute.Bool("tasks.list.filter_applied", m.filterApplied),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("tasks.list.error_stage", m.errorStage))
		}
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":          listRoutePath,
		"status":         status,
		"total_ms":       durationToMillis(total),
		"filter_applied": m.filterApplied,
		"tasks_returned": m.tasksReturned,
		"total_matched":  m.totalMatched,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.queryDuration > 0 {
		fields["query_ms"] = durationToMillis(m.queryDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}

	m.logger.WithFields(fields).Info("tasks.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
