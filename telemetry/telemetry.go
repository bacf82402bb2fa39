// Package telemetry configures logging and tracing for the service.
package telemetry

import (
	"context"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"tasks-api/config"
)

const serviceName = "tasks-api"

// NewLogger returns a logger writing to out in the configured format.
func NewLogger(cfg config.Config, out io.Writer) *log.Logger {
	logger := log.New()
	logger.SetOutput(out)
	if cfg.LogFormat == config.LogFormatJSON {
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// SetupTracing installs the global tracer provider and W3C trace context
// propagation. Finished spans are written to logger when logSpans is set;
// otherwise spans are sampled but not exported. The returned function
// flushes and stops the provider.
func SetupTracing(logger *log.Logger, logSpans bool) func(context.Context) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	if logSpans {
		opts = append(opts, sdktrace.WithBatcher(NewLogExporter(logger)))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown
}

// LogExporter writes finished spans as logrus entries.
type LogExporter struct {
	logger *log.Logger
}

// NewLogExporter creates an exporter for logger.
func NewLogExporter(logger *log.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := log.Fields{
			"span":        s.Name(),
			"trace_id":    s.SpanContext().TraceID().String(),
			"span_id":     s.SpanContext().SpanID().String(),
			"duration_ms": float64(s.EndTime().Sub(s.StartTime())) / float64(time.Millisecond),
			"status":      s.Status().Code.String(),
		}
		if p := s.Parent(); p.IsValid() {
			fields["parent_span_id"] = p.SpanID().String()
		}
		for _, kv := range s.Attributes() {
			fields["attr."+string(kv.Key)] = kv.Value.AsInterface()
		}
		entry := e.logger.WithFields(fields)
		if desc := s.Status().Description; desc != "" {
			entry = entry.WithField("status_description", desc)
		}
		entry.Info("span")
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error { return nil }
