package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	return exporter
}

func spanAttrs(s tracetest.SpanStub) map[string]string {
	attrs := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	return attrs
}

func TestQueryTracer_Success(t *testing.T) {
	exporter := setupTestTracer(t)

	qt := NewQueryTracer(0, nil)
	_, end := qt.Trace(context.Background(), "FindUserByID", "SELECT * FROM users WHERE user_id = $1")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.FindUserByID", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	attrs := spanAttrs(spans[0])
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, "FindUserByID", attrs["db.operation"])
	assert.Equal(t, "SELECT * FROM users WHERE user_id = $1", attrs["db.statement"])
}

func TestQueryTracer_Error(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := NewQueryTracer(0, nil).Trace(context.Background(), "CreateUser", "INSERT INTO users")
	end(errors.New("duplicate key"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "duplicate key", spans[0].Status.Description)
	assert.Len(t, spans[0].Events, 1)
}

func TestQueryTracer_NilReceiver(t *testing.T) {
	exporter := setupTestTracer(t)

	var qt *QueryTracer
	ctx, end := qt.Trace(context.Background(), "Any", "SELECT 1")
	require.NotNil(t, ctx)
	end(nil)

	assert.Len(t, exporter.GetSpans(), 1)
}

func TestQueryTracer_CustomSystem(t *testing.T) {
	exporter := setupTestTracer(t)

	qt := &QueryTracer{System: "redis"}
	_, end := qt.Trace(context.Background(), "GetToken", "GET")
	end(nil)

	assert.Equal(t, "redis", spanAttrs(exporter.GetSpans()[0])["db.system"])
}

func TestQueryTracer_SlowQueryLogged(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	qt := NewQueryTracer(time.Nanosecond, slog.New(slog.NewJSONHandler(&buf, nil)))

	_, end := qt.Trace(context.Background(), "ListUsers", "SELECT * FROM users")
	end(errors.New("canceling statement"))

	out := buf.String()
	assert.Contains(t, out, "slow query detected")
	assert.Contains(t, out, "ListUsers")
	assert.Contains(t, out, "canceling statement")
}

func TestQueryTracer_FastQueryNotLogged(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	qt := NewQueryTracer(time.Hour, slog.New(slog.NewJSONHandler(&buf, nil)))

	_, end := qt.Trace(context.Background(), "FindUserByID", "SELECT 1")
	end(nil)

	assert.Zero(t, buf.Len())
}
