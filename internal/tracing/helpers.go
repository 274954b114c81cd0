package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation scope names.
const (
	tracerName   = "bughunt"
	dbTracerName = "bughunt/db"
)

// DBSystem identifies the database engine behind a span, using the
// OpenTelemetry db.system values.
type DBSystem string

const (
	DBSystemSQLite   DBSystem = "sqlite"
	DBSystemPostgres DBSystem = "postgresql"
)

// DBOperation is the kind of statement a span covers.
type DBOperation string

const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationUpdate DBOperation = "update"
	DBOperationDelete DBOperation = "delete"
	DBOperationExec   DBOperation = "exec"
)

// StartDBSpan opens a client span named "<operation> <table>". The returned
// func ends it and records err when non-nil:
//
//	ctx, end := tracing.StartDBSpan(ctx, tracing.DBSystemSQLite, "bugs", tracing.DBOperationQuery)
//	defer func() { end(err) }()
func StartDBSpan(ctx context.Context, system DBSystem, table string, operation DBOperation) (context.Context, func(error)) {
	name := string(operation)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", string(system)),
		attribute.String("db.operation", string(operation)),
	}
	if table != "" {
		name += " " + table
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}

	ctx, span := otel.Tracer(dbTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, ender(span)
}

// StartSpan opens an internal span with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, ender(span)
}

func ender(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
