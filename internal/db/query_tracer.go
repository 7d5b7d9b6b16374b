package db

import (
	"context"
	"errors"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

type querySpanContextKey struct{}

// queryTracer reports each order store query as a child span of the
// request or sweep that issued it.
type queryTracer struct {
	maxStatementLen int
}

func newQueryTracer() *queryTracer {
	return &queryTracer{maxStatementLen: 512}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := t.normalize(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.sql.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	span.SetData("db.collection.name", "orders")
	if verb := statementVerb(statement); verb != "" {
		span.SetData("db.operation", verb)
	}
	span.SetData("db.args", len(data.Args))

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}
	defer span.Finish()

	switch {
	case data.Err == nil:
		span.Status = sentry.SpanStatusOK
	case errors.Is(data.Err, pgx.ErrNoRows):
		span.Status = sentry.SpanStatusNotFound
	default:
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	}

	if rows := data.CommandTag.RowsAffected(); rows >= 0 {
		span.SetData("db.rows_affected", rows)
	}
}

func (t *queryTracer) normalize(statement string) string {
	normalized := strings.Join(strings.Fields(statement), " ")
	if normalized == "" {
		return "sql.query"
	}
	if len(normalized) > t.maxStatementLen {
		return normalized[:t.maxStatementLen]
	}
	return normalized
}

func statementVerb(statement string) string {
	verb, _, _ := strings.Cut(statement, " ")
	return strings.ToUpper(verb)
}
