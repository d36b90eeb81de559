package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "refactorforge"

// StartToolCallSpan starts a span for one MCP tool invocation.
func StartToolCallSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.tool", tool),
		),
	)
}

// StartLSPRequestSpan starts a span for one request to a language server.
func StartLSPRequestSpan(ctx context.Context, language, method string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "lsp.request",
		trace.WithAttributes(
			attribute.String("lsp.language", language),
			attribute.String("lsp.method", method),
		),
	)
}

// StartApplySpan starts a span for one plan application.
func StartApplySpan(ctx context.Context, planID string, files int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "apply",
		trace.WithAttributes(
			attribute.String("plan.id", planID),
			attribute.Int("plan.files", files),
		),
	)
}
