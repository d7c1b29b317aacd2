// Package telemetry centralizes the OpenTelemetry tracing hooks used around
// model calls and tool executions. Only the otel API is referenced; wiring an
// SDK exporter is left to the host application, so spans are no-ops unless a
// global tracer provider is installed.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

const tracerName = "github.com/hupe1980/agentloop"

// Tracer returns the tracer all runtime spans are started from.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartModelSpan opens a span around a single model call.
func StartModelSpan(ctx context.Context, ictx *core.InvocationContext, req *model.Request) (context.Context, trace.Span) {
	return Tracer().Start(
		ctx,
		"model.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agentloop.invocation_id", ictx.InvocationID),
			attribute.String("agentloop.agent", ictx.AgentName()),
			attribute.String("agentloop.branch", ictx.Branch),
			attribute.Bool("agentloop.stream", req.Stream),
			attribute.Int("agentloop.tool_count", len(req.Tools)),
		),
	)
}

// StartToolSpan opens a span around a single tool execution.
func StartToolSpan(ctx context.Context, tctx *core.ToolContext, t tool.Tool) (context.Context, trace.Span) {
	return Tracer().Start(
		ctx,
		"tool.call",
		trace.WithAttributes(
			attribute.String("agentloop.invocation_id", tctx.InvocationID()),
			attribute.String("agentloop.agent", tctx.AgentName()),
			attribute.String("agentloop.tool", t.Name()),
			attribute.String("agentloop.function_call_id", tctx.FunctionCallID()),
			attribute.Bool("agentloop.long_running", t.IsLongRunning()),
		),
	)
}

// EndSpan records the outcome and closes the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
