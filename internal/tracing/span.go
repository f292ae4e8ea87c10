package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/walwatch/internal/engine"
)

const (
	AttrScenarioID     = attribute.Key("walwatch.scenario.id")
	AttrStepLabel      = attribute.Key("walwatch.step.label")
	AttrRunID          = attribute.Key("walwatch.run.id")
	AttrSQLiteVersion  = attribute.Key("walwatch.sqlite.version")
	AttrSQLiteSourceID = attribute.Key("walwatch.sqlite.source_id")
	AttrDriverVersion  = attribute.Key("walwatch.sqlite.driver_version")

	AttrCheckpointBusy   = attribute.Key("walwatch.checkpoint.busy")
	AttrWALFrames        = attribute.Key("walwatch.checkpoint.wal_frames")
	AttrCheckpointFrames = attribute.Key("walwatch.checkpoint.checkpointed_frames")
	AttrPagesUsed        = attribute.Key("walwatch.pages.used")
	AttrPagesFree        = attribute.Key("walwatch.pages.free")
)

// StartScenarioSpan starts the parent span of one scenario run.
func StartScenarioSpan(ctx context.Context, tracer trace.Tracer, scenarioID int, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "walwatch.scenario",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrScenarioID.Int(scenarioID), AttrRunID.String(runID)),
	)
}

// StartStepSpan starts a span for one driver step.
func StartStepSpan(ctx context.Context, tracer trace.Tracer, label string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "driver.step", trace.WithSpanKind(trace.SpanKindInternal))
	if label != "" {
		span.SetAttributes(AttrStepLabel.String(label))
	}
	return ctx, span
}

// RecordCheckpoint adds the wal_checkpoint counters to the span in ctx.
func RecordCheckpoint(ctx context.Context, res engine.CheckpointResult) {
	trace.SpanFromContext(ctx).AddEvent("wal_checkpoint", trace.WithAttributes(
		AttrCheckpointBusy.Bool(res.Busy),
		AttrWALFrames.Int64(res.LogFrames),
		AttrCheckpointFrames.Int64(res.CheckpointedFrames),
	))
}

// RecordPageUsage adds the page counts to the span in ctx.
func RecordPageUsage(ctx context.Context, usage engine.PageUsage) {
	trace.SpanFromContext(ctx).AddEvent("page_usage", trace.WithAttributes(
		AttrPagesUsed.Int64(usage.Used),
		AttrPagesFree.Int64(usage.Free),
	))
}

// EndSpan sets the status from err and ends the span.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
