package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName 任务 span 的 instrumentation 名称.
const InstrumentationName = "github.com/Tsukikage7/cronjob"

// span 属性键.
const (
	AttrJobName     = attribute.Key("cronjob.job.name")
	AttrJobID       = attribute.Key("cronjob.job.id")
	AttrScheduledAt = attribute.Key("cronjob.tick.scheduled_at")
	AttrManual      = attribute.Key("cronjob.tick.manual")
)

// Tracer 从 TracerProvider 获取任务 tracer，tp 为 nil 时使用全局 provider.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// TickInfo 一次触发的描述.
type TickInfo struct {
	JobName     string
	JobID       string
	ScheduledAt time.Time
	Manual      bool
}

// StartTick 为一次触发开启 span.
func StartTick(ctx context.Context, tracer trace.Tracer, info TickInfo) (context.Context, trace.Span) {
	name := "cronjob.tick"
	if info.JobName != "" {
		name += " " + info.JobName
	}
	attrs := []attribute.KeyValue{
		AttrJobID.String(info.JobID),
		AttrManual.Bool(info.Manual),
	}
	if info.JobName != "" {
		attrs = append(attrs, AttrJobName.String(info.JobName))
	}
	if !info.ScheduledAt.IsZero() {
		attrs = append(attrs, AttrScheduledAt.String(info.ScheduledAt.Format(time.RFC3339Nano)))
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndTick 根据回调结果设置 span 状态并结束 span.
func EndTick(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID 返回 ctx 中 span 的 traceId，没有有效 span 时返回空字符串.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
