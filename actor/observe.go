package actor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/enverbisevac/actors/actor"

// Op names a client operation reported to an Observer.
type Op string

const (
	OpHold  Op = "hold"
	OpFlush Op = "flush"
	OpGet   Op = "get"
)

// Observer is told about every finished operation.
type Observer interface {
	Observe(op Op, kind string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) Observe(Op, string, time.Duration, error) {}

// span starts a span for op and returns the function finishing it.
func (c *Client[T]) span(ctx context.Context, op Op, resource string) (context.Context, func(error)) {
	begin := time.Now()
	ctx, span := c.tracer.Start(ctx, "actor."+string(op),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("actor.kind", c.kind),
			attribute.String("actor.resource", resource),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		c.observer.Observe(op, c.kind, time.Since(begin), err)
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
