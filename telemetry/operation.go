// Package telemetry publishes a convergence run as an OpenTelemetry
// operation: a root span carrying the planned steps, then one child
// span per executed step. The CLI subscribes a span processor to render
// step progress; any OTLP pipeline wired into the global provider sees
// the same spans.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	PlanEventName  = "bringup.plan"
	PlanVersion    = "1"
	PlanVersionKey = "bringup.plan.version"
	PlanJSONKey    = "bringup.plan.json"
)

// PlannedStep is one step of an operation plan.
type PlannedStep struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Plan is the ordered set of steps an operation intends to run.
// Steps may be skipped (a short-circuited run never starts them).
type Plan struct {
	Steps []PlannedStep `json:"steps"`
}

// Operation is a started plan. A nil Operation is valid and inert, so
// callers without a tracer run their steps undecorated.
type Operation struct {
	tracer trace.Tracer
	span   trace.Span
}

// EmitPlan starts the operation's root span with the plan attached as a
// JSON attribute and event.
func EmitPlan(ctx context.Context, tracer trace.Tracer, operation string, plan Plan) (*Operation, error) {
	if tracer == nil {
		return nil, fmt.Errorf("emit plan: tracer is required")
	}
	if err := validatePlan(plan); err != nil {
		return nil, fmt.Errorf("emit plan: %w", err)
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("emit plan: marshal: %w", err)
	}

	_, span := tracer.Start(ctx, operation, trace.WithAttributes(
		attribute.String(PlanVersionKey, PlanVersion),
		attribute.String(PlanJSONKey, string(planJSON)),
	))
	span.AddEvent(PlanEventName, trace.WithAttributes(
		attribute.String(PlanVersionKey, PlanVersion),
		attribute.String(PlanJSONKey, string(planJSON)),
	))

	return &Operation{tracer: tracer, span: span}, nil
}

// RunStep executes fn inside a child span named id, keeping the caller's
// ctx for cancellation. On a nil Operation fn runs with ctx undecorated.
// A step error is recorded on the span and returned unchanged.
func (o *Operation) RunStep(ctx context.Context, id string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}

	stepCtx, span := o.tracer.Start(trace.ContextWithSpan(ctx, o.span), id)
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// End closes the root span, recording err when the operation failed.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}

func validatePlan(plan Plan) error {
	if len(plan.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	seen := make(map[string]struct{}, len(plan.Steps))
	for i, step := range plan.Steps {
		id := strings.TrimSpace(step.ID)
		if id == "" {
			return fmt.Errorf("step %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate step id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
