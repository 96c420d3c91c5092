package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"bringup/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// StepOutput renders convergence steps as they run, driven by the
// operation spans: the root span's plan names the steps, each child
// span start/end becomes a progress line.
type StepOutput struct {
	provider *sdktrace.TracerProvider
}

// NewStepOutput builds a tracer provider whose only consumer is the
// step line renderer.
func NewStepOutput() *StepOutput {
	processor := &stepLineProcessor{titles: make(map[string]string)}
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(processor))
	return &StepOutput{provider: provider}
}

// Tracer returns the tracer to hand to the orchestrator.
func (o *StepOutput) Tracer(name string) trace.Tracer {
	return o.provider.Tracer(name)
}

// Close flushes and shuts the provider down.
func (o *StepOutput) Close() {
	_ = o.provider.Shutdown(context.Background())
}

type stepLineProcessor struct {
	mu     sync.Mutex
	titles map[string]string
}

func (p *stepLineProcessor) OnStart(_ context.Context, span sdktrace.ReadWriteSpan) {
	if !span.Parent().IsValid() {
		// Root span: remember the planned titles for the step lines.
		planJSON := attributeValue(span.Attributes(), telemetry.PlanJSONKey)
		if planJSON == "" {
			return
		}
		var plan telemetry.Plan
		if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
			return
		}
		p.mu.Lock()
		for _, step := range plan.Steps {
			p.titles[step.ID] = step.Title
		}
		p.mu.Unlock()
		return
	}

	fmt.Fprintf(os.Stderr, "  %s %s\n", Muted("[->]"), p.title(span.Name()))
}

func (p *stepLineProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if !span.Parent().IsValid() {
		return
	}

	status := span.Status()
	if status.Code == codes.Error {
		line := fmt.Sprintf("  %s %s", ErrorStyle.Render("[x]"), p.title(span.Name()))
		if msg := strings.TrimSpace(status.Description); msg != "" {
			line += " (" + msg + ")"
		}
		fmt.Fprintln(os.Stderr, line)
		return
	}
	fmt.Fprintf(os.Stderr, "  %s %s\n", Success("[ok]"), p.title(span.Name()))
}

func (p *stepLineProcessor) Shutdown(context.Context) error   { return nil }
func (p *stepLineProcessor) ForceFlush(context.Context) error { return nil }

func (p *stepLineProcessor) title(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if title, ok := p.titles[id]; ok {
		return title
	}
	return id
}

func attributeValue(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}
