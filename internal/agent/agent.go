// Package agent defines the capability every pipeline agent exposes and the payload and result
// types that flow between them.
package agent

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"
)

// Agent is one pipeline worker. Implementations hold only configuration so one value may serve
// concurrent runs.
type Agent interface {
	Name() string
	Run(ctx context.Context, in Payload) (Result, error)
}

// Step names used by the default plan.
const (
	StepScope      = "scope"
	StepCost       = "cost"
	StepSchedule   = "schedule"
	StepRisk       = "risk"
	StepIntegrator = "integrator"
	StepQuality    = "quality"
)

// ErrMissingInput reports a payload that lacks an upstream result the agent needs.
var ErrMissingInput = errors.New("missing agent input")

// Func adapts a function into an Agent.
type Func struct {
	name string
	fn   func(ctx context.Context, in Payload) (Result, error)
}

// NewFunc constructs a named function agent.
func NewFunc(name string, fn func(ctx context.Context, in Payload) (Result, error)) Func {
	return Func{name: name, fn: fn}
}

// Name returns the agent name.
func (f Func) Name() string {
	return f.name
}

// Run calls the wrapped function.
func (f Func) Run(ctx context.Context, in Payload) (Result, error) {
	return f.fn(ctx, in)
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard)
}
