// Package workflow runs named steps in sequence over a shared state value.
package workflow

import (
	"context"
	"errors"
	"fmt"
)

// ErrHalt stops a flow early without failing it. Steps return it once the
// state already holds a final outcome.
var ErrHalt = errors.New("workflow halted")

type Step[S any] struct {
	Name    string
	Execute func(ctx context.Context, state *S) error
}

func NewStep[S any](name string, execute func(ctx context.Context, state *S) error) *Step[S] {
	return &Step[S]{
		Name:    name,
		Execute: execute,
	}
}

// StepError reports which step failed.
type StepError struct {
	Flow string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s step failed: %v", e.Flow, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Hook observes step boundaries. It is called before each step runs.
type Hook func(ctx context.Context, flow, step string)

type Flow[S any] struct {
	name  string
	steps []*Step[S]
	hooks []Hook
}

func NewFlow[S any](name string, steps ...*Step[S]) *Flow[S] {
	return &Flow[S]{name: name, steps: steps}
}

func (f *Flow[S]) StepNames() []string {
	names := make([]string, len(f.steps))
	for i, s := range f.steps {
		names[i] = s.Name
	}
	return names
}

func (f *Flow[S]) Observe(hook Hook) *Flow[S] {
	f.hooks = append(f.hooks, hook)
	return f
}

// Run executes the steps in order. The first step to return ErrHalt ends the
// flow successfully; any other error ends it with a *StepError. A cancelled
// ctx is checked between steps, never inside one.
func (f *Flow[S]) Run(ctx context.Context, state *S) error {
	for _, step := range f.steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Flow: f.name, Step: step.Name, Err: err}
		}
		for _, hook := range f.hooks {
			hook(ctx, f.name, step.Name)
		}
		if err := step.Execute(ctx, state); err != nil {
			if errors.Is(err, ErrHalt) {
				return nil
			}
			return &StepError{Flow: f.name, Step: step.Name, Err: err}
		}
	}
	return nil
}
