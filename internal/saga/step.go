package saga

import (
	"context"
	"time"
)

// StepStatus is the lifecycle state of an individual saga step.
type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepExecuting    StepStatus = "executing"
	StepCompleted    StepStatus = "completed"
	StepFailed       StepStatus = "failed"
	StepCompensating StepStatus = "compensating"
	StepCompensated  StepStatus = "compensated"
)

// Action is a saga step's forward operation. It receives the saga's merged
// context and returns a result that is kept on the Step (Step.Result) and
// handed to that step's compensation under the "step_result" context key.
// Later steps see only what an action writes into the shared context map.
type Action func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error)

// Compensation undoes the effect of a completed Action. Compensation
// failures are logged but never fail the saga further; a stuck
// compensation is a manual-investigation matter, not a retryable one.
type Compensation func(ctx context.Context, sagaCtx map[string]interface{}) error

// Step is one forward/compensation pair in a Saga.
type Step struct {
	Name         string
	Action       Action
	Compensation Compensation
	Context      map[string]interface{}
	MaxRetries   int

	Status        StepStatus
	Result        interface{}
	Err           error
	RetryCount    int
	ExecutedAt    *time.Time
	CompensatedAt *time.Time
}

func newStep(name string, action Action, compensation Compensation, stepCtx map[string]interface{}, maxRetries int) *Step {
	return &Step{
		Name:         name,
		Action:       action,
		Compensation: compensation,
		Context:      stepCtx,
		MaxRetries:   maxRetries,
		Status:       StepPending,
	}
}

// combinedContext merges a saga's context with a step's own context, per
// spec §4.3 — the step's context wins on key collisions since it is the
// more specific of the two.
func combinedContext(sagaCtx, stepCtx map[string]interface{}) map[string]interface{} {
	if len(stepCtx) == 0 {
		return sagaCtx
	}
	merged := make(map[string]interface{}, len(sagaCtx)+len(stepCtx))
	for k, v := range sagaCtx {
		merged[k] = v
	}
	for k, v := range stepCtx {
		merged[k] = v
	}
	return merged
}
