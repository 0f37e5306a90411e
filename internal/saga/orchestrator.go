// Package saga implements the distributed-transaction orchestrator that
// keeps the fast reservation store and the durable store in lockstep
// (spec §4.3). It is grounded on original_source/app/core/saga.py's
// SagaOrchestrator/SagaTransaction/SagaStep/BookingSaga, adapted to Go's
// explicit-error-return style in place of Python's exception-driven
// control flow.
package saga

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator executes Sagas step by step, persisting progress after every
// step so an interrupted saga can be recovered (or flagged) on restart.
type Orchestrator struct {
	states *StateRepository
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]*Saga
}

func NewOrchestrator(states *StateRepository, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		states: states,
		logger: logger,
		active: make(map[string]*Saga),
	}
}

// CreateSaga starts a new Saga with the given name and initial context.
func (o *Orchestrator) CreateSaga(name string, sagaCtx map[string]interface{}) *Saga {
	if sagaCtx == nil {
		sagaCtx = make(map[string]interface{})
	}
	s := &Saga{
		ID:        uuid.NewString(),
		Name:      name,
		Context:   sagaCtx,
		Status:    StatusStarted,
		StartedAt: time.Now().UTC(),
	}
	o.mu.Lock()
	o.active[s.ID] = s
	o.mu.Unlock()
	return s
}

// AddStep appends a forward/compensation pair to the saga. Steps run in the
// order they're added; compensations run in reverse order on failure.
// stepCtx is merged into the saga's own context before the action or
// compensation runs, with stepCtx taking precedence on key collisions
// (spec §4.3); pass nil when the step needs nothing beyond the saga's
// shared context.
func (o *Orchestrator) AddStep(s *Saga, name string, action Action, compensation Compensation, stepCtx map[string]interface{}, maxRetries int) *Step {
	step := newStep(name, action, compensation, stepCtx, maxRetries)
	s.Steps = append(s.Steps, step)
	return step
}

func (o *Orchestrator) persist(ctx context.Context, s *Saga) {
	if err := o.states.Persist(ctx, s); err != nil {
		o.logger.Error("failed to persist saga state", zap.String("saga_id", s.ID), zap.Error(err))
	}
}

// ExecuteSaga runs every step of s in order. On the first step failure (all
// retries exhausted) it compensates every previously completed step in
// reverse order and returns false. Returns true only if every step
// completed.
func (o *Orchestrator) ExecuteSaga(ctx context.Context, s *Saga) bool {
	o.logger.Info("saga execution starting", zap.String("saga_id", s.ID), zap.String("name", s.Name))
	s.Status = StatusExecuting
	o.persist(ctx, s)

	executed := make([]*Step, 0, len(s.Steps))

	defer o.cleanup(s.ID)

	for i, step := range s.Steps {
		s.CurrentStepIndex = i
		if o.executeStep(ctx, s, step) {
			executed = append(executed, step)
			o.persist(ctx, s)
			continue
		}

		o.logger.Error("saga step failed, compensating", zap.String("saga_id", s.ID), zap.String("step", step.Name), zap.Error(step.Err))
		s.Status = StatusFailed
		s.Err = step.Err
		o.persist(ctx, s)

		o.compensate(ctx, s, executed)
		return false
	}

	now := time.Now().UTC()
	s.Status = StatusCompleted
	s.CompletedAt = &now
	o.persist(ctx, s)
	o.logger.Info("saga completed", zap.String("saga_id", s.ID), zap.String("name", s.Name))
	return true
}

func (o *Orchestrator) executeStep(ctx context.Context, s *Saga, step *Step) bool {
	step.Status = StepExecuting

	combined := combinedContext(s.Context, step.Context)

	for attempt := 0; attempt <= step.MaxRetries; attempt++ {
		result, err := step.Action(ctx, combined)
		if err == nil {
			now := time.Now().UTC()
			step.Status = StepCompleted
			step.Result = result
			step.ExecutedAt = &now
			return true
		}

		step.RetryCount = attempt + 1
		step.Err = err
		o.logger.Warn("saga step attempt failed", zap.String("saga_id", s.ID), zap.String("step", step.Name), zap.Int("attempt", attempt+1), zap.Error(err))

		if attempt < step.MaxRetries {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			if wait > 10*time.Second {
				wait = 10 * time.Second
			}
			select {
			case <-ctx.Done():
				step.Status = StepFailed
				return false
			case <-time.After(wait):
			}
			continue
		}
		step.Status = StepFailed
		return false
	}
	return false
}

func (o *Orchestrator) compensate(ctx context.Context, s *Saga, executed []*Step) {
	o.logger.Info("saga compensation starting", zap.String("saga_id", s.ID), zap.String("name", s.Name))
	s.Status = StatusCompensating
	o.persist(ctx, s)

	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		if step.Status != StepCompleted {
			continue
		}
		o.compensateStep(ctx, s, step)
		o.persist(ctx, s)
	}

	s.Status = StatusCompensated
	now := time.Now().UTC()
	s.CompletedAt = &now
	o.persist(ctx, s)
	o.logger.Info("saga compensation completed", zap.String("saga_id", s.ID), zap.String("name", s.Name))
}

func (o *Orchestrator) compensateStep(ctx context.Context, s *Saga, step *Step) {
	step.Status = StepCompensating
	if step.Result != nil {
		s.Context["step_result"] = step.Result
	}

	combined := combinedContext(s.Context, step.Context)
	if err := step.Compensation(ctx, combined); err != nil {
		// Compensation failures are logged but never retried or fail the
		// saga further: a stuck compensation needs manual investigation,
		// not another automated attempt.
		o.logger.Error("saga compensation failed", zap.String("saga_id", s.ID), zap.String("step", step.Name), zap.Error(err))
		return
	}
	now := time.Now().UTC()
	step.Status = StepCompensated
	step.CompensatedAt = &now
	o.logger.Info("saga step compensated", zap.String("saga_id", s.ID), zap.String("step", step.Name))
}

func (o *Orchestrator) cleanup(sagaID string) {
	o.mu.Lock()
	delete(o.active, sagaID)
	o.mu.Unlock()
}

// GetSagaStatus returns the persisted state of a saga by id, regardless of
// whether it is still active in this process.
func (o *Orchestrator) GetSagaStatus(ctx context.Context, sagaID string) (*State, error) {
	return o.states.Get(ctx, sagaID)
}

// RecoverIncompleteSagas runs at startup: any saga left started, executing,
// or compensating when the process last stopped did not finish its
// compensations, so it is marked failed for manual investigation rather
// than resumed automatically. Returns the number of sagas recovered.
func (o *Orchestrator) RecoverIncompleteSagas(ctx context.Context) (int, error) {
	incomplete, err := o.states.FindIncomplete(ctx)
	if err != nil {
		return 0, err
	}
	o.logger.Info("recovering incomplete sagas", zap.Int("count", len(incomplete)))

	recovered := 0
	for _, rec := range incomplete {
		reason := "process restart during execution - requires manual investigation"
		if err := o.states.MarkFailed(ctx, rec.SagaID, reason); err != nil {
			o.logger.Error("failed to mark recovered saga as failed", zap.String("saga_id", rec.SagaID), zap.Error(err))
			continue
		}
		o.logger.Warn("marked saga failed due to restart", zap.String("saga_id", rec.SagaID), zap.String("name", rec.Name))
		recovered++
	}
	return recovered, nil
}

// Sweep reconciles in-memory saga bookkeeping against what is still
// active, releasing entries whose goroutine already returned without
// cleanup running (e.g. after a panic recovered upstream). It is the Go
// counterpart of cleanup_orphaned_sagas, run periodically by a ticker in
// cmd/server/main.go rather than relying on Python's GC-driven leak.
func (o *Orchestrator) Sweep(maxAge time.Duration) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cleaned := 0
	now := time.Now().UTC()
	for id, s := range o.active {
		if now.Sub(s.StartedAt) > maxAge {
			delete(o.active, id)
			cleaned++
			o.logger.Warn("swept stale in-memory saga entry", zap.String("saga_id", id), zap.String("name", s.Name))
		}
	}
	return cleaned
}
