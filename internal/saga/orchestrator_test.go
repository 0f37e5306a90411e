package saga_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"eventbooking/internal/dbsession"
	"eventbooking/internal/saga"
)

func newOrchestrator(t *testing.T) (*saga.Orchestrator, *saga.StateRepository) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	session := dbsession.New(db, dbsession.DialectSQLite, zap.NewNop())

	states := saga.NewStateRepository(session)
	require.NoError(t, states.AutoMigrate())

	return saga.NewOrchestrator(states, zap.NewNop()), states
}

func noopCompensation(context.Context, map[string]interface{}) error { return nil }

func TestExecuteSaga_AllStepsComplete(t *testing.T) {
	orch, states := newOrchestrator(t)
	s := orch.CreateSaga("booking_creation", map[string]interface{}{"event_id": "evt-1"})

	var order []string
	var mu sync.Mutex
	record := func(name string) saga.Action {
		return func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	orch.AddStep(s, "reserve_seats", record("reserve_seats"), noopCompensation, nil, 0)
	orch.AddStep(s, "durable_commit", record("durable_commit"), noopCompensation, nil, 0)

	ok := orch.ExecuteSaga(context.Background(), s)

	require.True(t, ok)
	require.Equal(t, saga.StatusCompleted, s.Status)
	require.Equal(t, []string{"reserve_seats", "durable_commit"}, order)

	st, err := states.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Equal(t, saga.StatusCompleted, st.Status)
	require.Equal(t, 2, st.CompletedSteps)
}

func TestExecuteSaga_CompensatesCompletedStepsInReverseOrder(t *testing.T) {
	orch, states := newOrchestrator(t)
	s := orch.CreateSaga("booking_creation", nil)

	var compensated []string
	var mu sync.Mutex
	compensationFor := func(name string) saga.Compensation {
		return func(ctx context.Context, sagaCtx map[string]interface{}) error {
			mu.Lock()
			compensated = append(compensated, name)
			mu.Unlock()
			return nil
		}
	}

	orch.AddStep(s, "reserve_seats", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		return nil, nil
	}, compensationFor("reserve_seats"), nil, 0)

	orch.AddStep(s, "lock_inventory", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		return nil, nil
	}, compensationFor("lock_inventory"), nil, 0)

	wantErr := errors.New("durable commit failed")
	orch.AddStep(s, "durable_commit", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		return nil, wantErr
	}, noopCompensation, nil, 0)

	ok := orch.ExecuteSaga(context.Background(), s)

	require.False(t, ok)
	require.Equal(t, saga.StatusCompensated, s.Status)
	require.Equal(t, []string{"lock_inventory", "reserve_seats"}, compensated, "compensations must run in reverse completion order")

	st, err := states.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, saga.StatusCompensated, st.Status)
}

func TestExecuteSaga_CompensationFailureDoesNotAbortCompensation(t *testing.T) {
	orch, _ := newOrchestrator(t)
	s := orch.CreateSaga("booking_creation", nil)

	var secondRan bool
	orch.AddStep(s, "step_one", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		return nil, nil
	}, func(ctx context.Context, sagaCtx map[string]interface{}) error {
		secondRan = true
		return nil
	}, nil, 0)

	orch.AddStep(s, "step_two", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		return nil, nil
	}, func(ctx context.Context, sagaCtx map[string]interface{}) error {
		return errors.New("compensation unreachable, e.g. store down")
	}, nil, 0)

	orch.AddStep(s, "step_three", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	}, noopCompensation, nil, 0)

	ok := orch.ExecuteSaga(context.Background(), s)

	require.False(t, ok)
	require.Equal(t, saga.StatusCompensated, s.Status, "a failed compensation must not leave the saga stuck mid-compensation")
	require.True(t, secondRan, "compensation for step_one must still run after step_two's compensation fails")
}

func TestExecuteSaga_RetriesWithinBudgetThenSucceeds(t *testing.T) {
	orch, _ := newOrchestrator(t)
	s := orch.CreateSaga("booking_creation", nil)

	attempts := 0
	step := orch.AddStep(s, "reserve_seats", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient reservation store error")
		}
		return nil, nil
	}, noopCompensation, nil, 1)

	ok := orch.ExecuteSaga(context.Background(), s)

	require.True(t, ok)
	require.Equal(t, 2, attempts)
	require.Equal(t, 1, step.RetryCount)
}

func TestExecuteSaga_ExhaustsRetryBudgetThenFails(t *testing.T) {
	orch, _ := newOrchestrator(t)
	s := orch.CreateSaga("booking_creation", nil)

	attempts := 0
	orch.AddStep(s, "reserve_seats", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		attempts++
		return nil, errors.New("reservation store down")
	}, noopCompensation, nil, 2)

	ok := orch.ExecuteSaga(context.Background(), s)

	require.False(t, ok)
	require.Equal(t, saga.StatusCompensated, s.Status)
	require.Equal(t, 3, attempts, "maxRetries=2 must allow exactly 3 total attempts (the initial try plus 2 retries)")
}

func TestExecuteSaga_StopsRetryingWhenContextCancelled(t *testing.T) {
	orch, _ := newOrchestrator(t)
	s := orch.CreateSaga("booking_creation", nil)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	orch.AddStep(s, "reserve_seats", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		attempts++
		cancel()
		return nil, errors.New("transient error")
	}, noopCompensation, nil, 5)

	ok := orch.ExecuteSaga(ctx, s)

	require.False(t, ok)
	require.Equal(t, 1, attempts, "a cancelled context must stop the retry loop instead of waiting out the backoff")
}

func TestExecuteSaga_StepContextMergesOverSagaContext(t *testing.T) {
	orch, _ := newOrchestrator(t)
	s := orch.CreateSaga("booking_creation", map[string]interface{}{"holder_id": "saga-holder", "event_id": "evt-1"})

	var seen map[string]interface{}
	orch.AddStep(s, "reserve_seats", func(ctx context.Context, sagaCtx map[string]interface{}) (interface{}, error) {
		seen = sagaCtx
		return nil, nil
	}, noopCompensation, map[string]interface{}{"holder_id": "step-holder"}, 0)

	ok := orch.ExecuteSaga(context.Background(), s)

	require.True(t, ok)
	require.Equal(t, "step-holder", seen["holder_id"], "the step's own context must win over the saga's shared context on key collision")
	require.Equal(t, "evt-1", seen["event_id"], "keys the step doesn't override still come through from the saga's shared context")
}

func TestRecoverIncompleteSagas_MarksCrashedSagasFailed(t *testing.T) {
	orch, states := newOrchestrator(t)
	ctx := context.Background()

	crashed := &saga.Saga{ID: uuid.NewString(), Name: "booking_creation", Status: saga.StatusExecuting, StartedAt: time.Now().UTC(), Context: map[string]interface{}{}}
	require.NoError(t, states.Persist(ctx, crashed))

	finished := &saga.Saga{ID: uuid.NewString(), Name: "booking_creation", Status: saga.StatusCompleted, StartedAt: time.Now().UTC(), Context: map[string]interface{}{}}
	require.NoError(t, states.Persist(ctx, finished))

	n, err := orch.RecoverIncompleteSagas(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	st, err := states.Get(ctx, crashed.ID)
	require.NoError(t, err)
	require.Equal(t, saga.StatusFailed, st.Status)
	require.NotEmpty(t, st.ErrorMessage)

	st, err = states.Get(ctx, finished.ID)
	require.NoError(t, err)
	require.Equal(t, saga.StatusCompleted, st.Status, "a saga that finished cleanly must not be touched by recovery")
}

func TestSweep_RemovesStaleInMemorySagas(t *testing.T) {
	orch, _ := newOrchestrator(t)
	s := orch.CreateSaga("booking_creation", nil)
	s.StartedAt = time.Now().Add(-2 * time.Hour)

	cleaned := orch.Sweep(time.Hour)
	require.Equal(t, 1, cleaned)

	cleaned = orch.Sweep(time.Hour)
	require.Equal(t, 0, cleaned)
}
