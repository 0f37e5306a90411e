package saga

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"eventbooking/internal/dbsession"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// stateRecord is the persisted row backing a Saga, grounded on
// original_source/app/models/saga_state.py's SagaState model.
type stateRecord struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	SagaID string `gorm:"column:saga_id;uniqueIndex;not null"`
	Name   string `gorm:"column:saga_name;not null"`
	Status string `gorm:"not null;index"`

	ContextJSON string `gorm:"column:context;type:text"`
	StepsJSON   string `gorm:"column:steps_data;type:text"`

	CurrentStepIndex int `gorm:"column:current_step_index;default:0"`
	CompletedSteps   int `gorm:"column:completed_steps;default:0"`

	StartedAt   time.Time  `gorm:"column:started_at;not null"`
	CompletedAt *time.Time `gorm:"column:completed_at"`

	ErrorMessage string     `gorm:"column:error_message;type:text"`
	LastRetryAt  *time.Time `gorm:"column:last_retry_at"`
	RetryCount   int        `gorm:"column:retry_count;default:0"`
}

func (stateRecord) TableName() string { return "saga_states" }

// stepSnapshot is the serialized form of a Step stored in StepsJSON.
type stepSnapshot struct {
	Name          string     `json:"name"`
	Status        StepStatus `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	Error         string     `json:"error,omitempty"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
	CompensatedAt *time.Time `json:"compensated_at,omitempty"`
}

// StateRepository persists Saga state so an incomplete transaction can be
// recovered (or at least flagged) after a process restart.
type StateRepository struct {
	session *dbsession.Session
}

func NewStateRepository(session *dbsession.Session) *StateRepository {
	return &StateRepository{session: session}
}

func (r *StateRepository) AutoMigrate() error {
	return r.session.AutoMigrate(&stateRecord{})
}

func snapshotSteps(steps []*Step) []stepSnapshot {
	out := make([]stepSnapshot, len(steps))
	for i, s := range steps {
		snap := stepSnapshot{
			Name:          s.Name,
			Status:        s.Status,
			RetryCount:    s.RetryCount,
			MaxRetries:    s.MaxRetries,
			ExecutedAt:    s.ExecutedAt,
			CompensatedAt: s.CompensatedAt,
		}
		if s.Err != nil {
			snap.Error = s.Err.Error()
		}
		out[i] = snap
	}
	return out
}

// Persist upserts the saga's current state. Persistence failures are
// logged by the caller and never abort the saga itself — losing a state
// snapshot is recoverable, a stuck booking is not.
func (r *StateRepository) Persist(ctx context.Context, s *Saga) error {
	contextJSON, err := json.Marshal(s.Context)
	if err != nil {
		return err
	}
	stepsJSON, err := json.Marshal(snapshotSteps(s.Steps))
	if err != nil {
		return err
	}

	errMsg := ""
	if s.Err != nil {
		errMsg = s.Err.Error()
	}

	return r.session.Transaction(ctx, func(tx *gorm.DB) error {
		var existing stateRecord
		err := tx.Where("saga_id = ?", s.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := stateRecord{
				ID:               uuid.NewString(),
				SagaID:           s.ID,
				Name:             s.Name,
				Status:           string(s.Status),
				ContextJSON:      string(contextJSON),
				StepsJSON:        string(stepsJSON),
				CurrentStepIndex: s.CurrentStepIndex,
				CompletedSteps:   s.completedStepCount(),
				StartedAt:        s.StartedAt,
				CompletedAt:      s.CompletedAt,
				ErrorMessage:     errMsg,
			}
			return tx.Create(&rec).Error
		case err != nil:
			return err
		default:
			existing.Status = string(s.Status)
			existing.ContextJSON = string(contextJSON)
			existing.StepsJSON = string(stepsJSON)
			existing.CurrentStepIndex = s.CurrentStepIndex
			existing.CompletedSteps = s.completedStepCount()
			existing.CompletedAt = s.CompletedAt
			existing.ErrorMessage = errMsg
			return tx.Save(&existing).Error
		}
	})
}

// State is the read-model returned by GetSagaStatus.
type State struct {
	SagaID         string
	SagaName       string
	Status         Status
	StartedAt      time.Time
	CompletedAt    *time.Time
	CompletedSteps int
	ErrorMessage   string
}

// Get returns the persisted state for sagaID, or nil if not found.
func (r *StateRepository) Get(ctx context.Context, sagaID string) (*State, error) {
	var rec stateRecord
	err := r.session.DB(ctx).Where("saga_id = ?", sagaID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &State{
		SagaID:         rec.SagaID,
		SagaName:       rec.Name,
		Status:         Status(rec.Status),
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
		CompletedSteps: rec.CompletedSteps,
		ErrorMessage:   rec.ErrorMessage,
	}, nil
}

// FindIncomplete returns every saga still in a started/executing/compensating
// state, used by RecoverIncompleteSagas after a restart.
func (r *StateRepository) FindIncomplete(ctx context.Context) ([]stateRecord, error) {
	var recs []stateRecord
	err := r.session.DB(ctx).Where("status IN ?", []string{
		string(StatusStarted), string(StatusExecuting), string(StatusCompensating),
	}).Find(&recs).Error
	return recs, err
}

// MarkFailed transitions a recovered saga's persisted state to failed with
// a fixed explanatory message, matching recover_incomplete_sagas's
// manual-investigation outcome.
func (r *StateRepository) MarkFailed(ctx context.Context, sagaID, reason string) error {
	now := time.Now().UTC()
	return r.session.DB(ctx).Model(&stateRecord{}).
		Where("saga_id = ?", sagaID).
		Updates(map[string]interface{}{
			"status":        string(StatusFailed),
			"error_message": reason,
			"completed_at":  now,
		}).Error
}
