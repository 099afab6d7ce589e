package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/modeer/staffprov/internal/provisioning"
)

const (
	// QueueDefault is the only queue; the worker drains it one task at a time.
	QueueDefault = "default"
	// TaskProvisionEmployee provisions a single profile.
	TaskProvisionEmployee = "employee:provision"
)

// ProvisionPayload carries one profile. When UserID is set the identity
// already exists and only the record steps run.
type ProvisionPayload struct {
	RunID   string               `json:"run_id"`
	UserID  string               `json:"user_id,omitempty"`
	Profile provisioning.Profile `json:"profile"`
}

// NewProvisionTask builds a provisioning task. Failed profiles are reported,
// never retried: a retry after a partial run would create a second identity
// attempt for the same email.
func NewProvisionTask(payload ProvisionPayload) (*asynq.Task, error) {
	if payload.Profile.Email == "" {
		return nil, errors.New("jobs: provision payload without email")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(0)}
	if payload.RunID != "" {
		opts = append(opts, asynq.TaskID(payload.RunID+":"+provisioning.NormalizeEmail(payload.Profile.Email)))
	}
	return asynq.NewTask(TaskProvisionEmployee, body, opts...), nil
}
