package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/modeer/staffprov/internal/jobs"
	"github.com/modeer/staffprov/internal/provisioning"
)

// ReportPusher stores per-task reports for later collection.
type ReportPusher interface {
	Push(ctx context.Context, runID string, report provisioning.Report) error
}

// ProvisionJob runs the sequencer for queued profiles.
type ProvisionJob struct {
	Sequencer provisioning.Provisioner
	Reports   ReportPusher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewProvisionJob wires dependencies for the provisioning handler.
func NewProvisionJob(seq provisioning.Provisioner, reports ReportPusher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProvisionJob {
	return &ProvisionJob{Sequencer: seq, Reports: reports, Logger: logger, Metrics: metrics}
}

// Handle processes TaskProvisionEmployee tasks.
func (j *ProvisionJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sequencer == nil {
		return errors.New("provision job: handler not configured")
	}
	tracker := j.Metrics.Track(TaskProvisionEmployee)
	defer func() {
		err = tracker.End(err)
	}()

	var payload ProvisionPayload
	if err = json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("provision job: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := j.logger().With(slog.String("run_id", payload.RunID), slog.String("email", payload.Profile.Email))

	profile, verr := provisioning.ValidateProfile(payload.Profile)
	if verr != nil {
		logger.Warn("rejecting invalid profile", slog.Any("error", verr))
		return fmt.Errorf("provision job: %v: %w", verr, asynq.SkipRetry)
	}

	var report provisioning.Report
	if payload.UserID != "" {
		report = j.Sequencer.ProvisionRecord(ctx, profile, provisioning.Identity{ID: payload.UserID, Email: profile.Email})
	} else {
		report = j.Sequencer.Provision(ctx, profile)
	}
	logger.Info("profile processed", slog.String("status", string(report.Status)), slog.String("employee_code", report.EmployeeCode))

	if j.Reports == nil {
		return nil
	}
	if err = j.Reports.Push(ctx, payload.RunID, report); err != nil {
		logger.Error("store report", slog.Any("error", err))
		return err
	}
	return nil
}

func (j *ProvisionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
