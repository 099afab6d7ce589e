package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/modeer/staffprov/internal/provisioning"
	"github.com/modeer/staffprov/jobs"
)

// EnqueueOptions submits a roster to the worker queue.
type EnqueueOptions struct {
	Output
	RosterPath string
	// RunID groups the queued profiles; a fresh id is generated when empty.
	RunID string
	// FromReport queues only the record steps for identities listed in a
	// previous identities-pass artifact.
	FromReport string
}

// EnqueueResult is the JSON output of EnqueueCommand.
type EnqueueResult struct {
	RunID    string   `json:"run_id"`
	Queued   []string `json:"queued"`
	Skipped  []string `json:"skipped,omitempty"`
	Failures []string `json:"failures,omitempty"`
}

// EnqueueCommand queues one task per profile. Profiles already queued under
// the same run id are skipped.
func (c *ProvisionCLI) EnqueueCommand(ctx context.Context, opts EnqueueOptions) int {
	opts.defaults()
	const cmd = "enqueue"
	if c.deps.Queue == nil {
		return opts.fail(cmd, "queue not configured (set REDIS_ADDR)")
	}
	roster, err := loadRoster(opts.RosterPath)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	payloads, err := c.payloads(roster, opts)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}

	result := EnqueueResult{RunID: payloads.runID, Queued: []string{}}
	for _, payload := range payloads.items {
		_, err := c.deps.Queue.EnqueueProvision(ctx, payload)
		switch {
		case err == nil:
			result.Queued = append(result.Queued, payload.Profile.Email)
		case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
			result.Skipped = append(result.Skipped, payload.Profile.Email)
		default:
			c.deps.Logger.Error("enqueue profile", slog.String("email", payload.Profile.Email), slog.Any("error", err))
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", payload.Profile.Email, err))
		}
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return opts.fail(cmd, "render: %v", err)
		}
	} else {
		fmt.Fprintf(opts.Stdout, "Run %s: queued %d, skipped %d, failed %d\n", result.RunID, len(result.Queued), len(result.Skipped), len(result.Failures))
		for _, f := range result.Failures {
			fmt.Fprintf(opts.Stdout, "  %s\n", f)
		}
		fmt.Fprintf(opts.Stdout, "Collect with: provision collect --run-id %s\n", result.RunID)
	}
	if len(result.Failures) > 0 {
		return ExitPartial
	}
	return ExitOK
}

type queuedRun struct {
	runID string
	items []jobs.ProvisionPayload
}

func (c *ProvisionCLI) payloads(roster *provisioning.Roster, opts EnqueueOptions) (queuedRun, error) {
	run := queuedRun{runID: strings.TrimSpace(opts.RunID)}
	if run.runID == "" {
		run.runID = c.runID()
	}
	if opts.FromReport == "" {
		for _, p := range roster.Profiles {
			run.items = append(run.items, jobs.ProvisionPayload{RunID: run.runID, Profile: p})
		}
		return run, nil
	}
	prior, err := provisioning.LoadArtifact(opts.FromReport)
	if err != nil {
		return queuedRun{}, err
	}
	for _, r := range prior.Reports {
		if r.UserID == "" || r.EmployeeID != "" || r.RolledBack {
			continue
		}
		p, ok := roster.Find(r.Email)
		if !ok {
			return queuedRun{}, fmt.Errorf("profile %s from %s not found in roster", r.Email, opts.FromReport)
		}
		run.items = append(run.items, jobs.ProvisionPayload{RunID: run.runID, UserID: r.UserID, Profile: p})
	}
	return run, nil
}

// CollectOptions assembles worker reports into an artifact.
type CollectOptions struct {
	Output
	RunID      string
	ReportPath string
}

// CollectCommand reads the reports the worker stored for RunID.
func (c *ProvisionCLI) CollectCommand(ctx context.Context, opts CollectOptions) int {
	opts.defaults()
	const cmd = "collect"
	if c.deps.Reports == nil {
		return opts.fail(cmd, "report store not configured (set REDIS_ADDR)")
	}
	if strings.TrimSpace(opts.RunID) == "" {
		return opts.fail(cmd, "--run-id is required")
	}
	summary, err := c.deps.Reports.Collect(ctx, opts.RunID)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	return finish(cmd, opts.Output, summary, opts.ReportPath, false)
}
