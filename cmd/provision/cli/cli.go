// Package cli implements the provisioning commands. Every command takes an
// options struct and returns a process exit code so it can be driven from
// tests without a shell.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/modeer/staffprov/internal/provisioning"
	"github.com/modeer/staffprov/jobs"
)

// Exit codes shared by every command.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitPartial = 2
)

// SequencerFactory builds a sequencer for a roster's code seeds.
type SequencerFactory func(seeds map[string]string) provisioning.Provisioner

// Enqueuer submits profiles to the worker queue.
type Enqueuer interface {
	EnqueueProvision(ctx context.Context, payload jobs.ProvisionPayload) (*asynq.TaskInfo, error)
}

// Collector reads reports stored by the worker.
type Collector interface {
	Collect(ctx context.Context, runID string) (provisioning.Summary, error)
}

// Deps are the collaborators the commands need. Queue and Reports are only
// required by the queue commands.
type Deps struct {
	NewSequencer SequencerFactory
	Identities   provisioning.IdentityStore
	Pause        time.Duration
	Logger       *slog.Logger
	Queue        Enqueuer
	Reports      Collector
	NewRunID     func() string
}

// ProvisionCLI runs provisioning commands.
type ProvisionCLI struct {
	deps Deps
}

// New validates deps and builds the CLI.
func New(deps Deps) (*ProvisionCLI, error) {
	if deps.NewSequencer == nil {
		return nil, errors.New("provision cli: sequencer factory is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &ProvisionCLI{deps: deps}, nil
}

// Output selects where and how a command reports.
type Output struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *Output) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

func (o Output) fail(cmd string, format string, args ...any) int {
	fmt.Fprintf(o.Stderr, "%s: %s\n", cmd, fmt.Sprintf(format, args...))
	return ExitError
}

func (c *ProvisionCLI) driver(seeds map[string]string) *provisioning.Driver {
	return provisioning.NewDriver(c.deps.NewSequencer(seeds), c.deps.Logger, c.deps.Pause)
}

func loadRoster(path string) (*provisioning.Roster, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--roster is required")
	}
	return provisioning.LoadRoster(path)
}

// finish writes the artifact when reportPath is set, renders the summary
// and maps it to an exit code. Batch commands report failed profiles in the
// counts and still exit zero; strict commands exit ExitPartial instead.
func finish(cmd string, out Output, summary provisioning.Summary, reportPath string, strict bool) int {
	if reportPath != "" {
		if err := provisioning.SaveArtifact(reportPath, summary); err != nil {
			fmt.Fprintf(out.Stderr, "%s: %v\n", cmd, err)
			_ = render(out, summary, "")
			return ExitError
		}
	}
	if err := render(out, summary, reportPath); err != nil {
		return out.fail(cmd, "render: %v", err)
	}
	if strict && summary.Failed > 0 {
		return ExitPartial
	}
	return ExitOK
}

func render(out Output, summary provisioning.Summary, reportPath string) error {
	if out.JSONOutput {
		enc := json.NewEncoder(out.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	if summary.RunID != "" {
		fmt.Fprintf(out.Stdout, "Run %s (%s)\n", summary.RunID, summary.Mode)
	}
	tw := tabwriter.NewWriter(out.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tEMAIL\tCODE\tDETAIL")
	for _, r := range summary.Reports {
		detail := r.Diagnostic
		if detail == "" && len(r.Warnings) > 0 {
			detail = strings.Join(r.Warnings, "; ")
		}
		if r.Duplicate {
			detail = strings.TrimSpace("already provisioned " + detail)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Status, r.Email, r.EmployeeCode, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out.Stdout, "Total: %d  Succeeded: %d  Failed: %d\n", summary.Total, summary.Succeeded, summary.Failed)
	if summary.IdentitiesCreated > 0 {
		fmt.Fprintf(out.Stdout, "Identities awaiting records: %d\n", summary.IdentitiesCreated)
	}
	if reportPath != "" {
		fmt.Fprintf(out.Stdout, "Report written to %s\n", reportPath)
	}
	return nil
}
