package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/modeer/staffprov/internal/provisioning"
)

// OneOptions provisions a single roster entry.
type OneOptions struct {
	Output
	RosterPath string
	Email      string
	ReportPath string
}

// OneCommand provisions the roster profile matching Email end to end.
func (c *ProvisionCLI) OneCommand(ctx context.Context, opts OneOptions) int {
	opts.defaults()
	const cmd = "one"
	roster, err := loadRoster(opts.RosterPath)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	profile, ok := roster.Find(opts.Email)
	if !ok {
		return opts.fail(cmd, "no profile for %q in %s", opts.Email, opts.RosterPath)
	}
	summary := c.newSummary(provisioning.ModeFull)
	summary.Add(c.deps.NewSequencer(roster.CodeSeeds).Provision(ctx, profile))
	summary.FinishedAt = time.Now()
	return finish(cmd, opts.Output, summary, opts.ReportPath, true)
}

// CompleteOptions resumes profiles whose identity exists but whose employee
// record does not, locating the identity by email.
type CompleteOptions struct {
	Output
	RosterPath string
	// Emails limits the command to these profiles; empty means the whole roster.
	Emails     []string
	ReportPath string
}

// CompleteCommand looks each identity up by email and runs the record steps
// for it. Profiles already holding an employee record report a benign
// duplicate.
func (c *ProvisionCLI) CompleteCommand(ctx context.Context, opts CompleteOptions) int {
	opts.defaults()
	const cmd = "complete"
	if c.deps.Identities == nil {
		return opts.fail(cmd, "identity store not configured")
	}
	roster, err := loadRoster(opts.RosterPath)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	profiles := roster.Profiles
	if len(opts.Emails) > 0 {
		profiles = make([]provisioning.Profile, 0, len(opts.Emails))
		for _, email := range opts.Emails {
			p, ok := roster.Find(email)
			if !ok {
				return opts.fail(cmd, "no profile for %q in %s", email, opts.RosterPath)
			}
			profiles = append(profiles, p)
		}
	}

	seq := c.deps.NewSequencer(roster.CodeSeeds)
	summary := c.newSummary("complete")
	for _, p := range profiles {
		if ctx.Err() != nil {
			break
		}
		identity, err := c.deps.Identities.FindIdentityByEmail(ctx, p.Email)
		if err != nil {
			report := provisioning.Report{Name: p.FullName, Email: p.Email, Status: provisioning.StatusFailedIdentity}
			if errors.Is(err, provisioning.ErrNotFound) {
				report.Diagnostic = "no identity exists for this email"
			} else {
				report.Diagnostic = fmt.Sprintf("identity lookup failed: %v", err)
			}
			summary.Add(report)
			continue
		}
		summary.Add(seq.ProvisionRecord(ctx, p, identity))
	}
	summary.FinishedAt = time.Now()
	return finish(cmd, opts.Output, summary, opts.ReportPath, true)
}

func (c *ProvisionCLI) newSummary(mode string) provisioning.Summary {
	return provisioning.Summary{RunID: c.runID(), Mode: mode, StartedAt: time.Now(), Reports: []provisioning.Report{}}
}

func (c *ProvisionCLI) runID() string {
	if c.deps.NewRunID != nil {
		return c.deps.NewRunID()
	}
	return uuid.NewString()
}
