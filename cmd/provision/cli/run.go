package cli

import (
	"context"
	"strings"

	"github.com/modeer/staffprov/internal/provisioning"
)

// RunOptions configures a batch run over a roster.
type RunOptions struct {
	Output
	RosterPath string
	ReportPath string
	// IdentitiesOnly stops after identity creation; the artifact then feeds
	// the records command.
	IdentitiesOnly bool
}

// RunCommand provisions every profile in the roster.
func (c *ProvisionCLI) RunCommand(ctx context.Context, opts RunOptions) int {
	opts.defaults()
	const cmd = "run"
	roster, err := loadRoster(opts.RosterPath)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	driver := c.driver(roster.CodeSeeds)
	if opts.IdentitiesOnly {
		return finish(cmd, opts.Output, driver.RunIdentities(ctx, roster.Profiles), opts.ReportPath, false)
	}
	return finish(cmd, opts.Output, driver.Run(ctx, roster.Profiles), opts.ReportPath, false)
}

// RecordsOptions configures the second pass of a two-pass run.
type RecordsOptions struct {
	Output
	RosterPath string
	// FromReport is the artifact of the identities pass.
	FromReport string
	ReportPath string
}

// RecordsCommand completes the records for identities listed in a previous
// artifact.
func (c *ProvisionCLI) RecordsCommand(ctx context.Context, opts RecordsOptions) int {
	opts.defaults()
	const cmd = "records"
	if strings.TrimSpace(opts.FromReport) == "" {
		return opts.fail(cmd, "--from is required")
	}
	roster, err := loadRoster(opts.RosterPath)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	prior, err := provisioning.LoadArtifact(opts.FromReport)
	if err != nil {
		return opts.fail(cmd, "%v", err)
	}
	reportPath := opts.ReportPath
	if reportPath == "" {
		reportPath = opts.FromReport
	}
	return finish(cmd, opts.Output, c.driver(roster.CodeSeeds).RunRecords(ctx, roster, prior), reportPath, false)
}
