package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Run modes recorded in the artifact.
const (
	ModeFull       = "full"
	ModeIdentities = "identities"
	ModeRecords    = "records"
)

// Provisioner is the per-profile contract the Driver sequences.
type Provisioner interface {
	Provision(ctx context.Context, p Profile) Report
	CreateIdentity(ctx context.Context, p Profile) Report
	ProvisionRecord(ctx context.Context, p Profile, identity Identity) Report
}

// Driver runs a Provisioner over a roster, one profile at a time.
type Driver struct {
	seq    Provisioner
	logger *slog.Logger
	pause  time.Duration
	now    func() time.Time
}

// NewDriver builds a Driver. pause is the courtesy delay between profiles.
func NewDriver(seq Provisioner, logger *slog.Logger, pause time.Duration) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{seq: seq, logger: logger, pause: pause, now: time.Now}
}

// Run provisions every profile end to end.
func (d *Driver) Run(ctx context.Context, profiles []Profile) Summary {
	return d.each(ctx, ModeFull, profiles, func(ctx context.Context, p Profile) Report {
		return d.seq.Provision(ctx, p)
	})
}

// RunIdentities creates identities only; the resulting summary feeds RunRecords.
func (d *Driver) RunIdentities(ctx context.Context, profiles []Profile) Summary {
	return d.each(ctx, ModeIdentities, profiles, func(ctx context.Context, p Profile) Report {
		return d.seq.CreateIdentity(ctx, p)
	})
}

// RunRecords resumes a previous run: every report holding an identity but
// no employee record is provisioned from that identity. Other reports are
// carried over unchanged so the new artifact stays complete. After ctx is
// cancelled the remaining reports are carried over as well, so an
// interrupted pass can be resumed from its own artifact.
func (d *Driver) RunRecords(ctx context.Context, roster *Roster, prior Summary) Summary {
	summary := d.start(ModeRecords)
	attempted, interrupted := 0, false
	for _, previous := range prior.Reports {
		if !interrupted && ctx.Err() != nil {
			interrupted = true
		}
		if interrupted || previous.UserID == "" || previous.EmployeeID != "" || previous.RolledBack {
			summary.Add(previous)
			continue
		}
		profile, ok := roster.Find(previous.Email)
		if !ok {
			report := previous
			report.fail(StatusFailedRecordInsert, fmt.Sprintf("profile %s not found in roster", previous.Email))
			summary.Add(report)
			continue
		}
		if attempted > 0 && !d.wait(ctx) {
			interrupted = true
			summary.Add(previous)
			continue
		}
		attempted++
		d.logger.Info("resuming profile", slog.String("email", profile.Email), slog.String("user_id", previous.UserID))
		summary.Add(d.seq.ProvisionRecord(ctx, profile, Identity{ID: previous.UserID, Email: profile.Email}))
	}
	if interrupted {
		d.logger.Warn("records pass interrupted, remaining reports carried over", slog.Int("attempted", attempted), slog.Int("total", len(prior.Reports)), slog.Any("error", ctx.Err()))
	}
	summary.FinishedAt = d.now()
	return summary
}

func (d *Driver) each(ctx context.Context, mode string, profiles []Profile, fn func(context.Context, Profile) Report) Summary {
	summary := d.start(mode)
	for i, p := range profiles {
		if i > 0 && !d.wait(ctx) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		d.logger.Info("provisioning profile", slog.String("mode", mode), slog.Int("index", i+1), slog.Int("total", len(profiles)), slog.String("email", p.Email))
		summary.Add(fn(ctx, p))
	}
	if ctx.Err() != nil {
		d.logger.Warn("run interrupted", slog.Int("done", summary.Total), slog.Int("total", len(profiles)), slog.Any("error", ctx.Err()))
	}
	summary.FinishedAt = d.now()
	return summary
}

func (d *Driver) start(mode string) Summary {
	return Summary{RunID: uuid.NewString(), Mode: mode, StartedAt: d.now(), Reports: []Report{}}
}

// wait sleeps for the inter-profile pause; false means ctx was cancelled.
func (d *Driver) wait(ctx context.Context) bool {
	if d.pause <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d.pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
