package provisioning

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverRunAggregatesCounts(t *testing.T) {
	store := newDriverStore()
	store.addType("type-reception", "reception", "202", "")
	seq := newTestSequencer(store)
	driver := NewDriver(seq, quietLogger(), 0)

	profiles := []Profile{
		driverProfile(t, "hany@modeer.com"),
		driverProfile(t, "second@modeer.com"),
		driverProfile(t, "hany@modeer.com"),
		{Email: "nermin@modeer.com", Password: "Nermin@2025", FullName: "نرمين", EmployeeType: "reception"},
		{Email: "ghost@modeer.com", Password: "Ghost@2025", FullName: "x", EmployeeType: "astronaut"},
	}
	summary := driver.Run(context.Background(), profiles)

	require.Equal(t, ModeFull, summary.Mode)
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 5, summary.Total)
	require.Len(t, summary.Reports, 5)

	statuses := make([]Status, 0, len(summary.Reports))
	succeeded := 0
	for _, r := range summary.Reports {
		statuses = append(statuses, r.Status)
		if r.Status == StatusSuccess || r.Status == StatusSuccessWithWarning {
			succeeded++
		}
	}
	require.Equal(t, []Status{
		StatusSuccess,
		StatusSuccess,
		StatusFailedIdentity,
		StatusSuccessWithWarning,
		StatusFailedTypeLookup,
	}, statuses)
	require.Equal(t, succeeded, summary.Succeeded)
	require.Equal(t, summary.Total-succeeded, summary.Failed)
	require.Equal(t, "2010002", summary.Reports[1].EmployeeCode)
	require.Equal(t, "2020001", summary.Reports[3].EmployeeCode)
}

func TestDriverTwoPassResume(t *testing.T) {
	store := newDriverStore()
	seq := newTestSequencer(store)
	driver := NewDriver(seq, quietLogger(), 0)
	roster := &Roster{Profiles: []Profile{
		driverProfile(t, "hany@modeer.com"),
		driverProfile(t, "second@modeer.com"),
	}}

	first := driver.RunIdentities(context.Background(), roster.Profiles)
	require.Equal(t, ModeIdentities, first.Mode)
	require.Zero(t, first.Succeeded)
	require.Zero(t, first.Failed)
	require.Equal(t, 2, first.IdentitiesCreated)
	for _, r := range first.Reports {
		require.Equal(t, StatusIdentityCreated, r.Status)
		require.NotEmpty(t, r.UserID)
	}
	require.Zero(t, store.insertCalls)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, SaveArtifact(path, first))
	prior, err := LoadArtifact(path)
	require.NoError(t, err)
	require.Equal(t, first.RunID, prior.RunID)

	second := driver.RunRecords(context.Background(), roster, prior)
	require.Equal(t, ModeRecords, second.Mode)
	require.Equal(t, 2, second.Total)
	require.Equal(t, 2, second.Succeeded)
	require.Equal(t, "2010001", second.Reports[0].EmployeeCode)
	require.Equal(t, "2010002", second.Reports[1].EmployeeCode)
	require.Equal(t, prior.Reports[0].UserID, second.Reports[0].UserID)

	third := driver.RunRecords(context.Background(), roster, second)
	require.Equal(t, second.Reports, third.Reports)
	require.Len(t, store.employeesOfType("type-driver"), 2)
}

func TestDriverRecordsPassCarriesFailuresAndMissingProfiles(t *testing.T) {
	store := newDriverStore()
	driver := NewDriver(newTestSequencer(store), quietLogger(), 0)
	prior := Summary{Reports: []Report{
		{Email: "failed@modeer.com", Status: StatusFailedIdentity, Diagnostic: "boom"},
		{Email: "gone@modeer.com", UserID: "3f2b8c1e-6a0d-4c4e-9f1a-2b7d5e8c9a10", Status: StatusIdentityCreated},
	}}

	summary := driver.RunRecords(context.Background(), &Roster{}, prior)

	require.Equal(t, 2, summary.Total)
	require.Equal(t, 2, summary.Failed)
	require.Equal(t, StatusFailedIdentity, summary.Reports[0].Status)
	require.Equal(t, StatusFailedRecordInsert, summary.Reports[1].Status)
	require.Contains(t, summary.Reports[1].Diagnostic, "not found in roster")
}

// cancelAfter cancels the run once n records have been provisioned.
type cancelAfter struct {
	*Sequencer
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) ProvisionRecord(ctx context.Context, p Profile, identity Identity) Report {
	report := c.Sequencer.ProvisionRecord(ctx, p, identity)
	c.n--
	if c.n == 0 {
		c.cancel()
	}
	return report
}

func TestDriverRecordsPassKeepsReportsAfterCancel(t *testing.T) {
	store := newDriverStore()
	seq := newTestSequencer(store)
	roster := &Roster{Profiles: []Profile{
		driverProfile(t, "hany@modeer.com"),
		driverProfile(t, "second@modeer.com"),
		driverProfile(t, "third@modeer.com"),
	}}
	prior := NewDriver(seq, quietLogger(), 0).RunIdentities(context.Background(), roster.Profiles)
	require.Equal(t, 3, prior.IdentitiesCreated)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	driver := NewDriver(&cancelAfter{Sequencer: seq, n: 1, cancel: cancel}, quietLogger(), 0)

	next := driver.RunRecords(ctx, roster, prior)

	require.Len(t, next.Reports, len(prior.Reports))
	require.Equal(t, StatusSuccess, next.Reports[0].Status)
	require.Equal(t, prior.Reports[1:], next.Reports[1:])
	require.Equal(t, 2, next.IdentitiesCreated)
	require.Len(t, store.employeesOfType("type-driver"), 1)

	resumed := NewDriver(seq, quietLogger(), 0).RunRecords(context.Background(), roster, next)
	require.Equal(t, 3, resumed.Succeeded)
	require.Len(t, store.employeesOfType("type-driver"), 3)
}

func TestDriverRecordsPassCancelledBeforeStart(t *testing.T) {
	store := newDriverStore()
	driver := NewDriver(newTestSequencer(store), quietLogger(), 0)
	prior := Summary{Reports: []Report{
		{Email: "hany@modeer.com", UserID: "u1", Status: StatusIdentityCreated},
		{Email: "failed@modeer.com", Status: StatusFailedIdentity, Diagnostic: "boom"},
		{Email: "second@modeer.com", UserID: "u2", Status: StatusIdentityCreated},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next := driver.RunRecords(ctx, &Roster{}, prior)

	require.Equal(t, prior.Reports, next.Reports)
	require.Zero(t, store.insertCalls)
}

func TestDriverStopsOnCancel(t *testing.T) {
	store := newDriverStore()
	driver := NewDriver(newTestSequencer(store), quietLogger(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := driver.Run(ctx, []Profile{driverProfile(t, "hany@modeer.com")})
	require.Zero(t, summary.Total)
	require.True(t, errors.Is(ctx.Err(), context.Canceled))
}

func TestSummaryAdd(t *testing.T) {
	var s Summary
	s.Add(Report{Status: StatusSuccess})
	s.Add(Report{Status: StatusSuccessWithWarning})
	s.Add(Report{Status: StatusFailedCodeDerivation})
	s.Add(Report{Status: StatusFailedRecordInsert})
	s.Add(Report{Status: StatusIdentityCreated})
	require.Equal(t, 5, s.Total)
	require.Equal(t, 2, s.Succeeded)
	require.Equal(t, 2, s.Failed)
	require.Equal(t, 1, s.IdentitiesCreated)
	require.False(t, StatusIdentityCreated.Succeeded())
}
