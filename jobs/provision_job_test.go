package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/modeer/staffprov/internal/jobs"
	"github.com/modeer/staffprov/internal/provisioning"
)

type fakeProvisioner struct {
	full    []string
	records []string
}

func (f *fakeProvisioner) Provision(ctx context.Context, p provisioning.Profile) provisioning.Report {
	f.full = append(f.full, p.Email)
	return provisioning.Report{Email: p.Email, UserID: "u-" + p.Email, EmployeeID: "e-" + p.Email, Status: provisioning.StatusSuccess}
}

func (f *fakeProvisioner) CreateIdentity(ctx context.Context, p provisioning.Profile) provisioning.Report {
	return provisioning.Report{Email: p.Email, Status: provisioning.StatusIdentityCreated}
}

func (f *fakeProvisioner) ProvisionRecord(ctx context.Context, p provisioning.Profile, identity provisioning.Identity) provisioning.Report {
	f.records = append(f.records, identity.ID)
	return provisioning.Report{Email: p.Email, UserID: identity.ID, Status: provisioning.StatusFailedTypeLookup, Diagnostic: "employee type not found"}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReports(t *testing.T) *RedisReports {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisReports(client, "provision:reports")
}

func profile(email string) provisioning.Profile {
	return provisioning.Profile{Email: email, Password: "Hany@2025", FullName: "هاني", EmployeeType: "سائق"}
}

func TestProvisionJobPushesReports(t *testing.T) {
	seq := &fakeProvisioner{}
	reports := newTestReports(t)
	job := NewProvisionJob(seq, reports, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	ctx := context.Background()

	first, err := NewProvisionTask(ProvisionPayload{RunID: "run-1", Profile: profile("Hany@modeer.com")})
	require.NoError(t, err)
	require.Equal(t, TaskProvisionEmployee, first.Type())
	require.NoError(t, job.Handle(ctx, first))

	second, err := NewProvisionTask(ProvisionPayload{RunID: "run-1", UserID: "3f2b8c1e", Profile: profile("nermin@modeer.com")})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, second))

	other, err := NewProvisionTask(ProvisionPayload{RunID: "run-2", Profile: profile("fady@modeer.com")})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, other))

	require.Equal(t, []string{"hany@modeer.com", "fady@modeer.com"}, seq.full)
	require.Equal(t, []string{"3f2b8c1e"}, seq.records)

	summary, err := reports.Collect(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, ModeQueue, summary.Mode)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, "hany@modeer.com", summary.Reports[0].Email)
	require.Equal(t, provisioning.StatusFailedTypeLookup, summary.Reports[1].Status)
	require.False(t, summary.StartedAt.IsZero())

	all, err := reports.Collect(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, all.Total)

	require.NoError(t, reports.Clear(ctx))
	empty, err := reports.Collect(ctx, "run-1")
	require.NoError(t, err)
	require.Zero(t, empty.Total)
}

func TestProvisionJobRejectsBadPayload(t *testing.T) {
	seq := &fakeProvisioner{}
	job := NewProvisionJob(seq, nil, quietLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskProvisionEmployee, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, err := json.Marshal(ProvisionPayload{Profile: provisioning.Profile{Email: "not-an-email"}})
	require.NoError(t, err)
	err = job.Handle(context.Background(), asynq.NewTask(TaskProvisionEmployee, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, seq.full)

	var nilJob *ProvisionJob
	require.Error(t, nilJob.Handle(context.Background(), asynq.NewTask(TaskProvisionEmployee, body)))
}

func TestNewProvisionTaskRequiresEmail(t *testing.T) {
	_, err := NewProvisionTask(ProvisionPayload{RunID: "run-1"})
	require.Error(t, err)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	require.Error(t, err)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHandlerHealth(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, status: http.StatusOK, pending: 4},
		{name: "queue not created yet", inspector: stubInspector{err: asynq.ErrQueueNotFound}, status: http.StatusOK},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial tcp: refused")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, quietLogger()).MountRoutes(r)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, QueueDefault, body.Queue)
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}
