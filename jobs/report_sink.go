package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/modeer/staffprov/internal/provisioning"
)

// RedisReports keeps queued-run reports in a Redis list so the enqueuing
// side can assemble the run artifact once the worker is done.
type RedisReports struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

type reportEnvelope struct {
	RunID    string              `json:"run_id"`
	StoredAt time.Time           `json:"stored_at"`
	Report   provisioning.Report `json:"report"`
}

// NewRedisReports stores reports under key.
func NewRedisReports(client *redis.Client, key string) *RedisReports {
	return &RedisReports{client: client, key: key, now: time.Now}
}

// Push appends one report.
func (s *RedisReports) Push(ctx context.Context, runID string, report provisioning.Report) error {
	data, err := json.Marshal(reportEnvelope{RunID: runID, StoredAt: s.now().UTC(), Report: report})
	if err != nil {
		return fmt.Errorf("jobs: encode report: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("jobs: push report: %w", err)
	}
	return nil
}

// Collect assembles the reports of runID, in completion order, into a
// summary. An empty runID collects everything under the key.
func (s *RedisReports) Collect(ctx context.Context, runID string) (provisioning.Summary, error) {
	items, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return provisioning.Summary{}, fmt.Errorf("jobs: read reports: %w", err)
	}
	summary := provisioning.Summary{RunID: runID, Mode: ModeQueue, Reports: []provisioning.Report{}}
	for _, item := range items {
		var env reportEnvelope
		if err := json.Unmarshal([]byte(item), &env); err != nil {
			return provisioning.Summary{}, fmt.Errorf("jobs: decode report: %w", err)
		}
		if runID != "" && env.RunID != runID {
			continue
		}
		if summary.StartedAt.IsZero() || env.StoredAt.Before(summary.StartedAt) {
			summary.StartedAt = env.StoredAt
		}
		if env.StoredAt.After(summary.FinishedAt) {
			summary.FinishedAt = env.StoredAt
		}
		summary.Add(env.Report)
	}
	return summary, nil
}

// Clear drops every stored report.
func (s *RedisReports) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// ModeQueue marks summaries assembled from worker reports.
const ModeQueue = "queue"
