// Package reaper is C1's orphan-run sweep: a background loop that finds
// JobRuns stuck in "running" past a heartbeat threshold and fails them, so
// a crashed worker doesn't leave a run permanently stuck. Grounded on the
// teacher's pkg/queue/orphan.go ticker-driven detectAndRecoverOrphans loop,
// with the run/stop goroutine idiom shared with pkg/feedback.Worker.
//
// Unlike the teacher's orphan sweep (every pod scans independently, safe
// because the UPDATE is idempotent), the Engine adds a distributed lease so
// only one process reaps per tick, grounded on intelligencedev-manifold's
// internal/orchestrator/dedupe.go RedisDedupeStore (same redis.NewClient +
// Ping-on-construct shape, reused here as a SETNX lock instead of a GET/SET
// dedupe cache).
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config controls sweep cadence, the staleness threshold, and the
// distributed lease.
type Config struct {
	Interval           time.Duration `yaml:"interval" validate:"min=1"`
	HeartbeatThreshold time.Duration `yaml:"heartbeat_threshold" validate:"min=1"`
	LeaseKey           string        `yaml:"lease_key"`
	LeaseTTL           time.Duration `yaml:"lease_ttl" validate:"min=1"`
}

// DefaultConfig mirrors the teacher's OrphanDetectionInterval/OrphanThreshold
// defaults.
func DefaultConfig() Config {
	return Config{
		Interval:           time.Minute,
		HeartbeatThreshold: 10 * time.Minute,
		LeaseKey:           "engine:reaper:lease",
		LeaseTTL:           90 * time.Second,
	}
}

// Runs is the subset of *store.RunStore the reaper sweeps.
type Runs interface {
	SweepOrphans(ctx context.Context, heartbeatThreshold time.Duration) (int64, error)
}

// Reaper periodically sweeps orphaned runs, holding a Redis lease so only
// one Engine process does the sweep on any given tick.
type Reaper struct {
	runs   Runs
	redis  *redis.Client
	cfg    Config
	nodeID string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Reaper and pings redisAddr to validate the connection,
// the way NewRedisDedupeStore does before returning.
func New(redisAddr string, runs Runs, cfg Config) (*Reaper, error) {
	d := DefaultConfig()
	if cfg.Interval > 0 {
		d.Interval = cfg.Interval
	}
	if cfg.HeartbeatThreshold > 0 {
		d.HeartbeatThreshold = cfg.HeartbeatThreshold
	}
	if cfg.LeaseKey != "" {
		d.LeaseKey = cfg.LeaseKey
	}
	if cfg.LeaseTTL > 0 {
		d.LeaseTTL = cfg.LeaseTTL
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Reaper{
		runs:   runs,
		redis:  client,
		cfg:    d,
		nodeID: uuid.New().String(),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins the sweep loop in a background goroutine.
func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop signals the loop to exit, waits for it to finish, and closes the
// Redis connection. Safe to call more than once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	_ = r.redis.Close()
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()
	slog.Info("reaper started", "interval", r.cfg.Interval, "heartbeat_threshold", r.cfg.HeartbeatThreshold)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			slog.Info("reaper shutting down")
			return
		case <-ctx.Done():
			slog.Info("reaper shutting down", "reason", "context cancelled")
			return
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				slog.Error("reaper tick failed", "error", err)
			}
		}
	}
}

// tick attempts to acquire the lease and, if successful, sweeps orphaned
// runs. The lease is never explicitly released: it expires on its own TTL,
// which bounds how long a crashed reaper can hold the lock without anyone
// else being able to sweep.
func (r *Reaper) tick(ctx context.Context) error {
	acquired, err := r.redis.SetNX(ctx, r.cfg.LeaseKey, r.nodeID, r.cfg.LeaseTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire reaper lease: %w", err)
	}
	if !acquired {
		return nil
	}

	n, err := r.runs.SweepOrphans(ctx, r.cfg.HeartbeatThreshold)
	if err != nil {
		return fmt.Errorf("sweep orphans: %w", err)
	}
	if n > 0 {
		slog.Warn("reaper swept orphaned runs", "count", n)
	}
	return nil
}
