package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Name() string                  { return j.JobName }
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Named schedule frequencies.
var frequencies = map[string]time.Duration{
	"everyminute":         time.Minute,
	"everyfiveminutes":    5 * time.Minute,
	"everytenminutes":     10 * time.Minute,
	"everyfifteenminutes": 15 * time.Minute,
	"everythirtyminutes":  30 * time.Minute,
	"hourly":              time.Hour,
	"daily":               24 * time.Hour,
}

// DefaultFrequency is used when no frequency is configured.
const DefaultFrequency = "hourly"

// ParseFrequency converts a schedule frequency to an interval. It accepts
// the named frequencies (everyMinute, everyFiveMinutes, everyTenMinutes,
// everyFifteenMinutes, everyThirtyMinutes, hourly, daily) or a Go duration
// such as "90s".
func ParseFrequency(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultFrequency
	}
	if d, ok := frequencies[strings.ToLower(s)]; ok {
		return d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("unknown schedule frequency %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("schedule frequency must be positive: %q", s)
	}
	return d, nil
}

// Config holds scheduler configuration
type Config struct {
	// WorkerID uniquely identifies this scheduler instance
	WorkerID string

	// Interval is how often every job runs
	Interval time.Duration

	// Timeout bounds a single job run (0 = Interval)
	Timeout time.Duration

	// RunOnStart runs every job once before the first tick
	RunOnStart bool
}

// Scheduler runs jobs on a fixed interval. A failing job is logged and
// tried again on the next tick.
type Scheduler struct {
	config Config
	jobs   []Job
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewScheduler creates a new scheduler for jobs
func NewScheduler(config Config, logger *slog.Logger, jobs ...Job) *Scheduler {
	// Set defaults
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("scheduler-%s", uuid.New().String()[:8])
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		config: config,
		jobs:   jobs,
		logger: logger,
	}
}

// Start runs jobs until the context is cancelled, then waits for the
// in-flight run to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"worker_id", s.config.WorkerID,
		"interval", s.config.Interval,
		"jobs", len(s.jobs),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.RunOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down", "worker_id", s.config.WorkerID)
			s.wg.Wait()
			return ctx.Err()

		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job once, sequentially.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, job)
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	err := s.safeRun(jobCtx, job)
	if err != nil {
		s.logger.Error("job failed",
			"worker_id", s.config.WorkerID,
			"job", job.Name(),
			"duration", time.Since(start),
			"error", err,
		)
		return
	}

	s.logger.Debug("job completed",
		"worker_id", s.config.WorkerID,
		"job", job.Name(),
		"duration", time.Since(start),
	)
}

// safeRun turns a panicking job into an error so the loop keeps going.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}
