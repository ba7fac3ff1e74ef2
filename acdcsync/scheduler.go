package acdcsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bitbucket.org/mmdatafocus/stocksync_backend/config"
	"bitbucket.org/mmdatafocus/stocksync_backend/models"
	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrRunInProgress is returned to a trigger that arrives while a run is
// active. Triggers are rejected, never queued.
var ErrRunInProgress = errors.New("reconcile run already in progress")

// Scheduler owns the "run in progress" flag and the cron cadence. At most one
// engine run is active at a time; the flag is flipped with a single
// compare-and-swap and cleared by defer so a failed run can never leave it
// stuck.
type Scheduler struct {
	engine  *Engine
	cron    *cron.Cron
	logger  *logrus.Logger
	running atomic.Bool
	lockTTL time.Duration

	mu          sync.Mutex
	lastRunAt   *time.Time
	lastSummary *RunSummary
}

func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{
		engine:  engine,
		logger:  config.GetLogger(),
		lockTTL: utils.DurationFromEnv("RECONCILE_LOCK_TTL", 30*time.Minute),
	}
}

// Start registers the cron cadence (RECONCILE_CRON, default daily at
// midnight) and begins scheduling.
func (s *Scheduler) Start() error {
	spec := utils.StringFromEnv("RECONCILE_CRON", "0 0 * * *")
	s.cron = cron.New()
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.TriggerRun(context.Background(), models.TriggeredSchedule, RunConfig{}); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				s.logger.WithFields(logrus.Fields{"module": "scheduler"}).Warn("scheduled run skipped; previous run still in progress")
				return
			}
			config.LogError(s.logger, "scheduler.go", "Start", "scheduled run", nil, err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{"module": "scheduler", "cron": spec}).Info("scheduler started")
	return nil
}

// Stop halts scheduling and waits for an in-flight scheduled run to finish,
// bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// TriggerRun starts one engine run if none is active. A second concurrent
// trigger gets ErrRunInProgress.
func (s *Scheduler) TriggerRun(ctx context.Context, triggeredBy string, cfg RunConfig) (RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunSummary{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	// Best-effort cross-instance guard. Redis gone or lock errored: proceed
	// on the in-process flag alone; lock held elsewhere: another instance is
	// mid-run, reject like a local overlap.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "stocksync:run", s.lockTTL, nil)
		if err == redislock.ErrNotObtained {
			return RunSummary{}, ErrRunInProgress
		}
		if err != nil {
			s.logger.WithFields(logrus.Fields{"module": "scheduler"}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		} else {
			defer func() {
				if releaseErr := lock.Release(context.Background()); releaseErr != nil && releaseErr != redislock.ErrLockNotHeld {
					s.logger.WithFields(logrus.Fields{"module": "scheduler"}).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}()
		}
	}

	ctx = utils.SetTriggeredByInContext(ctx, triggeredBy)
	if _, ok := utils.GetCorrelationIdFromContext(ctx); !ok {
		ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())
	}

	summary, err := s.engine.RunWith(ctx, cfg)

	now := time.Now()
	s.mu.Lock()
	s.lastRunAt = &now
	if err == nil {
		s.lastSummary = &summary
	}
	s.mu.Unlock()

	return summary, err
}

// Running reports whether a run is currently active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Status is the trigger surface's view of the scheduler.
type Status struct {
	Running     bool        `json:"running"`
	LastRunAt   *time.Time  `json:"lastRunAt"`
	LastSummary *RunSummary `json:"lastSummary"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:     s.running.Load(),
		LastRunAt:   s.lastRunAt,
		LastSummary: s.lastSummary,
	}
}
