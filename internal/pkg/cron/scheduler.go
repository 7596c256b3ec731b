package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
}

// Scheduler runs registered jobs on fixed intervals until stopped. The same
// jobs can be executed a single time with RunOnce for one-shot commands.
type Scheduler struct {
	logger *zap.Logger

	mu   sync.Mutex
	jobs []job

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers fn under name. A non-positive interval disables the job.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn JobFunc) {
	if interval <= 0 {
		s.logger.Info("job disabled", zap.String("job", name))
		return
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, job{name: name, interval: interval, fn: fn})
	s.mu.Unlock()

	s.logger.Info("job registered", zap.String("job", name), zap.Duration("interval", interval))
}

// Start launches one goroutine per job. Each job fires immediately, then on
// every tick of its interval.
func (s *Scheduler) Start() {
	jobs := s.snapshot()
	for _, j := range jobs {
		s.wg.Add(1)
		go s.loop(j)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(jobs)))
}

// Stop cancels running jobs and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.logger.Info("scheduler stopped")
	})
}

// RunOnce executes every job a single time in registration order and returns
// the number that failed. Jobs not reached because ctx ended count as one failure.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	failed := 0
	for _, j := range s.snapshot() {
		if ctx.Err() != nil {
			return failed + 1
		}
		if err := s.exec(ctx, j); err != nil {
			failed++
		}
	}
	return failed
}

func (s *Scheduler) snapshot() []job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]job(nil), s.jobs...)
}

func (s *Scheduler) loop(j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		_ = s.exec(s.ctx, j)

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) exec(ctx context.Context, j job) error {
	log := s.logger.With(zap.String("job", j.name))
	start := time.Now()

	if err := j.fn(ctx); err != nil {
		log.Error("job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return err
	}
	log.Debug("job finished", zap.Duration("took", time.Since(start)))
	return nil
}
