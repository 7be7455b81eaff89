package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type job struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
}

// Scheduler runs registered jobs on fixed intervals until stopped. A job's first
// run happens one interval after Start.
type Scheduler struct {
	logger *zap.Logger
	jobs   []job

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Every registers fn to run each interval. It must be called before Start.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) {
	s.jobs = append(s.jobs, job{name: name, interval: interval, fn: fn})
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.run(ctx, j)
		s.logger.Info("scheduler job started", zap.String("job", j.name), zap.Duration("interval", j.interval))
	}
}

// Stop cancels in-flight runs and waits for every job goroutine to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.logger.Debug("scheduler job tick", zap.String("job", j.name))
			j.fn(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
