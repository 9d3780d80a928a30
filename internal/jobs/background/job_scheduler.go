package background

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	JobSubscriptionExpiry = "subscription-expiry"

	sweepTimeout = time.Minute
)

// SubscriptionExpirer moves lapsed cancelled subscriptions to expired.
type SubscriptionExpirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

// JobScheduler runs the periodic maintenance jobs of the service
type JobScheduler struct {
	scheduler gocron.Scheduler
	expirer   SubscriptionExpirer
	logger    *zap.Logger
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

// NewJobScheduler creates a scheduler and registers the subscription expiry
// sweep to run every sweepInterval.
func NewJobScheduler(expirer SubscriptionExpirer, clock clockwork.Clock, sweepInterval time.Duration, logger *zap.Logger) (*JobScheduler, error) {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler: scheduler,
		expirer:   expirer,
		logger:    logger.Named("scheduler"),
		jobs:      make(map[string]gocron.Job),
	}
	if err := js.AddJob(JobSubscriptionExpiry, sweepInterval, js.expireSubscriptions); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler", zap.Int("jobs", len(js.jobs)))
	js.scheduler.Start()
}

// Stop waits for running jobs and stops the scheduler
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// expireSubscriptions is the body of the subscription expiry job.
func (js *JobScheduler) expireSubscriptions() error {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := js.expirer.ExpireLapsed(ctx)
	if err != nil {
		js.logger.Error("subscription expiry sweep failed", zap.Error(err))
		return err
	}
	if n > 0 {
		js.logger.Info("subscription expiry sweep completed", zap.Int("expired", n))
	}
	return nil
}

// AddJob adds a job that runs fn every interval. Runs of the same job never overlap.
func (js *JobScheduler) AddJob(name string, interval time.Duration, fn func() error) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	js.jobs[name] = job
	js.logger.Debug("registered job", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

// RunNow triggers a registered job outside its schedule.
func (js *JobScheduler) RunNow(name string) error {
	js.mu.RLock()
	job, ok := js.jobs[name]
	js.mu.RUnlock()
	if !ok {
		return gocron.ErrJobNotFound
	}
	return job.RunNow()
}

// RemoveJob removes a job from the scheduler
func (js *JobScheduler) RemoveJob(name string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobs[name]; exists {
		err := js.scheduler.RemoveJob(job.ID())
		delete(js.jobs, name)
		return err
	}
	return nil
}

// JobNames lists the registered jobs in name order.
func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()

	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
