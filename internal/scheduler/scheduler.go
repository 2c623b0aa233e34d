package scheduler

import (
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"athensenergy/server/internal/pipeline"
)

// Runner analyses the stored listings of one neighborhood, or all of them for
// an empty name.
type Runner interface {
	RunStored(neighborhood string) (pipeline.Result, error)
}

// Scheduler re-runs the analysis over stored listings at a fixed interval.
type Scheduler struct {
	runner        Runner
	logger        *logrus.Logger
	clock         clockwork.Clock
	interval      time.Duration
	neighborhoods []string
	stopChan      chan struct{}
	wg            sync.WaitGroup
	jobMutex      sync.Mutex // Ensures sequential job execution
}

// NewScheduler creates a new scheduler. With no neighborhoods configured each
// tick analyses all stored listings in one run.
func NewScheduler(runner Runner, logger *logrus.Logger, clock clockwork.Clock, interval time.Duration, neighborhoods []string) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if len(neighborhoods) == 0 {
		neighborhoods = []string{""}
	}

	return &Scheduler{
		runner:        runner,
		logger:        logger,
		clock:         clock,
		interval:      interval,
		neighborhoods: neighborhoods,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the scheduled runs
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.Chan():
			s.executeScheduledJobs(t)
		}
	}
}

// executeScheduledJobs skips a tick while the previous one is still running.
func (s *Scheduler) executeScheduledJobs(t time.Time) {
	if !s.jobMutex.TryLock() {
		s.logger.Debug("Skipping scheduled analysis while the previous one is in progress")
		return
	}
	defer s.jobMutex.Unlock()

	s.logger.WithField("tick", t.Format(time.RFC3339)).Debug("Running scheduled analyses")
	s.RunNow()
}

// RunNow analyses every configured neighborhood sequentially.
func (s *Scheduler) RunNow() {
	for _, nb := range s.neighborhoods {
		fields := logrus.Fields{"neighborhood": nb, "job_type": "scheduled_analysis"}
		result, err := s.runner.RunStored(nb)
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("Scheduled analysis failed")
			continue
		}
		fields["run_id"] = result.RunID
		fields["groups"] = len(result.Groups)
		fields["rejected"] = result.RejectedCount
		s.logger.WithFields(fields).Info("Scheduled analysis completed")
	}
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
