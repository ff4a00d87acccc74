package scheduler

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/internal/metrics"
)

// JobType represents the different reload jobs
type JobType int

const (
	JobTypeArtifacts JobType = iota
	JobTypeDatasets
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeArtifacts:
		return "artifacts"
	case JobTypeDatasets:
		return "datasets"
	default:
		return "unknown"
	}
}

// Reloader rebuilds a snapshot and swaps it in, keeping the old one on error
type Reloader interface {
	Reload() error
}

// Scheduler periodically reloads prediction artifacts and statistics datasets
type Scheduler struct {
	jobs     map[JobType]Reloader
	interval time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Collector
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	jobMutex sync.Mutex // Ensures sequential job execution
}

// NewScheduler creates a new scheduler. A nil reloader skips that job.
func NewScheduler(artifacts, datasets Reloader, interval time.Duration, logger *logrus.Logger, collector *metrics.Collector) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	jobs := make(map[JobType]Reloader, 2)
	if artifacts != nil {
		jobs[JobTypeArtifacts] = artifacts
	}
	if datasets != nil {
		jobs[JobTypeDatasets] = datasets
	}

	return &Scheduler{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
		metrics:  collector,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic reloads. It is a no-op when the interval is not positive.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.logger.Info("Periodic reload disabled")
		return
	}
	s.wg.Add(1)
	go s.runScheduler()
}

// runScheduler handles all scheduled reloads
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	s.logger.WithField("interval", s.interval.String()).Info("Reload scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunAll()
		}
	}
}

// RunAll executes every job in order. Concurrent callers are serialized.
// It returns the first error encountered; later jobs still run.
func (s *Scheduler) RunAll() error {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	var first error
	for _, job := range []JobType{JobTypeArtifacts, JobTypeDatasets} {
		if err := s.runJob(job); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Scheduler) runJob(job JobType) error {
	reloader, ok := s.jobs[job]
	if !ok {
		return nil
	}

	fields := logrus.Fields{"job_type": job.String()}
	s.logger.WithFields(fields).Info("Starting reload job")
	timer := metrics.StartTimer()

	err := reloader.Reload()
	s.metrics.RecordReload(job.String(), err)
	fields["duration_ms"] = timer.Elapsed().Milliseconds()
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Error("Reload job failed, keeping previous snapshot")
		return err
	}
	s.logger.WithFields(fields).Info("Reload job completed successfully")
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
