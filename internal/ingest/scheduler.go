package ingest

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// FetchLogCleaner prunes old entries from the fetch audit log.
type FetchLogCleaner interface {
	CleanupOldFetchRuns(retentionDays int) (int64, error)
}

// Scheduler periodically refreshes the archive index, re-warms the station
// cache and prunes the fetch log.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher *IndexRefresher
	warmer    *CacheWarmer
	interval  time.Duration
	timeout   time.Duration

	cleaner       FetchLogCleaner
	retentionDays int
}

func NewScheduler(refresher *IndexRefresher, warmer *CacheWarmer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		warmer:    warmer,
		interval:  interval,
		timeout:   10 * time.Minute,
	}
}

// SetFetchLogRetention enables pruning of fetch runs older than days on
// every run. Zero disables pruning.
func (s *Scheduler) SetFetchLogRetention(cleaner FetchLogCleaner, days int) {
	s.cleaner = cleaner
	s.retentionDays = days
}

// Start schedules the job, runs it once immediately and returns.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.run); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Printf("scheduler: index refresh every %s", s.interval)
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.refresher != nil {
		if _, err := s.refresher.Refresh(ctx); err != nil {
			log.Printf("scheduler: refresh index: %v", err)
		}
	}
	if s.warmer != nil {
		n := s.warmer.Warm(ctx)
		log.Printf("scheduler: warmed %d stations", n)
	}
	if s.cleaner != nil && s.retentionDays > 0 {
		n, err := s.cleaner.CleanupOldFetchRuns(s.retentionDays)
		if err != nil {
			log.Printf("scheduler: prune fetch log: %v", err)
		} else if n > 0 {
			log.Printf("scheduler: pruned %d fetch runs older than %d days", n, s.retentionDays)
		}
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
