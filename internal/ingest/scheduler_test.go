package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ujung/wetter/internal/dwd"
)

type fakeCleaner struct {
	mu    sync.Mutex
	calls []int
	err   error
}

func (f *fakeCleaner) CleanupOldFetchRuns(days int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, days)
	return 3, f.err
}

type signallingLister struct {
	names  []string
	called chan struct{}
	once   sync.Once
}

func (l *signallingLister) List(ctx context.Context) ([]string, error) {
	l.once.Do(func() { close(l.called) })
	return l.names, nil
}

func TestScheduler_Run(t *testing.T) {
	index := dwd.NewArchiveIndex(nil)
	refresher := NewIndexRefresher(&fakeLister{names: []string{"tageswerte_KL_03379_18790101_20241231_hist.zip"}}, "http", index)
	src := &fakeSource{}
	cleaner := &fakeCleaner{}

	s := NewScheduler(refresher, NewCacheWarmer(src, []int{3379}), time.Hour)
	s.SetFetchLogRetention(cleaner, 30)
	s.run()

	if _, ok := index.Lookup("03379"); !ok {
		t.Error("index not refreshed")
	}
	if len(src.seen) != 1 || src.seen[0] != 3379 {
		t.Errorf("warmed = %v, want [3379]", src.seen)
	}
	if len(cleaner.calls) != 1 || cleaner.calls[0] != 30 {
		t.Errorf("cleanup calls = %v, want [30]", cleaner.calls)
	}
}

func TestScheduler_RunRetention(t *testing.T) {
	tests := []struct {
		name      string
		days      int
		err       error
		wantCalls int
	}{
		{"disabled", 0, nil, 0},
		{"enabled", 7, nil, 1},
		{"cleanup error is logged", 7, errors.New("database is locked"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaner := &fakeCleaner{err: tt.err}
			s := NewScheduler(nil, nil, time.Hour)
			s.SetFetchLogRetention(cleaner, tt.days)
			s.run()
			if len(cleaner.calls) != tt.wantCalls {
				t.Errorf("cleanup calls = %d, want %d", len(cleaner.calls), tt.wantCalls)
			}
		})
	}
}

func TestScheduler_SubHourInterval(t *testing.T) {
	lister := &signallingLister{
		names:  []string{"tageswerte_KL_00044_19690101_20241231_hist.zip"},
		called: make(chan struct{}),
	}
	s := NewScheduler(NewIndexRefresher(lister, "http", dwd.NewArchiveIndex(nil)), nil, 30*time.Minute)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	select {
	case <-lister.called:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run immediately")
	}

	jobs := s.scheduler.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}

	// The next run is rescheduled once the immediate run has finished.
	deadline := time.Now().Add(5 * time.Second)
	for time.Until(jobs[0].NextRun()) < time.Minute && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if wait := time.Until(jobs[0].NextRun()); wait < 20*time.Minute || wait > 40*time.Minute {
		t.Errorf("next run in %v, want about 30m", wait)
	}
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	if s := NewScheduler(nil, nil, 0); s.interval != 24*time.Hour {
		t.Errorf("interval = %v, want 24h", s.interval)
	}
}
