// Package scheduler runs one periodic fetch trigger per source. The
// at-most-one-in-flight-per-source guarantee comes from cron's
// SkipIfStillRunning wrapper; different sources run independently.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "icalarchive/internal/log"
)

// Callback is invoked with the source name on each trigger.
type Callback func(source string)

type Scheduler struct {
	cron *cron.Cron
	log  cron.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New() *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(logger)),
		log:     logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("scheduler started")
}

// Stop stops scheduling; already-running jobs finish. Blocks until they
// have.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	appLog.Info("scheduler stopped")
}

// Schedule registers a periodic trigger for source. An existing trigger
// for the same source is replaced. A run that fires while the previous
// one is still going is skipped, never stacked.
func (s *Scheduler) Schedule(source string, intervalMinutes int, cb Callback) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("interval for %q must be positive, got %d", source, intervalMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(source)

	job := cron.NewChain(cron.SkipIfStillRunning(s.log)).Then(cron.FuncJob(func() {
		cb(source)
	}))
	id, err := s.cron.AddJob(fmt.Sprintf("@every %dm", intervalMinutes), job)
	if err != nil {
		return err
	}
	s.entries[source] = id

	appLog.Info("source scheduled", "source", source, "interval_minutes", intervalMinutes)
	return nil
}

// Unschedule removes the trigger for source, if any.
func (s *Scheduler) Unschedule(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(source)
}

// Reschedule replaces the trigger for source with a new interval.
func (s *Scheduler) Reschedule(source string, intervalMinutes int, cb Callback) error {
	return s.Schedule(source, intervalMinutes, cb)
}

// Scheduled reports whether source currently has a trigger.
func (s *Scheduler) Scheduled(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[source]
	return ok
}

// NextRun reports the next trigger time for source.
func (s *Scheduler) NextRun(source string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[source]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}

func (s *Scheduler) removeLocked(source string) {
	if id, ok := s.entries[source]; ok {
		s.cron.Remove(id)
		delete(s.entries, source)
		appLog.Info("source unscheduled", "source", source)
	}
}

// cronLogger adapts cron's logger interface onto our logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}
