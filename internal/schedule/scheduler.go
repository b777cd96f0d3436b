package schedule

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultPollInterval is the pause between full schedule passes.
	DefaultPollInterval = 30 * time.Second
	// stopCheckInterval bounds shutdown latency independent of the poll
	// interval.
	stopCheckInterval = 500 * time.Millisecond
	// stopJoinTimeout bounds how long Stop waits for the poll goroutine.
	stopJoinTimeout = 5 * time.Second
)

// TriggerFunc is invoked with a script key when its schedule comes due. The
// scheduler does not wait for the triggered process to actually start.
type TriggerFunc func(key string)

// IsRunningFunc reports whether the keyed script already has a live process;
// a due entry never fires while one does.
type IsRunningFunc func(key string) bool

// Scheduler polls parsed schedule entries against the wall clock and fires
// trigger callbacks. One background goroutine; entries and firing history
// share a single mutex, held only for map access.
type Scheduler struct {
	onTrigger TriggerFunc
	isRunning IsRunningFunc
	logger    *slog.Logger

	mu        sync.Mutex
	entries   map[string]Entry
	lastFired map[string]time.Time

	pollInterval time.Duration
	now          func() time.Time

	runMu sync.Mutex
	quit  chan struct{}
	done  chan struct{}
}

// NewScheduler builds a stopped scheduler. Start begins polling.
func NewScheduler(onTrigger TriggerFunc, isRunning IsRunningFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		onTrigger:    onTrigger,
		isRunning:    isRunning,
		logger:       logger,
		entries:      make(map[string]Entry),
		lastFired:    make(map[string]time.Time),
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
}

// SetPollInterval overrides the default poll interval. Must be called before
// Start.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// UpdateSchedule parses raw and installs the result for key. An Off result
// removes both the entry and its firing history so a disabled script can
// never fire again and starts fresh if re-enabled. A re-parameterized entry
// keeps its history; a changed time-of-day naturally won't match the stale
// last-fired minute, which is the correct suppression behavior.
func (s *Scheduler) UpdateSchedule(key, raw string) {
	entry := Parse(raw)
	s.mu.Lock()
	if entry.Kind == Off {
		delete(s.entries, key)
		delete(s.lastFired, key)
	} else {
		s.entries[key] = entry
	}
	s.mu.Unlock()
}

// RemoveSchedule unconditionally drops the entry and history for key.
func (s *Scheduler) RemoveSchedule(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	delete(s.lastFired, key)
	s.mu.Unlock()
}

// LoadAll clears all state and reseeds from a key -> raw schedule map.
func (s *Scheduler) LoadAll(raw map[string]string) {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.lastFired = make(map[string]time.Time)
	s.mu.Unlock()
	for key, r := range raw {
		s.UpdateSchedule(key, r)
	}
}

// Entry returns the stored entry for key, if any.
func (s *Scheduler) Entry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// Entries returns a snapshot of all stored entries.
func (s *Scheduler) Entries() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = e
	}
	return out
}

// Start launches the polling goroutine. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.quit != nil {
		return
	}
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.quit, s.done)
}

// Stop signals the polling goroutine and waits (bounded) for it to finish so
// no trigger fires after shutdown begins. Stopping a stopped scheduler is a
// no-op.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	quit, done := s.quit, s.done
	s.quit, s.done = nil, nil
	s.runMu.Unlock()
	if quit == nil {
		return
	}
	close(quit)
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		s.logger.Warn("scheduler poll loop did not stop in time")
	}
}

func (s *Scheduler) loop(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		s.checkAll()
		// Sleep in small increments so Stop stays responsive.
		for slept := time.Duration(0); slept < s.pollInterval; slept += stopCheckInterval {
			select {
			case <-quit:
				return
			case <-time.After(stopCheckInterval):
			}
		}
	}
}

// checkAll runs one pass over all entries. A panic inside a pass is logged
// and must not kill the poll loop; the next interval retries.
func (s *Scheduler) checkAll() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler pass failed", "error", fmt.Sprint(r))
		}
	}()

	now := s.now()
	s.mu.Lock()
	snapshot := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		snapshot[k] = e
	}
	s.mu.Unlock()

	for key, entry := range snapshot {
		s.mu.Lock()
		last := s.lastFired[key]
		s.mu.Unlock()
		if !entry.due(now, last) {
			continue
		}
		if s.isRunning != nil && s.isRunning(key) {
			continue
		}
		// Record the firing before invoking the callback: the callback may be
		// slow, and a re-entrant pass must see the entry as already fired.
		s.mu.Lock()
		s.lastFired[key] = now
		s.mu.Unlock()
		s.logger.Debug("schedule fired", "key", key, "schedule", entry.String())
		if s.onTrigger != nil {
			s.onTrigger(key)
		}
	}
}
