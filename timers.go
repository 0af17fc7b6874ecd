package hubbot

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler provides the fire-once and repeating timers available to
// handler chains for deferred and periodic work (periodic refreshes,
// countdowns, limiter decay). All callbacks run on their own goroutine;
// anything they share with handlers must be guarded by the owner.
type Scheduler struct {
	mu      sync.Mutex
	stops   map[uint64]func()
	nextID  uint64
	stopped bool
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		stops:  make(map[uint64]func()),
		logger: logger,
	}
}

// After runs fn once after d. The returned cancel is idempotent.
func (s *Scheduler) After(d time.Duration, fn func()) (cancel func()) {
	timer := time.AfterFunc(d, fn)
	return s.track(func() { timer.Stop() })
}

// Every runs fn every interval until cancelled.
func (s *Scheduler) Every(interval time.Duration, fn func()) (cancel func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return s.track(func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	})
}

// EachDay runs fn daily at the given UTC offset from midnight.
func (s *Scheduler) EachDay(at time.Duration, fn func()) (cancel func()) {
	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			delay := untilNextDaily(time.Now().UTC(), at)
			s.logger.Info("daily timer loaded",
				slog.Duration("delay", delay))
			select {
			case <-done:
				return
			case <-time.After(delay):
				fn()
			}
		}
	}()
	var once sync.Once
	return s.track(func() {
		once.Do(func() { close(done) })
	})
}

func (s *Scheduler) track(stop func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		stop()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.stops[id] = stop
	return func() {
		s.mu.Lock()
		fn, ok := s.stops[id]
		delete(s.stops, id)
		s.mu.Unlock()
		if ok {
			fn()
		}
	}
}

// Stop cancels every timer and waits for repeating callbacks to unwind.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	stops := make([]func(), 0, len(s.stops))
	for _, fn := range s.stops {
		stops = append(stops, fn)
	}
	s.stops = map[uint64]func(){}
	s.mu.Unlock()
	for _, fn := range stops {
		fn()
	}
	s.wg.Wait()
}

func untilNextDaily(now time.Time, at time.Duration) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := midnight.Add(at)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
