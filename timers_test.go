package hubbot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUntilNextDaily(t *testing.T) {
	day := func(hour, min int) time.Time {
		return time.Date(2024, 3, 1, hour, min, 0, 0, time.UTC)
	}
	cases := []struct {
		name string
		now  time.Time
		at   time.Duration
		want time.Duration
	}{
		{"later today", day(10, 0), 12 * time.Hour, 2 * time.Hour},
		{"already passed", day(13, 0), 12 * time.Hour, 23 * time.Hour},
		{"exactly now", day(12, 0), 12 * time.Hour, 24 * time.Hour},
		{"midnight", day(0, 0), 0, 24 * time.Hour},
		{"just before", day(11, 59), 12 * time.Hour, time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, untilNextDaily(tc.now, tc.at))
		})
	}
}

func TestSchedulerAfter(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	fired := make(chan struct{})
	s.After(time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestSchedulerAfterCancel(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	fired := make(chan struct{})
	cancel := s.After(50*time.Millisecond, func() { close(fired) })
	cancel()
	cancel() // idempotent

	select {
	case <-fired:
		t.Fatal("cancelled timer fired anyway")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSchedulerEvery(t *testing.T) {
	s := NewScheduler(nil)
	defer s.Stop()

	ticks := make(chan struct{}, 16)
	cancel := s.Every(time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(5 * time.Second):
			t.Fatal("ticker stopped ticking")
		}
	}
	cancel()
}

func TestSchedulerStopPreventsNewTimers(t *testing.T) {
	s := NewScheduler(nil)
	s.Stop()

	fired := make(chan struct{})
	s.After(time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
		t.Fatal("a stopped scheduler accepted a timer")
	case <-time.After(100 * time.Millisecond):
	}
}
