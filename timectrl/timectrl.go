package timectrl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidSchedule is returned for schedules with a non-positive step or
// count.
var ErrInvalidSchedule = errors.New("invalid sample schedule")

// Schedule describes Count sample instants spaced Step apart from Start.
type Schedule struct {
	Start time.Time
	Step  time.Duration
	Count int
}

// Validate checks that the schedule yields at least one instant.
func (s Schedule) Validate() error {
	if s.Step <= 0 {
		return fmt.Errorf("%w: step %s must be positive", ErrInvalidSchedule, s.Step)
	}
	if s.Count <= 0 {
		return fmt.Errorf("%w: count %d must be positive", ErrInvalidSchedule, s.Count)
	}
	return nil
}

// At returns the i-th sample instant.
func (s Schedule) At(i int) time.Time {
	return s.Start.Add(time.Duration(i) * s.Step)
}

// End returns the last sample instant.
func (s Schedule) End() time.Time {
	if s.Count <= 0 {
		return s.Start
	}
	return s.At(s.Count - 1)
}

// Times expands the schedule into its instants.
func (s Schedule) Times() []time.Time {
	if s.Count <= 0 {
		return nil
	}
	out := make([]time.Time, s.Count)
	for i := range out {
		out[i] = s.At(i)
	}
	return out
}

// Clock is read by components that need the current tracking time.
type Clock interface {
	Now() time.Time
}

// Mode describes how the TimeController advances time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as fast as listeners return, still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// TimeController drives tracking time and notifies registered listeners on
// every tick. The first notification is for StartTime itself.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	listeners   []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current tracking time. Implements Clock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the controller to t without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Start runs the controller in a separate goroutine until duration has
// elapsed in tracking time or ctx is cancelled. A duration of zero runs until
// cancellation. No tick falls past StartTime+duration; when duration is not a
// multiple of Tick the last tick is the final one inside the window. The
// returned channel is closed when the controller stops.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		var ticks <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			ticks = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			tc.notify(simTime)
			if duration > 0 && elapsed+tc.Tick > duration {
				return
			}

			if ticks != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticks:
				}
			} else if ctx.Err() != nil {
				return
			}

			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.mu.Unlock()
		}
	}()
	return done
}

func (tc *TimeController) notify(t time.Time) {
	tc.mu.RLock()
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.RUnlock()
	for _, fn := range listeners {
		fn(t)
	}
}
