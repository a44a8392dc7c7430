// Package engine provides the segregation model, its scheduler and metric, and
// the real-time tick loop that drives it.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultReportEvery is how often OnReport fires when ReportEvery is unset.
const DefaultReportEvery = 100

// Engine drives a simulation forward in (optionally paced) real time.
type Engine struct {
	Interval    time.Duration // Base tick interval; 0 runs as fast as possible
	MaxTicks    uint64        // Stop after this many ticks; 0 = until stopped
	ReportEvery uint64        // OnReport period in ticks

	// Callbacks, populated during setup.
	OnTick   func(tick uint64) // Every tick
	OnReport func(tick uint64) // Every ReportEvery ticks and once on exit

	mu      sync.Mutex
	tick    uint64
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
	cancel  context.CancelFunc
}

// NewEngine creates an engine at speed 1 with a one-second interval.
func NewEngine() *Engine {
	return &Engine{
		Interval:    time.Second,
		ReportEvery: DefaultReportEvery,
		speed:       1.0,
	}
}

// Run starts the loop. Blocks until ctx is done, Stop is called or MaxTicks
// is reached.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	start := e.tick
	e.mu.Unlock()

	slog.Info("simulation engine started", "tick", start, "speed", e.Speed(), "max_ticks", e.MaxTicks)

	for ctx.Err() == nil {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			sleep(ctx, 100*time.Millisecond)
			continue
		}

		began := time.Now()
		tick := e.step()

		if e.MaxTicks > 0 && tick-start >= e.MaxTicks {
			break
		}

		if e.Interval > 0 {
			elapsed := time.Since(began)
			target := time.Duration(float64(e.Interval) / speed)
			if elapsed < target {
				sleep(ctx, target-elapsed)
			}
		}
	}

	e.mu.Lock()
	e.running = false
	e.cancel = nil
	tick := e.tick
	e.mu.Unlock()

	if e.OnReport != nil && tick%e.reportEvery() != 0 {
		e.OnReport(tick)
	}
	slog.Info("simulation engine stopped", "tick", tick)
}

// Stop halts the loop started by Run.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Tick returns the number of ticks the engine has driven.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// SetTick sets the tick counter (used when resuming or after a reset).
func (e *Engine) SetTick(t uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick = t
}

// Speed returns the pacing multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed sets the pacing multiplier. 0 pauses.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if speed < 0 {
		speed = 0
	}
	e.speed = speed
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// step advances the engine by one tick.
func (e *Engine) step() uint64 {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(tick)
	}
	if tick%e.reportEvery() == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}
	return tick
}

func (e *Engine) reportEvery() uint64 {
	if e.ReportEvery == 0 {
		return DefaultReportEvery
	}
	return e.ReportEvery
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
