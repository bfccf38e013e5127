// Package tracker runs the periodic update loop that moves a flying drone,
// drains its battery and publishes each new sample.
package tracker

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/OCAP2/drone-tracker/internal/drone"
	"github.com/OCAP2/drone-tracker/pkg/core"
)

const (
	// Period is the fixed interval between ticks.
	Period = time.Second

	// DrainPerTick is the battery percent consumed by every flying tick.
	DrainPerTick = 0.5

	// offsets are drawn from [-stepSpan/2, stepSpan/2-1]
	stepSpan = 20
)

// Publisher receives every sample produced by a flying tick.
// Publish must not block; samples it cannot accept are dropped.
type Publisher interface {
	Publish(state core.DroneState)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(core.DroneState)

func (f PublisherFunc) Publish(s core.DroneState) { f(s) }

// Tracker is one update loop bound to one drone. A stopped Tracker is not
// restarted; a new one is created for every flight.
type Tracker struct {
	drone     *drone.Drone
	publisher Publisher
	logger    *slog.Logger

	sessionID string
	rng       *rand.Rand
	sleep     func(time.Duration)

	onDepleted func(core.DroneState)

	running  atomic.Bool
	started  atomic.Bool
	ticks    atomic.Uint64
	depleted atomic.Bool
	done     chan struct{}
}

// New creates a stopped tracker for d. sessionID is stamped on published samples.
func New(d *drone.Drone, publisher Publisher, logger *slog.Logger, sessionID string) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		drone:     d,
		publisher: publisher,
		logger:    logger,
		sessionID: sessionID,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep:     time.Sleep,
		done:      make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling Start more than once has no effect.
func (t *Tracker) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.running.Store(true)
	go t.run()
}

// Stop asks the loop to exit. The request is observed at the loop's next
// wake-up, so one more tick may still run.
func (t *Tracker) Stop() {
	t.running.Store(false)
}

// Running reports whether the loop has not been asked to stop.
func (t *Tracker) Running() bool {
	return t.running.Load()
}

// Done is closed once the loop goroutine has returned.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Ticks returns the number of flying ticks executed so far.
func (t *Tracker) Ticks() uint64 {
	return t.ticks.Load()
}

func (t *Tracker) run() {
	defer close(t.done)
	t.logger.Debug("Tracker started", "drone", t.drone.ID(), "session", t.sessionID)
	for t.running.Load() {
		t.Tick()
		t.sleep(Period)
	}
	t.logger.Debug("Tracker stopped", "drone", t.drone.ID(), "session", t.sessionID, "ticks", t.Ticks())
}

// Tick runs one loop body. It returns the published sample, or false when
// the drone was not flying and nothing happened.
func (t *Tracker) Tick() (core.DroneState, bool) {
	dx := t.rng.IntN(stepSpan) - stepSpan/2
	dy := t.rng.IntN(stepSpan) - stepSpan/2

	state, ok := t.drone.Step(dx, dy, DrainPerTick)
	if !ok {
		return core.DroneState{}, false
	}

	state.Tick = t.ticks.Add(1)
	state.SessionID = t.sessionID
	t.logger.Debug(fmt.Sprintf("Drone moved to coordinates: (%d, %d)", state.Position.X, state.Position.Y),
		"battery", state.BatteryPercent)

	if state.BatteryPercent == 0 && t.depleted.CompareAndSwap(false, true) {
		t.logger.Warn("Battery depleted while flying", "drone", state.DroneID, "x", state.Position.X, "y", state.Position.Y)
		if t.onDepleted != nil {
			t.onDepleted(state)
		}
	}

	if t.publisher != nil {
		t.publisher.Publish(state)
	}
	return state, true
}

// Depleted reports whether the battery reached zero during this loop.
func (t *Tracker) Depleted() bool {
	return t.depleted.Load()
}

// OnDepleted registers fn to be called once, from the loop goroutine, the
// first time the battery reaches zero. The drone keeps flying. Must be set
// before Start.
func (t *Tracker) OnDepleted(fn func(core.DroneState)) {
	t.onDepleted = fn
}
