package timer

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	DefaultIdleThreshold  = 5 * time.Minute
	DefaultLongPauseAlert = 10 * time.Minute
)

type Options struct {
	// IdleThreshold is the probe-reported inactivity that flips a Running
	// tracker to Idle. Zero means DefaultIdleThreshold.
	IdleThreshold time.Duration

	// LongPauseAlert is how long the tracker may sit in Paused or Idle
	// before CheckLongPause fires. Zero means DefaultLongPauseAlert.
	LongPauseAlert time.Duration
}

// Tracker is a state machine over one in-progress work session. It owns the
// session's timing state until Stop, at which point the host commits the
// result to a sessions.Store.
//
// All operations take a single mutex; the tracker is safe to drive from a
// host goroutine plus a periodic tick goroutine, but listeners are invoked
// synchronously under that mutex and must not call back in.
type Tracker struct {
	mu sync.Mutex

	state     TimerState
	taskName  string
	startedAt time.Time
	pausedAt  time.Time
	idleFrom  time.Time

	elapsed   time.Duration
	idleTotal time.Duration

	lastPauseReason PauseReason
	everPaused      bool

	opts      Options
	probe     ActivityProbe
	logger    hclog.Logger
	now       func() time.Time
	listeners []Listener
}

func New(probe ActivityProbe, logger hclog.Logger, opts Options) *Tracker {
	if probe == nil {
		probe = StaticProbe{}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = DefaultIdleThreshold
	}
	if opts.LongPauseAlert <= 0 {
		opts.LongPauseAlert = DefaultLongPauseAlert
	}
	return &Tracker{
		state:  Stopped,
		opts:   opts,
		probe:  probe,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers a listener for state-change, idle and long-pause
// events. Any number of listeners may subscribe.
func (t *Tracker) Subscribe(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Start begins tracking a new session. It fails (returns false) unless the
// tracker is Stopped.
func (t *Tracker) Start(taskName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	to, ok := nextState(t.state, intentStart)
	if !ok {
		t.logger.Warn("cannot start timer", "state", t.state)
		return false
	}

	if taskName != "" {
		t.taskName = taskName
	}
	t.startedAt = t.now()
	t.elapsed = 0
	t.state = to
	t.logger.Info("timer started", "task", t.taskName)
	t.emitStateChanged(to)
	return true
}

// Pause leaves Running for Paused (user or system reason) or Idle. The
// interval since the last start or resume is folded into the accumulated
// elapsed time. Fails unless Running.
func (t *Tracker) Pause(reason PauseReason) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pauseLocked(reason, 0)
}

func (t *Tracker) pauseLocked(reason PauseReason, observedIdle time.Duration) bool {
	in := intentPause
	if reason == PauseIdle {
		in = intentPauseIdle
	}

	to, ok := nextState(t.state, in)
	if !ok {
		t.logger.Warn("cannot pause timer", "state", t.state, "reason", reason)
		return false
	}

	now := t.now()
	t.pausedAt = now
	t.elapsed += now.Sub(t.startedAt)
	if to == Idle {
		t.idleFrom = now
	}
	t.lastPauseReason = reason
	t.everPaused = true
	t.state = to

	t.logger.Info("timer paused", "task", t.taskName, "reason", reason)
	t.emitStateChanged(to)
	if to == Idle {
		for _, l := range t.listeners {
			l.IdleDetected(observedIdle)
		}
	}
	return true
}

// Resume returns to Running from Paused or Idle. Time spent Idle is added to
// the informational idle total; it is never subtracted from elapsed time.
func (t *Tracker) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	to, ok := nextState(t.state, intentResume)
	if !ok {
		t.logger.Warn("cannot resume timer", "state", t.state)
		return false
	}

	now := t.now()
	if t.state == Idle && !t.idleFrom.IsZero() {
		idleFor := now.Sub(t.idleFrom)
		t.idleTotal += idleFor
		t.logger.Info("resumed after idle", "idle_for", idleFor)
	}
	t.startedAt = now
	t.state = to

	t.logger.Info("timer resumed", "task", t.taskName)
	t.emitStateChanged(to)
	return true
}

// Stop ends the session and returns the total elapsed hours. Returns 0 if
// the tracker is already Stopped.
func (t *Tracker) Stop() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	to, ok := nextState(t.state, intentStop)
	if !ok {
		t.logger.Warn("cannot stop timer", "state", t.state)
		return 0
	}

	if t.state == Running {
		t.elapsed += t.now().Sub(t.startedAt)
	}
	t.state = to

	hours := t.elapsed.Hours()
	t.logger.Info("timer stopped", "task", t.taskName, "hours", hours)
	t.emitStateChanged(to)
	return hours
}

// CheckIdle polls the activity probe and, while Running, pauses with the
// Idle reason once the probe-reported inactivity reaches the threshold. The
// detector is one-way: only an explicit Resume leaves Idle. Intended to be
// called from a recurring host tick.
func (t *Tracker) CheckIdle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Running {
		return false
	}

	idleFor, err := t.probe.IdleDuration()
	if err != nil {
		t.logger.Error("activity probe failed", "error", err)
		return false
	}
	if idleFor < t.opts.IdleThreshold {
		return false
	}

	t.logger.Info("system idle detected", "idle_for", idleFor)
	return t.pauseLocked(PauseIdle, idleFor)
}

// CheckLongPause fires the long-pause event when the tracker has sat in
// Paused or Idle past the alert threshold. It re-fires on every call past
// the threshold; rate-limiting the resulting notification is the host's
// responsibility.
func (t *Tracker) CheckLongPause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if (t.state != Paused && t.state != Idle) || t.pausedAt.IsZero() {
		return false
	}

	pausedFor := t.now().Sub(t.pausedAt)
	if pausedFor < t.opts.LongPauseAlert {
		return false
	}

	t.logger.Warn("timer paused for a long time", "paused_for", pausedFor)
	for _, l := range t.listeners {
		l.LongPause(pausedFor)
	}
	return true
}

// Elapsed reports accumulated productive time, including the open interval
// when Running. Paused and Idle intervals are excluded.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked()
}

func (t *Tracker) ElapsedHours() float64 {
	return t.Elapsed().Hours()
}

func (t *Tracker) elapsedLocked() time.Duration {
	elapsed := t.elapsed
	if t.state == Running {
		elapsed += t.now().Sub(t.startedAt)
	}
	return elapsed
}

func (t *Tracker) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) TaskName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.taskName
}

// IdleTotal reports time spent Idle that has been closed out by a Resume.
func (t *Tracker) IdleTotal() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idleTotal
}

// LastPauseReason reports why the tracker last left Running. The second
// return is false until the first pause.
func (t *Tracker) LastPauseReason() (PauseReason, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastPauseReason, t.everPaused
}

// Snapshot is a point-in-time view for hosts to render.
type Snapshot struct {
	TaskName  string
	State     TimerState
	Elapsed   time.Duration
	IdleTotal time.Duration
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		TaskName:  t.taskName,
		State:     t.state,
		Elapsed:   t.elapsedLocked(),
		IdleTotal: t.idleTotal,
	}
}

func (t *Tracker) emitStateChanged(state TimerState) {
	for _, l := range t.listeners {
		l.StateChanged(state)
	}
}
