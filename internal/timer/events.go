package timer

import "time"

// Listener receives tracker events. Dispatch is synchronous and happens in
// transition order while the tracker's lock is held, so implementations must
// not call back into the tracker.
type Listener interface {
	StateChanged(state TimerState)
	IdleDetected(idleFor time.Duration)
	LongPause(pausedFor time.Duration)
}

// ListenerFuncs adapts bare functions to the Listener interface. Nil fields
// are skipped.
type ListenerFuncs struct {
	OnStateChanged func(state TimerState)
	OnIdleDetected func(idleFor time.Duration)
	OnLongPause    func(pausedFor time.Duration)
}

func (l ListenerFuncs) StateChanged(state TimerState) {
	if l.OnStateChanged != nil {
		l.OnStateChanged(state)
	}
}

func (l ListenerFuncs) IdleDetected(idleFor time.Duration) {
	if l.OnIdleDetected != nil {
		l.OnIdleDetected(idleFor)
	}
}

func (l ListenerFuncs) LongPause(pausedFor time.Duration) {
	if l.OnLongPause != nil {
		l.OnLongPause(pausedFor)
	}
}
