package timer

// TimerState is the state of the tracker's single in-progress session.
type TimerState int

const (
	Stopped TimerState = iota
	Running
	Paused
	Idle
)

func (s TimerState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// PauseReason records why the tracker left Running. It selects Paused vs
// Idle as the target state and is otherwise informational.
type PauseReason int

const (
	PauseUser PauseReason = iota
	PauseIdle
	PauseSystem
)

func (r PauseReason) String() string {
	switch r {
	case PauseUser:
		return "user"
	case PauseIdle:
		return "idle"
	case PauseSystem:
		return "system"
	default:
		return "unknown"
	}
}

type intent int

const (
	intentStart intent = iota
	intentPause
	intentPauseIdle
	intentResume
	intentStop
)

func (i intent) String() string {
	switch i {
	case intentStart:
		return "start"
	case intentPause:
		return "pause"
	case intentPauseIdle:
		return "pause(idle)"
	case intentResume:
		return "resume"
	case intentStop:
		return "stop"
	default:
		return "unknown"
	}
}

// transitions is the single source of truth for legal state changes. Every
// public operation consults it, so illegal transitions are rejected in one
// place instead of per-method state checks.
var transitions = map[TimerState]map[intent]TimerState{
	Stopped: {
		intentStart: Running,
	},
	Running: {
		intentPause:     Paused,
		intentPauseIdle: Idle,
		intentStop:      Stopped,
	},
	Paused: {
		intentResume: Running,
		intentStop:   Stopped,
	},
	Idle: {
		intentResume: Running,
		intentStop:   Stopped,
	},
}

func nextState(from TimerState, in intent) (TimerState, bool) {
	targets, ok := transitions[from]
	if !ok {
		return from, false
	}
	to, ok := targets[in]
	return to, ok
}
