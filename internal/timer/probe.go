package timer

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ActivityProbe reports how long the local input devices have been idle.
// Implementations are platform-specific; the tracker only consumes this one
// capability.
type ActivityProbe interface {
	IdleDuration() (time.Duration, error)
}

// ProbeFunc adapts a bare function to the ActivityProbe interface.
type ProbeFunc func() (time.Duration, error)

func (f ProbeFunc) IdleDuration() (time.Duration, error) {
	return f()
}

// StaticProbe always reports the same idle duration. The zero value reports
// constant activity, which disables idle detection on headless hosts.
type StaticProbe struct {
	Idle time.Duration
}

func (p StaticProbe) IdleDuration() (time.Duration, error) {
	return p.Idle, nil
}

// ExecFunc runs an external command and returns its combined output.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultExec(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- callers pass a fixed probe command with no arguments.
	command := exec.CommandContext(ctx, name, args...)
	output, err := command.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s %v failed: %w (%s)", name, args, err, string(output))
	}
	return output, nil
}

// XIdleProbe shells out to xprintidle, which prints the X11 input idle time
// in milliseconds.
type XIdleProbe struct {
	exec    ExecFunc
	timeout time.Duration
}

func NewXIdleProbe() *XIdleProbe {
	return &XIdleProbe{exec: defaultExec, timeout: 2 * time.Second}
}

func NewXIdleProbeWithExec(execFn ExecFunc) *XIdleProbe {
	return &XIdleProbe{exec: execFn, timeout: 2 * time.Second}
}

func (p *XIdleProbe) IdleDuration() (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	output, err := p.exec(ctx, "xprintidle")
	if err != nil {
		return 0, fmt.Errorf("xprintidle: %w", err)
	}

	raw := strings.TrimSpace(string(output))
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse xprintidle output %q: %w", raw, err)
	}
	return time.Duration(millis) * time.Millisecond, nil
}
