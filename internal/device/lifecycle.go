package device

import "sync"

// State is a lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStaged
	StateTriggered
	StateUnstaging
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStaged:
		return "staged"
	case StateTriggered:
		return "triggered"
	case StateUnstaging:
		return "unstaging"
	default:
		return "unknown"
	}
}

// Lifecycle is the stage/trigger/unstage state machine. The zero value is Idle.
type Lifecycle struct {
	mu       sync.Mutex
	state    State
	triggers int
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Triggers returns the number of triggers accepted since the last Stage.
func (l *Lifecycle) Triggers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.triggers
}

// Stage moves Idle to Staged.
func (l *Lifecycle) Stage() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateIdle {
		return ErrAlreadyStaged
	}
	l.state = StateStaged
	l.triggers = 0
	return nil
}

// Trigger moves Staged or Triggered to Triggered.
func (l *Lifecycle) Trigger() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateStaged && l.state != StateTriggered {
		return ErrNotStagedForTrigger
	}
	l.state = StateTriggered
	l.triggers++
	return nil
}

// RequireTriggered fails with ErrNoFramesCaptured unless Trigger was accepted
// since the last Stage.
func (l *Lifecycle) RequireTriggered() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateTriggered || l.triggers == 0 {
		return ErrNoFramesCaptured
	}
	return nil
}

// Unstage runs release in the Unstaging state and returns to Idle. The device
// is Idle afterwards even when release fails; its error is returned.
func (l *Lifecycle) Unstage(release func() error) error {
	l.mu.Lock()
	if l.state == StateIdle || l.state == StateUnstaging {
		l.mu.Unlock()
		return ErrNotStaged
	}
	l.state = StateUnstaging
	l.mu.Unlock()

	var err error
	if release != nil {
		err = release()
	}

	l.mu.Lock()
	l.state = StateIdle
	l.triggers = 0
	l.mu.Unlock()
	return err
}
