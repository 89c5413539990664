package shutter

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/ssrltools/beamcore/internal/status"
	"github.com/ssrltools/beamcore/internal/worker"
)

// State is the position of a shutter.
type State string

const (
	StateOpen    State = "open"
	StateClosed  State = "closed"
	StateUnknown State = "unknown"
	StateMoving  State = "moving"
)

// Default synonym lists. The first entry of each is the canonical word.
var (
	DefaultOpenSynonyms  = []string{"open", "opened"}
	DefaultCloseSynonyms = []string{"close", "closed"}
)

// Recorder receives one telemetry sample per completed motion.
// *influxdb.Client satisfies it.
type Recorder interface {
	WriteShutterTransition(name, target string, success bool, elapsed time.Duration)
}

// Logger defines the logging interface used by Shutter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Shutter is a binary actuator with at most one motion in flight.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Shutter struct {
	name     string
	actuator Actuator
	pool     *worker.Pool
	logger   Logger
	recorder Recorder

	mu            sync.Mutex
	busy          bool
	openSynonyms  []string
	closeSynonyms []string
}

// New creates a shutter with the default synonym lists.
func New(name string, actuator Actuator, pool *worker.Pool) *Shutter {
	if pool == nil {
		pool = worker.NewPool(1)
	}
	return &Shutter{
		name:          name,
		actuator:      actuator,
		pool:          pool,
		logger:        noopLogger{},
		openSynonyms:  slices.Clone(DefaultOpenSynonyms),
		closeSynonyms: slices.Clone(DefaultCloseSynonyms),
	}
}

// SetLogger sets the logger for the shutter.
func (s *Shutter) SetLogger(logger Logger) {
	s.logger = logger
}

// SetRecorder sets the telemetry recorder. nil disables recording.
func (s *Shutter) SetRecorder(r Recorder) {
	s.recorder = r
}

// Name returns the shutter name.
func (s *Shutter) Name() string { return s.name }

// fold normalises a synonym or target for comparison.
func fold(text string) string {
	return cases.Fold().String(strings.TrimSpace(text))
}

// AddOpenSynonym accepts text as an open target and returns all choices.
// Overlap with the close list is reported by Set, not here.
func (s *Shutter) AddOpenSynonym(text string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openSynonyms = append(s.openSynonyms, fold(text))
	return s.choicesLocked()
}

// AddCloseSynonym accepts text as a close target and returns all choices.
func (s *Shutter) AddCloseSynonym(text string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSynonyms = append(s.closeSynonyms, fold(text))
	return s.choicesLocked()
}

// Choices returns every accepted target, open synonyms first.
func (s *Shutter) Choices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.choicesLocked()
}

func (s *Shutter) choicesLocked() []string {
	return slices.Concat(s.openSynonyms, s.closeSynonyms)
}

// resolveLocked maps target to StateOpen or StateClosed.
func (s *Shutter) resolveLocked(target string) (State, error) {
	for _, w := range s.openSynonyms {
		if slices.Contains(s.closeSynonyms, w) {
			return "", fmt.Errorf("%w: %q", ErrSynonymConflict, w)
		}
	}

	t := fold(target)
	switch {
	case slices.Contains(s.openSynonyms, t):
		return StateOpen, nil
	case slices.Contains(s.closeSynonyms, t):
		return StateClosed, nil
	default:
		return "", fmt.Errorf("%w: %q, should be one of %s",
			ErrInvalidTarget, target, strings.Join(s.choicesLocked(), " | "))
	}
}

// positionLocked maps the live readback through the synonym lists.
func (s *Shutter) positionLocked(ctx context.Context) (State, error) {
	word, err := s.actuator.Readback(ctx)
	if err != nil {
		return StateUnknown, err
	}

	w := fold(word)
	inOpen := slices.Contains(s.openSynonyms, w)
	inClose := slices.Contains(s.closeSynonyms, w)
	switch {
	case inOpen && !inClose:
		return StateOpen, nil
	case inClose && !inOpen:
		return StateClosed, nil
	default:
		return StateUnknown, nil
	}
}

// State reports Moving while a motion is in flight and otherwise reads the
// position from the actuator. Nothing is cached between calls.
func (s *Shutter) State(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return StateMoving, nil
	}
	return s.positionLocked(ctx)
}

// Busy reports whether a motion is in flight.
func (s *Shutter) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Set requests the shutter to move to target (any synonym, case-insensitive).
//
// Validation errors and ErrAlreadyMoving are returned synchronously and no
// future is created. When the shutter is already at target the returned
// future is settled and the actuator is not called. Otherwise the motion runs
// detached from ctx's cancellation and the future settles when it ends.
func (s *Shutter) Set(ctx context.Context, target string) (*status.Future, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, ErrAlreadyMoving
	}
	want, err := s.resolveLocked(target)
	if err != nil {
		return nil, err
	}

	current, err := s.positionLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading %s position: %w", s.name, err)
	}
	if current == want {
		s.logger.Debug("shutter already in position", "shutter", s.name, "state", want)
		return status.Finished(), nil
	}

	s.busy = true
	f := status.New()
	start := time.Now()

	s.pool.Go(ctx, s.name+" "+string(want), func(ctx context.Context) error {
		var err error
		if want == StateOpen {
			err = s.actuator.Open(ctx)
		} else {
			err = s.actuator.Close(ctx)
		}
		if err != nil {
			err = fmt.Errorf("%w: %s to %s: %w", ErrMotion, s.name, want, err)
		}
		s.settle(f, want, start, err)
		return err
	}, func(reason any) {
		s.settle(f, want, start, fmt.Errorf("%w: %s to %s: %v", ErrMotion, s.name, want, reason))
	})

	s.logger.Info("shutter moving", "shutter", s.name, "from", current, "to", want)
	return f, nil
}

// settle clears busy before settling f so callbacks observe an idle shutter.
func (s *Shutter) settle(f *status.Future, want State, start time.Time, err error) {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.WriteShutterTransition(s.name, string(want), err == nil, time.Since(start))
	}
	if err != nil {
		s.logger.Error("shutter motion failed", "shutter", s.name, "target", want, "error", err)
	}
	_ = f.Finish(err == nil, err)
}
