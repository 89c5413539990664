package device

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/channel"
	"github.com/ssrltools/beamcore/internal/status"
	"github.com/ssrltools/beamcore/internal/worker"
)

// CaptureFunc acquires one array from the instrument.
type CaptureFunc func(ctx context.Context) (asset.Array, error)

// ArrayChannelConfig holds the collaborators of an ArrayChannel.
type ArrayChannelConfig struct {
	// Name is the data key of the channel.
	Name string

	Capture CaptureFunc
	Writer  asset.Writer
	Pool    *worker.Pool

	// Registry defaults to a new registry owned by the channel.
	Registry *asset.Registry

	// Clock defaults to channel.SystemClock.
	Clock channel.Clock
}

// ArrayChannel is an array-valued readable whose frames are persisted through
// an asset.Writer. Readings are datum references, never the array itself.
//
// One resource is registered per staging, on the first Trigger; every frame
// of that staging is a datum of it.
type ArrayChannel struct {
	Lifecycle

	name     string
	capture  CaptureFunc
	writer   asset.Writer
	pool     *worker.Pool
	registry *asset.Registry
	clock    channel.Clock
	logger   Logger
	recorder CaptureRecorder

	mu           sync.Mutex
	last         *Reading
	pointCounter uint64
	resource     *asset.Resource
	shape        []int
	frames       []Reading // captured since Stage, not yet completed
	completed    []Reading // finalized by the last Complete, not yet collected

	inflight sync.WaitGroup
}

// NewArrayChannel creates an idle ArrayChannel.
func NewArrayChannel(cfg ArrayChannelConfig) *ArrayChannel {
	if cfg.Registry == nil {
		cfg.Registry = asset.NewRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = channel.SystemClock{}
	}
	if cfg.Pool == nil {
		cfg.Pool = worker.NewPool(1)
	}
	return &ArrayChannel{
		name:     cfg.Name,
		capture:  cfg.Capture,
		writer:   cfg.Writer,
		pool:     cfg.Pool,
		registry: cfg.Registry,
		clock:    cfg.Clock,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the channel.
func (a *ArrayChannel) SetLogger(logger Logger) {
	a.logger = logger
}

// SetRecorder sets the telemetry recorder. nil disables recording.
func (a *ArrayChannel) SetRecorder(r CaptureRecorder) {
	a.recorder = r
}

// Name returns the data key of the channel.
func (a *ArrayChannel) Name() string { return a.name }

// Spec returns the storage spec of the channel's resources.
func (a *ArrayChannel) Spec() asset.Spec { return a.writer.Spec() }

// Registry returns the registry documents are queued on.
func (a *ArrayChannel) Registry() *asset.Registry { return a.registry }

// Stage prepares the channel for a new series of frames.
func (a *ArrayChannel) Stage(_ context.Context) error {
	if err := a.Lifecycle.Stage(); err != nil {
		return err
	}

	a.mu.Lock()
	a.resource = nil
	a.frames = nil
	a.mu.Unlock()

	a.logger.Debug("array channel staged", "channel", a.name)
	return nil
}

// Unstage waits for in-flight captures, at most until ctx ends, and returns
// the channel to Idle. The last reading is kept. When ctx ends first the
// error wraps status.ErrTimeout.
func (a *ArrayChannel) Unstage(ctx context.Context) error {
	return a.Lifecycle.Unstage(func() error {
		waitErr := waitInflight(ctx, &a.inflight)

		a.mu.Lock()
		a.resource = nil
		a.frames = nil
		a.mu.Unlock()

		a.logger.Debug("array channel unstaged", "channel", a.name)
		return waitErr
	})
}

// Trigger starts one capture and returns immediately. The future settles
// after the frame is persisted and the reading updated, or fails with
// ErrCapture or asset.ErrStorageWrite.
func (a *ArrayChannel) Trigger(ctx context.Context) (*status.Future, error) {
	if err := a.Lifecycle.Trigger(); err != nil {
		return nil, err
	}

	f := status.New()
	a.inflight.Add(1)
	done := sync.OnceFunc(a.inflight.Done)

	a.pool.Go(ctx, a.name+" capture", func(ctx context.Context) error {
		defer done()
		err := a.captureOnce(ctx)
		_ = f.Finish(err == nil, err)
		return err
	}, func(reason any) {
		_ = f.Finish(false, fmt.Errorf("%w: %v", ErrCapture, reason))
		done()
	})
	return f, nil
}

func (a *ArrayChannel) captureOnce(ctx context.Context) error {
	start := a.clock.Now()

	arr, err := a.capture(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCapture, a.name, err)
	}
	if err := arr.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCapture, a.name, err)
	}

	a.mu.Lock()
	a.pointCounter++
	point := a.pointCounter
	if a.resource == nil {
		resourcePath, kwargs := a.writer.Layout(start)
		res := a.registry.RegisterResource(a.writer.Spec(), a.writer.Root(), resourcePath, kwargs)
		a.resource = &res
	}
	res := *a.resource
	a.mu.Unlock()

	d, err := a.registry.RegisterDatum(res, map[string]any{asset.KwargPointNumber: point})
	if err != nil {
		return err
	}
	path, err := asset.ResolvePath(res, d)
	if err != nil {
		return err
	}
	if err := a.writer.Persist(path, arr); err != nil {
		a.logger.Error("persisting frame failed", "channel", a.name, "path", path, "error", err)
		return err
	}

	reading := Reading{Value: DatumRef(d.ID), Timestamp: a.clock.Now()}

	a.mu.Lock()
	a.last = &reading
	a.shape = slices.Clone(arr.Shape)
	a.frames = append(a.frames, reading)
	a.mu.Unlock()

	if a.recorder != nil {
		a.recorder.WriteCapture(a.name, res.ID, int(point), reading.Timestamp.Sub(start)) //nolint:gosec // point counts frames
	}
	a.logger.Debug("frame captured", "channel", a.name, "datum", d.ID, "path", path)
	return nil
}

// Read returns the last reading without side effects.
func (a *ArrayChannel) Read() (Reading, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.last == nil {
		return Reading{}, fmt.Errorf("%w: %s", ErrNotTriggered, a.name)
	}
	return *a.last, nil
}

// Describe reports the shape of the last frame. Shape is nil before the
// first capture.
func (a *ArrayChannel) Describe() Descriptor {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Descriptor{
		Source:   a.name,
		Shape:    slices.Clone(a.shape),
		DType:    DTypeArray,
		External: true,
	}
}

// CollectAssetDocs drains the channel's registry.
func (a *ArrayChannel) CollectAssetDocs() []asset.Document {
	return a.registry.Drain()
}

// Complete waits for in-flight captures and finalizes every frame captured
// since the previous Complete, replacing any frames not yet collected. The
// returned future is already settled.
func (a *ArrayChannel) Complete(ctx context.Context) (*status.Future, error) {
	if err := a.Lifecycle.RequireTriggered(); err != nil {
		return nil, err
	}

	if err := waitInflight(ctx, &a.inflight); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.completed = a.frames
	a.frames = nil
	a.mu.Unlock()

	return status.Finished(), nil
}

// Collect yields one record per completed frame. Frames are handed out once:
// a second Collect before the next Complete yields nothing.
func (a *ArrayChannel) Collect() iter.Seq[Record] {
	a.mu.Lock()
	frames := a.completed
	a.completed = nil
	a.mu.Unlock()

	return records(frames, func(r Reading) Record {
		return newRecord(a.name, r.Value, r.Timestamp)
	})
}

// waitInflight waits until wg is done or ctx ends.
func waitInflight(ctx context.Context, wg *sync.WaitGroup) error {
	idle := make(chan struct{})
	go func() {
		wg.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for captures: %w", status.ErrTimeout, ctx.Err())
	}
}

var (
	_ Stageable           = (*ArrayChannel)(nil)
	_ Triggerable         = (*ArrayChannel)(nil)
	_ Readable            = (*ArrayChannel)(nil)
	_ AssetEmitting       = (*ArrayChannel)(nil)
	_ ExternallyAddressed = (*ArrayChannel)(nil)
	_ Flyable             = (*ArrayChannel)(nil)
)
