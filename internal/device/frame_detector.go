package device

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/channel"
	"github.com/ssrltools/beamcore/internal/status"
	"github.com/ssrltools/beamcore/internal/worker"
)

// Channel suffixes appended to FrameDetectorConfig.Prefix.
const (
	SuffixAcquire     = "Acquire"
	SuffixCapture     = "HDF5:Capture"
	SuffixNumCaptured = "HDF5:NumCaptured_RBV"
)

// Datum kwargs of XSP3 frames.
const (
	KwargFrame   = "frame"
	KwargChannel = "channel"
)

// DefaultFrameLayout is the time layout of the HDF5 file directory.
const DefaultFrameLayout = "2006/01/02/"

// FrameDetectorConfig holds the settings of a FrameDetector.
type FrameDetectorConfig struct {
	Name string

	// Prefix is prepended to the Suffix* channel names.
	Prefix string

	// Channels lists the detector elements; defaults to 1..4.
	Channels []int

	// Root is the directory the detector writes its HDF5 files under.
	Root string

	// Layout is a time layout for the directory below Root.
	Layout string

	IO       channel.IO
	Pool     *worker.Pool
	Registry *asset.Registry
	Clock    channel.Clock
}

type frameDatum struct {
	channel int
	ref     DatumRef
	at      time.Time
}

// FrameDetector drives a multi-element fluorescence detector that writes
// its own HDF5 file. Stage registers the file as an XSP3 resource, Trigger
// acquires one frame, and Complete emits one datum per frame and element.
type FrameDetector struct {
	Lifecycle

	name     string
	prefix   string
	channels []int
	root     string
	layout   string
	io       channel.IO
	pool     *worker.Pool
	registry *asset.Registry
	clock    channel.Clock
	logger   Logger

	mu        sync.Mutex
	resource  *asset.Resource
	emitted   int
	completed []frameDatum

	inflight sync.WaitGroup
}

// NewFrameDetector creates an idle FrameDetector.
func NewFrameDetector(cfg FrameDetectorConfig) *FrameDetector {
	if len(cfg.Channels) == 0 {
		cfg.Channels = []int{1, 2, 3, 4}
	}
	if cfg.Layout == "" {
		cfg.Layout = DefaultFrameLayout
	}
	if cfg.Registry == nil {
		cfg.Registry = asset.NewRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = channel.SystemClock{}
	}
	if cfg.Pool == nil {
		cfg.Pool = worker.NewPool(1)
	}
	return &FrameDetector{
		name:     cfg.Name,
		prefix:   cfg.Prefix,
		channels: cfg.Channels,
		root:     cfg.Root,
		layout:   cfg.Layout,
		io:       cfg.IO,
		pool:     cfg.Pool,
		registry: cfg.Registry,
		clock:    cfg.Clock,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the detector.
func (d *FrameDetector) SetLogger(logger Logger) {
	d.logger = logger
}

// Spec returns asset.SpecXSP3.
func (d *FrameDetector) Spec() asset.Spec { return asset.SpecXSP3 }

// Key returns the data key used for element ch.
func (d *FrameDetector) Key(ch int) string {
	return fmt.Sprintf("%s_channel%d", d.name, ch)
}

// Stage enables file capture and registers the file that will hold this
// staging's frames.
func (d *FrameDetector) Stage(ctx context.Context) error {
	if err := d.Lifecycle.Stage(); err != nil {
		return err
	}

	if err := d.io.Write(ctx, d.prefix+SuffixCapture, 1); err != nil {
		_ = d.Lifecycle.Unstage(nil)
		return fmt.Errorf("enabling file capture on %s: %w", d.name, err)
	}

	resourcePath := d.clock.Now().Format(d.layout) + uuid.NewString() + ".h5"
	res := d.registry.RegisterResource(asset.SpecXSP3, d.root, resourcePath, nil)

	d.mu.Lock()
	d.resource = &res
	d.emitted = 0
	d.completed = nil
	d.mu.Unlock()

	d.logger.Info("frame detector staged", "detector", d.name, "resource", res.ID)
	return nil
}

// Unstage waits for in-flight acquisitions, at most until ctx ends, and
// disables file capture. The detector is Idle afterwards either way.
func (d *FrameDetector) Unstage(ctx context.Context) error {
	return d.Lifecycle.Unstage(func() error {
		waitErr := waitInflight(ctx, &d.inflight)

		d.mu.Lock()
		d.resource = nil
		d.mu.Unlock()

		if err := d.io.Write(ctx, d.prefix+SuffixCapture, 0); err != nil {
			return errors.Join(waitErr, fmt.Errorf("disabling file capture on %s: %w", d.name, err))
		}
		return waitErr
	})
}

// Trigger acquires one frame on a worker.
func (d *FrameDetector) Trigger(ctx context.Context) (*status.Future, error) {
	if err := d.Lifecycle.Trigger(); err != nil {
		return nil, err
	}

	f := status.New()
	d.inflight.Add(1)
	done := sync.OnceFunc(d.inflight.Done)

	d.pool.Go(ctx, d.name+" acquire", func(ctx context.Context) error {
		defer done()
		var err error
		if werr := d.io.Write(ctx, d.prefix+SuffixAcquire, 1); werr != nil {
			err = fmt.Errorf("%w: %s: %w", ErrCapture, d.name, werr)
		}
		_ = f.Finish(err == nil, err)
		return err
	}, func(reason any) {
		_ = f.Finish(false, fmt.Errorf("%w: %v", ErrCapture, reason))
		done()
	})
	return f, nil
}

// Complete reads how many frames the detector has written and registers a
// datum for every new (frame, element) pair, frame-major. Only those datums
// are handed out by the next Collect.
func (d *FrameDetector) Complete(ctx context.Context) (*status.Future, error) {
	if err := d.Lifecycle.RequireTriggered(); err != nil {
		return nil, err
	}
	if err := waitInflight(ctx, &d.inflight); err != nil {
		return nil, err
	}

	v, err := d.io.Read(ctx, d.prefix+SuffixNumCaptured)
	if err != nil {
		return nil, fmt.Errorf("%w: reading frame count of %s: %w", ErrCapture, d.name, err)
	}
	if v < 0 || math.IsNaN(v) {
		return nil, fmt.Errorf("%w: %s reported %v frames", ErrCapture, d.name, v)
	}
	captured := int(v)
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.resource == nil {
		return nil, ErrNotStaged
	}
	var completed []frameDatum
	for frame := d.emitted; frame < captured; frame++ {
		for _, ch := range d.channels {
			dt, err := d.registry.RegisterDatum(*d.resource, map[string]any{
				KwargFrame:   frame,
				KwargChannel: ch,
			})
			if err != nil {
				return nil, err
			}
			completed = append(completed, frameDatum{channel: ch, ref: DatumRef(dt.ID), at: now})
		}
	}
	d.completed = completed
	if captured > d.emitted {
		d.emitted = captured
	}

	d.logger.Debug("frame detector completed", "detector", d.name, "frames", captured)
	return status.Finished(), nil
}

// Collect yields one record per datum finalized by Complete.
func (d *FrameDetector) Collect() iter.Seq[Record] {
	d.mu.Lock()
	pending := d.completed
	d.completed = nil
	d.mu.Unlock()

	return records(pending, func(f frameDatum) Record {
		return newRecord(d.Key(f.channel), f.ref, f.at)
	})
}

// CollectAssetDocs drains the detector's registry.
func (d *FrameDetector) CollectAssetDocs() []asset.Document {
	return d.registry.Drain()
}

var (
	_ Stageable           = (*FrameDetector)(nil)
	_ Triggerable         = (*FrameDetector)(nil)
	_ AssetEmitting       = (*FrameDetector)(nil)
	_ ExternallyAddressed = (*FrameDetector)(nil)
	_ Flyable             = (*FrameDetector)(nil)
)
