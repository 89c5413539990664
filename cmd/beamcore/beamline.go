package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	_ "github.com/ssrltools/beamcore/migrations"

	"github.com/ssrltools/beamcore/internal/asset"
	"github.com/ssrltools/beamcore/internal/channel"
	"github.com/ssrltools/beamcore/internal/infrastructure/config"
	"github.com/ssrltools/beamcore/internal/infrastructure/database"
	"github.com/ssrltools/beamcore/internal/infrastructure/influxdb"
	"github.com/ssrltools/beamcore/internal/infrastructure/logging"
	"github.com/ssrltools/beamcore/internal/infrastructure/mqtt"
	"github.com/ssrltools/beamcore/internal/leveling"
	"github.com/ssrltools/beamcore/internal/motor"
	"github.com/ssrltools/beamcore/internal/shutter"
	"github.com/ssrltools/beamcore/internal/stage"
	"github.com/ssrltools/beamcore/internal/worker"
)

var errUnknownLevelAxis = errors.New("unknown leveling axis")

// beamline is the assembled set of infrastructure clients and devices built
// from one configuration. Close releases everything in reverse order.
type beamline struct {
	cfg *config.Config
	log *logging.Logger

	db     *database.DB
	mqtt   *mqtt.Client     // nil unless mqtt.enabled
	influx *influxdb.Client // nil unless influxdb.enabled
	io     channel.IO
	sim    *channel.Memory // nil unless channels.backend is memory
	pool   *worker.Pool

	axes    map[string]*motor.Axis
	shutter *shutter.Shutter
	stage   *stage.Registry
	leveler *leveling.Controller
	sink    asset.Sink
	journal *asset.Journal
	closers []func()
}

// openBeamline loads the configuration at configPath and brings up the
// database, the optional MQTT and InfluxDB clients, the channel backend and
// every configured device.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - *beamline: Ready beamline; the caller must Close it
//   - error: If any component fails to start (already started ones are closed)
func openBeamline(ctx context.Context, configPath string) (*beamline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version).With("beamline", cfg.Beamline.ID)
	log.Debug("configuration loaded", "path", configPath)

	b := &beamline{cfg: cfg, log: log}
	if err := b.start(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *beamline) start(ctx context.Context) error {
	cfg := b.cfg

	// Open database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	b.db = db
	b.onClose("database", db.Close)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		if err := b.connectMQTT(); err != nil {
			return err
		}
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		b.influx = influxClient
		b.onClose("InfluxDB", influxClient.Close)
		influxClient.SetOnError(func(err error) {
			b.log.Error("InfluxDB write error", "error", err)
		})
		b.log.Debug("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if err := b.openChannels(); err != nil {
		return err
	}

	b.pool = worker.NewPool(cfg.Workers.MaxConcurrent)
	b.pool.SetLogger(b.log)
	b.onClose("worker pool", func() error {
		b.pool.Wait()
		return nil
	})

	b.buildAxes()
	b.buildShutter()
	b.buildLeveler()
	if err := b.buildStage(ctx); err != nil {
		return err
	}
	return b.buildSinks()
}

// onClose registers a component to be closed by Close.
func (b *beamline) onClose(name string, closeFn func() error) {
	b.closers = append(b.closers, func() {
		b.log.Debug("closing " + name)
		if err := closeFn(); err != nil {
			b.log.Error("error closing "+name, "error", err)
		}
	})
}

// Close releases every component in reverse start order.
func (b *beamline) Close() {
	for _, closeFn := range slices.Backward(b.closers) {
		closeFn()
	}
	b.closers = nil
}

func (b *beamline) connectMQTT() error {
	client, err := mqtt.Connect(b.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	b.mqtt = client
	b.onClose("MQTT", client.Close)

	client.SetLogger(b.log)
	client.SetOnConnect(func() {
		b.log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		b.log.Warn("MQTT disconnected", "error", err)
	})
	b.log.Debug("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", b.cfg.MQTT.Broker.Host, b.cfg.MQTT.Broker.Port),
		"client_id", b.cfg.MQTT.Broker.ClientID,
	)
	return nil
}

func (b *beamline) openChannels() error {
	switch b.cfg.Channels.Backend {
	case "mqtt":
		backend, err := channel.NewMQTT(b.mqtt, b.cfg.GetReadTimeout())
		if err != nil {
			return fmt.Errorf("opening MQTT channels: %w", err)
		}
		backend.SetLogger(b.log)
		b.io = backend
	default:
		b.sim = newSimulation(b.cfg)
		b.io = b.sim
	}
	b.log.Debug("channel backend ready", "backend", b.cfg.Channels.Backend)
	return nil
}

func (b *beamline) buildAxes() {
	b.axes = make(map[string]*motor.Axis, len(b.cfg.Stage.Axes))
	for name, setpoint := range b.cfg.Stage.Axes {
		b.axes[name] = motor.New(name, setpoint, b.io)
	}
}

func (b *beamline) buildShutter() {
	sc := b.cfg.Shutter
	actuator := shutter.NewChannelActuator(b.io, shutter.ChannelConfig{
		Command:     sc.Command,
		Readback:    sc.Readback,
		OpenValue:   sc.OpenValue,
		CloseValue:  sc.CloseValue,
		SettleDelay: b.cfg.GetShutterSettleDelay(),
	})

	sh := shutter.New(sc.Name, actuator, b.pool)
	sh.SetLogger(b.log)
	if b.influx != nil {
		sh.SetRecorder(b.influx)
	}
	for _, s := range sc.OpenSynonyms {
		sh.AddOpenSynonym(s)
	}
	for _, s := range sc.CloseSynonyms {
		sh.AddCloseSynonym(s)
	}
	b.shutter = sh
}

func (b *beamline) buildLeveler() {
	c := leveling.New(b.io, b.cfg.Leveling.Sensor, leveling.ParamsFromConfig(b.cfg))
	c.SetLogger(b.log)
	if b.influx != nil {
		c.SetRecorder(b.influx)
	}
	b.leveler = c
}

func (b *beamline) buildStage(ctx context.Context) error {
	motors := make(map[string]stage.Motor, len(b.axes))
	for name, a := range b.axes {
		motors[name] = a
	}

	reg := stage.NewRegistry(motors, b.cfg.Stage.Layout, b.cfg.Stage.Radius)
	reg.SetLogger(b.log)
	reg.SetRepository(stage.NewSQLiteRepository(b.db.DB))
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("loading sample registry: %w", err)
	}
	b.stage = reg
	return nil
}

func (b *beamline) buildSinks() error {
	sinks := asset.MultiSink{asset.NewSQLiteStore(b.db.DB)}

	if b.cfg.Assets.Journal != "" {
		journal, err := asset.OpenJournal(b.cfg.Assets.Journal)
		if err != nil {
			return fmt.Errorf("opening asset journal: %w", err)
		}
		b.journal = journal
		b.onClose("asset journal", journal.Close)
		sinks = append(sinks, journal)
	}

	if b.cfg.Assets.Publish {
		if b.mqtt == nil {
			b.log.Warn("assets.publish ignored: MQTT disabled")
		} else {
			sinks = append(sinks, asset.NewPublisher(b.mqtt))
		}
	}

	b.sink = sinks
	return nil
}

// levelTarget builds the leveling target for axis "x" or "y".
func (b *beamline) levelTarget(axis string) (leveling.Target, error) {
	var ac config.LevelingAxisConfig
	switch axis {
	case "x":
		ac = b.cfg.Leveling.X
	case "y":
		ac = b.cfg.Leveling.Y
	default:
		return leveling.Target{}, fmt.Errorf("%w %q (want x or y)", errUnknownLevelAxis, axis)
	}

	vertical, ok := b.axes[ac.Vertical]
	if !ok {
		return leveling.Target{}, fmt.Errorf("%w: %s", stage.ErrUnknownAxis, ac.Vertical)
	}
	horizontal, ok := b.axes[ac.Horizontal]
	if !ok {
		return leveling.Target{}, fmt.Errorf("%w: %s", stage.ErrUnknownAxis, ac.Horizontal)
	}
	return leveling.Target{
		Name:       axis,
		Vertical:   vertical,
		Horizontal: horizontal,
		Point1:     ac.Point1,
		Point2:     ac.Point2,
	}, nil
}

// levelAxis runs the leveling loop along axis "x" or "y".
func (b *beamline) levelAxis(ctx context.Context, axis string) (leveling.Report, error) {
	target, err := b.levelTarget(axis)
	if err != nil {
		return leveling.Report{}, err
	}
	return b.leveler.Level(ctx, target)
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func (b *beamline) healthCheck(ctx context.Context) error {
	if err := b.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if b.mqtt != nil {
		if err := b.mqtt.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if b.influx != nil {
		if err := b.influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
