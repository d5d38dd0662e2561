package onboard

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/CodedInternet/gateway/onboard/calibration"
	"github.com/CodedInternet/gateway/onboard/canbus"
	gwerrors "github.com/CodedInternet/gateway/onboard/errors"
	"github.com/CodedInternet/gateway/onboard/hardware"
	"github.com/CodedInternet/gateway/onboard/history"
	"github.com/CodedInternet/gateway/onboard/samples"
	"github.com/CodedInternet/gateway/onboard/state"
	"github.com/CodedInternet/gateway/onboard/telemetry"
)

type Options struct {
	// Simulate runs an in-process robot on a loopback bus instead of
	// opening the configured CAN interface.
	Simulate bool
}

// Gateway owns the shared state and runs one goroutine per I/O loop. Loops
// never call into each other, they meet only in the store, the sample
// buffers and the motion log queue.
type Gateway struct {
	cfg     GatewayConfig
	log     zerolog.Logger
	started time.Time

	open canbus.Opener
	sim  *Simulator

	store     *state.Store
	controls  *state.Controls
	pots      *samples.PotBuffer
	positions *samples.PositionTable

	motorBus canbus.CANBusInterface
	motors   *hardware.Motors
	engine   *calibration.Engine
	history  *history.DB

	motionLog  *telemetry.QueueLogger
	encoderLog *telemetry.BulkLogger
}

// NewGateway builds the shared state and opens the motor socket, which the
// dispatcher, calibration and the motion stream all write through.
func NewGateway(cfg GatewayConfig, opts Options, log zerolog.Logger) (g *Gateway, err error) {
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	g = &Gateway{
		cfg:       cfg,
		log:       log,
		started:   time.Now(),
		store:     state.NewStore(),
		pots:      samples.NewPotBuffer(),
		positions: samples.NewPositionTable(),
	}
	g.controls = state.NewControls(g.store)

	if opts.Simulate {
		g.sim = NewSimulator(cfg, log.With().Str("loop", "sim").Logger())
		g.open = g.sim.Opener()
	} else {
		g.open = canbus.Open(cfg.Interface)
	}

	g.motorBus, err = openBus("motors", g.open)
	if err != nil {
		return nil, err
	}
	g.motors = hardware.NewMotors(g.motorBus, cfg.Nodes())
	g.engine = calibration.NewEngine(cfg.EngineConfig(), g.motors, g.pots, g.positions,
		log.With().Str("loop", "calib").Logger())

	if cfg.History != "" {
		g.history, err = history.Open(cfg.History)
		if err != nil {
			log.Warn().Err(err).Msg("calibration history disabled")
			g.history, err = nil, nil
		}
	}

	g.motionLog = telemetry.NewQueueLogger(cfg.Logging.Dir, len(cfg.Joints), cfg.Logging.QueueCapacity,
		cfg.Logging.FlushInterval, log.With().Str("loop", "logger").Logger())
	g.encoderLog = telemetry.NewBulkLogger(cfg.Logging.Dir, log.With().Str("loop", "enc").Logger())

	return g, nil
}

func (g *Gateway) Config() GatewayConfig             { return g.cfg }
func (g *Gateway) Controls() *state.Controls         { return g.controls }
func (g *Gateway) Store() *state.Store               { return g.store }
func (g *Gateway) Pots() *samples.PotBuffer          { return g.pots }
func (g *Gateway) Positions() *samples.PositionTable { return g.positions }
func (g *Gateway) Motors() *hardware.Motors          { return g.motors }
func (g *Gateway) History() *history.DB              { return g.history }
func (g *Gateway) Calibration() calibration.Progress { return g.engine.Progress() }
func (g *Gateway) MotionLog() *telemetry.QueueLogger { return g.motionLog }
func (g *Gateway) Uptime() time.Duration             { return time.Since(g.started) }

type loopFunc func(ctx context.Context, log zerolog.Logger) error

// Run blocks until ctx is cancelled or the fin flag is raised, then waits
// for every loop to drain and writes the encoder log.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		g.watchFin(ctx, cancel)
		return nil
	})

	if g.sim != nil {
		g.goLoop(group, ctx, "sim", func(ctx context.Context, _ zerolog.Logger) error { return g.sim.Run(ctx) })
	}
	g.goLoop(group, ctx, "pot", g.runPots)
	g.goLoop(group, ctx, "ctrl", g.runControl)
	g.goLoop(group, ctx, "dispatch", g.runDispatcher)
	g.goLoop(group, ctx, "udj1", g.runMotion)
	g.goLoop(group, ctx, "enc", g.runEncoder)

	// the logger outlives the motion loop so its last drain sees every row
	var logger errgroup.Group
	logCtx, stopLogger := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLogger()
	g.goLoop(&logger, logCtx, "logger", g.runLogger)

	err := group.Wait()
	g.controls.Shutdown()
	stopLogger()
	logger.Wait()

	if _, werr := g.encoderLog.WriteAll(); werr != nil {
		g.log.Error().Err(werr).Msg("failed to write encoder log")
		err = multierr.Append(err, werr)
	}
	return err
}

// goLoop runs fn on the group. A failing loop is logged and stops alone,
// the others keep running.
func (g *Gateway) goLoop(group *errgroup.Group, ctx context.Context, name string, fn loopFunc) {
	log := g.log.With().Str("loop", name).Logger()
	group.Go(func() error {
		log.Info().Msg("loop started")
		err := fn(ctx, log)

		var setup gwerrors.SetupError
		switch {
		case errors.As(err, &setup):
			log.Error().Err(err).Msg("loop setup failed")
		case err != nil:
			log.Error().Err(err).Msg("loop failed")
		default:
			log.Info().Msg("loop stopped")
		}
		return nil
	})
}

func (g *Gateway) watchFin(ctx context.Context, cancel context.CancelFunc) {
	for sleep(ctx, g.cfg.Poll) {
		if g.controls.Finished() {
			g.log.Info().Msg("shutdown requested")
			cancel()
			return
		}
	}
}

func (g *Gateway) runPots(ctx context.Context, log zerolog.Logger) error {
	bus, err := openBus("pot", g.open)
	if err != nil {
		return err
	}
	defer bus.Close()
	conn, err := listenUDP("pot", g.cfg.Ports.PotRequest)
	if err != nil {
		return err
	}
	defer conn.Close()

	return NewPotSampler(bus, conn, g.cfg.Ports.PotReply, g.pots, g.controls, g.cfg.Poll, log).Run(ctx)
}

func (g *Gateway) runControl(ctx context.Context, log zerolog.Logger) error {
	conn, err := listenUDP("ctrl", g.cfg.Ports.Control)
	if err != nil {
		return err
	}
	defer conn.Close()

	return NewControlListener(conn, g.controls, g.cfg.Poll, log).Run(ctx)
}

func (g *Gateway) runDispatcher(ctx context.Context, log zerolog.Logger) error {
	if err := setRealtimePriority(g.cfg.Priority.Calibration); err != nil {
		log.Warn().Err(err).Msg("running without realtime priority")
	}

	d := NewDispatcher(g.controls, g.motors, g.engine, g.cfg.Calibration.FullSettle, g.cfg.Poll, log)
	if g.history != nil {
		d.SetRecorder(g.history)
	}
	return d.Run(ctx)
}

func (g *Gateway) runMotion(ctx context.Context, log zerolog.Logger) error {
	conn, err := listenUDP("udj1", g.cfg.Ports.Motion)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := setRealtimePriority(g.cfg.Priority.Motion); err != nil {
		log.Warn().Err(err).Msg("running without realtime priority")
	}
	return NewMotionStream(conn, g.controls, g.motors, g.motionLog, g.started, g.cfg.Poll, log).Run(ctx)
}

func (g *Gateway) runEncoder(ctx context.Context, log zerolog.Logger) error {
	bus, err := openBus("enc", g.open)
	if err != nil {
		return err
	}
	defer bus.Close()

	return NewEncoderSampler(bus, g.controls, g.positions, g.encoderLog, g.started, g.cfg.Poll, log).Run(ctx)
}

func (g *Gateway) runLogger(ctx context.Context, log zerolog.Logger) error {
	if err := setRealtimePriority(g.cfg.Priority.Logger); err != nil {
		log.Warn().Err(err).Msg("running without realtime priority")
	}
	return g.motionLog.Run(ctx)
}

// Close releases the motor socket and the history database.
func (g *Gateway) Close() error {
	err := g.motorBus.Close()
	if g.history != nil {
		err = multierr.Append(err, g.history.Close())
	}
	return err
}
