package onboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/CodedInternet/gateway/onboard/calibration"
	"github.com/CodedInternet/gateway/onboard/hardware"
	"github.com/CodedInternet/gateway/onboard/history"
	"github.com/CodedInternet/gateway/onboard/state"
)

type Calibrator interface {
	Run(ctx context.Context) (calibration.Result, error)
}

type Recorder interface {
	Record(res calibration.Result) (history.Run, error)
}

// Dispatcher consumes operator commands and drives the lifecycle. Every
// action, calibration included, runs on the dispatcher's goroutine so
// commands are applied strictly one at a time.
type Dispatcher struct {
	controls   *state.Controls
	motors     hardware.MotorInterface
	calibrator Calibrator
	recorder   Recorder
	fullSettle time.Duration
	poll       time.Duration
	log        zerolog.Logger
}

func NewDispatcher(controls *state.Controls, motors hardware.MotorInterface, calibrator Calibrator,
	fullSettle, poll time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		controls:   controls,
		motors:     motors,
		calibrator: calibrator,
		fullSettle: fullSettle,
		poll:       poll,
		log:        log,
	}
}

// SetRecorder stores every completed zero calibration in r.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

func (d *Dispatcher) Run(ctx context.Context) error {
	for !done(ctx) {
		cmd := d.controls.TakeCommand()
		if cmd == state.CmdNone {
			sleep(ctx, d.poll)
			continue
		}
		d.Apply(ctx, cmd)
	}
	return nil
}

// Apply performs cmd against the current lifecycle state and returns the
// resulting state. Commands not valid in the current state are ignored.
func (d *Dispatcher) Apply(ctx context.Context, cmd state.Command) state.Lifecycle {
	from := d.controls.State()
	t, ok := state.Next(from, cmd)
	if !ok {
		d.log.Debug().Stringer("cmd", cmd).Stringer("state", from).Msg("command ignored")
		return from
	}

	if !d.perform(ctx, t) {
		return from
	}

	d.controls.SetState(t.To)
	d.log.Info().
		Stringer("cmd", cmd).
		Stringer("from", from).
		Stringer("to", t.To).
		Msg("transition")
	return t.To
}

// perform runs the transition's side effect, reporting whether the
// transition may be committed.
func (d *Dispatcher) perform(ctx context.Context, t state.Transition) bool {
	switch t.Action {
	case state.ActEmergencyStop:
		if err := d.motors.Stop(); err != nil {
			d.log.Error().Err(err).Msg("emergency stop did not reach every node")
		}
		return true

	case state.ActFullCalibration:
		if err := d.motors.BroadcastAxisState(hardware.AXIS_STATE_FULL_CALIBRATION_SEQUENCE); err != nil {
			d.log.Error().Err(err).Msg("failed to request full calibration")
			return false
		}
		ictx, cancel := d.interruptible(ctx)
		defer cancel()
		if d.fullSettle > 0 && !sleep(ictx, d.fullSettle) {
			d.log.Warn().Msg("full calibration wait interrupted")
			return false
		}
		return true

	case state.ActClosedLoop:
		if err := d.motors.BroadcastAxisState(hardware.AXIS_STATE_CLOSED_LOOP_CONTROL); err != nil {
			d.log.Error().Err(err).Msg("failed to enter closed loop")
			return false
		}
		return true

	case state.ActZeroCalibration:
		return d.zeroCalibration(ctx)
	}
	return true
}

func (d *Dispatcher) zeroCalibration(ctx context.Context) bool {
	ictx, cancel := d.interruptible(ctx)
	defer cancel()

	res, err := d.calibrator.Run(ictx)
	if ictx.Err() != nil {
		d.log.Warn().Msg("zero calibration interrupted")
		return false
	}
	if err != nil {
		d.log.Warn().Err(err).Msg("zero calibration finished without sensor data")
	}

	d.motors.SetOffsets(res.Offsets)
	if d.recorder != nil {
		if run, rerr := d.recorder.Record(res); rerr != nil {
			d.log.Warn().Err(rerr).Msg("failed to record calibration")
		} else {
			d.log.Debug().Int("id", run.ID).Msg("calibration recorded")
		}
	}
	return true
}

// interruptible derives a context that is cancelled as soon as an emergency
// stop is posted. The stop itself is left pending for Run to consume.
func (d *Dispatcher) interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		for sleep(ictx, d.poll) {
			if d.controls.PendingCommand() == state.CmdEmergencyStop {
				d.log.Warn().Msg("emergency stop requested, aborting")
				cancel()
				return
			}
		}
	}()
	return ictx, cancel
}
