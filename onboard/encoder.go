package onboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/CodedInternet/gateway/onboard/canbus"
	"github.com/CodedInternet/gateway/onboard/hardware"
	"github.com/CodedInternet/gateway/onboard/samples"
	"github.com/CodedInternet/gateway/onboard/state"
	"github.com/CodedInternet/gateway/onboard/telemetry"
)

// EncoderSampler tracks encoder estimates for calibration feedback and
// records them while the gateway is in RUN.
type EncoderSampler struct {
	bus       canbus.CANBusInterface
	controls  *state.Controls
	positions *samples.PositionTable
	record    *telemetry.BulkLogger
	started   time.Time
	poll      time.Duration
	log       zerolog.Logger
}

func NewEncoderSampler(bus canbus.CANBusInterface, controls *state.Controls, positions *samples.PositionTable,
	record *telemetry.BulkLogger, started time.Time, poll time.Duration, log zerolog.Logger) *EncoderSampler {
	return &EncoderSampler{
		bus:       bus,
		controls:  controls,
		positions: positions,
		record:    record,
		started:   started,
		poll:      poll,
		log:       log,
	}
}

func (s *EncoderSampler) Run(ctx context.Context) error {
	for !done(ctx) {
		msg, err := s.bus.ReadMsg()
		switch err {
		case nil:
		case canbus.ErrWouldBlock:
			sleep(ctx, s.poll)
			continue
		case canbus.ErrUnsupportedMsg, canbus.ErrShortFrame:
			continue
		default:
			if done(ctx) {
				return nil
			}
			return err
		}

		e, ok := hardware.DecodeEncoderEstimate(msg)
		if !ok {
			continue
		}
		now := time.Now()
		s.positions.Update(e.Node, e.Pos, e.Vel, now)

		if s.record != nil && s.controls.State() == state.Run {
			s.record.Append(telemetry.Sample{
				Time: now.Sub(s.started).Seconds(),
				Node: e.Node,
				Pos:  e.Pos,
				Vel:  e.Vel,
			})
		}
	}
	return nil
}
