package onboard

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/CodedInternet/gateway/onboard/hardware"
	"github.com/CodedInternet/gateway/onboard/protocol"
	"github.com/CodedInternet/gateway/onboard/state"
	"github.com/CodedInternet/gateway/onboard/telemetry"
)

type RowPusher interface {
	Push(r telemetry.Row) bool
}

// MotionStream forwards joint target datagrams to the motors while the
// gateway is in RUN. Datagrams arriving in any other state are discarded.
type MotionStream struct {
	conn     net.PacketConn
	controls *state.Controls
	motors   hardware.MotorInterface
	rows     RowPusher
	started  time.Time
	poll     time.Duration
	log      zerolog.Logger
}

func NewMotionStream(conn net.PacketConn, controls *state.Controls, motors hardware.MotorInterface, rows RowPusher,
	started time.Time, poll time.Duration, log zerolog.Logger) *MotionStream {
	return &MotionStream{
		conn:     conn,
		controls: controls,
		motors:   motors,
		rows:     rows,
		started:  started,
		poll:     poll,
		log:      log,
	}
}

func (m *MotionStream) Run(ctx context.Context) error {
	buf := make([]byte, maxDatagram)
	var forwarded, dropped uint64
	defer func() {
		m.log.Info().Uint64("forwarded", forwarded).Uint64("log_dropped", dropped).Msg("motion stream stopped")
	}()

	for !done(ctx) {
		n, _, err := readPacket(m.conn, buf, m.poll)
		if err != nil {
			if done(ctx) {
				return nil
			}
			return err
		}
		if n == 0 || m.controls.State() != state.Run {
			continue
		}

		t, ok := protocol.DecodeJointTargets(buf[:n])
		if !ok {
			continue
		}

		if err := m.motors.SetTargets(t.Angles[:]); err != nil {
			m.log.Warn().Err(err).Uint32("seq", t.Seq).Msg("failed to forward targets")
		}
		forwarded++

		row := telemetry.Row{
			Time:   time.Since(m.started).Seconds(),
			Joints: append([]float32(nil), t.Angles[:]...),
		}
		if m.rows != nil && !m.rows.Push(row) {
			dropped++
		}
	}
	return nil
}
