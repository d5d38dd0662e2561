package onboard

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/CodedInternet/gateway/onboard/canbus"
	"github.com/CodedInternet/gateway/onboard/hardware"
	"github.com/CodedInternet/gateway/onboard/protocol"
	"github.com/CodedInternet/gateway/onboard/samples"
	"github.com/CodedInternet/gateway/onboard/state"
)

// maxFramesPerPoll bounds how long CAN draining can starve the query socket.
const maxFramesPerPoll = 256

// PotSampler folds pot board frames into the pot buffer and answers sensor
// queries from it.
type PotSampler struct {
	bus       canbus.CANBusInterface
	conn      net.PacketConn
	replyPort int
	pots      *samples.PotBuffer
	controls  *state.Controls
	poll      time.Duration
	log       zerolog.Logger

	matrix    samples.Matrix
	echoUntil time.Time
}

func NewPotSampler(bus canbus.CANBusInterface, conn net.PacketConn, replyPort int, pots *samples.PotBuffer,
	controls *state.Controls, poll time.Duration, log zerolog.Logger) *PotSampler {
	return &PotSampler{
		bus:       bus,
		conn:      conn,
		replyPort: replyPort,
		pots:      pots,
		controls:  controls,
		poll:      poll,
		log:       log,
	}
}

func (s *PotSampler) Run(ctx context.Context) error {
	buf := make([]byte, maxDatagram)
	for !done(ctx) {
		if secs := s.controls.TakePotEcho(); secs > 0 {
			s.echoUntil = time.Now().Add(time.Duration(secs) * time.Second)
			s.log.Info().Int("seconds", secs).Msg("echoing pot frames")
		}

		if err := s.drainBus(); err != nil {
			return err
		}

		n, addr, err := readPacket(s.conn, buf, s.poll)
		if err != nil {
			if done(ctx) {
				return nil
			}
			return err
		}
		if n > 0 {
			s.answer(buf[:n], addr)
		}
	}
	return nil
}

func (s *PotSampler) drainBus() error {
	for i := 0; i < maxFramesPerPoll; i++ {
		msg, err := s.bus.ReadMsg()
		switch err {
		case nil:
		case canbus.ErrWouldBlock:
			return nil
		case canbus.ErrUnsupportedMsg, canbus.ErrShortFrame:
			continue
		default:
			return err
		}

		reading, ok := hardware.DecodePotMsg(msg)
		if !ok {
			continue
		}
		reading.Apply(&s.matrix)
		s.pots.PushBack(s.matrix)

		if time.Now().Before(s.echoUntil) {
			s.log.Info().Int("board", reading.Board).Interface("values", reading.Values).Msg("pot")
		}
	}
	return nil
}

func (s *PotSampler) answer(pkt []byte, addr net.Addr) {
	q, ok := protocol.DecodeSensorQuery(pkt)
	if !ok {
		return
	}
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}

	m, _ := s.pots.Back()
	reply := protocol.ReplyFromMatrix(q, m).Encode()
	to := &net.UDPAddr{IP: udp.IP, Port: s.replyPort}
	if _, err := s.conn.WriteTo(reply, to); err != nil {
		s.log.Warn().Err(err).Str("to", to.String()).Msg("failed to send pot reply")
	}
}
