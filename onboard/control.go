package onboard

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/CodedInternet/gateway/onboard/protocol"
	"github.com/CodedInternet/gateway/onboard/state"
)

// ControlListener posts CTRL datagram command codes into the store.
type ControlListener struct {
	conn     net.PacketConn
	controls *state.Controls
	poll     time.Duration
	log      zerolog.Logger
}

func NewControlListener(conn net.PacketConn, controls *state.Controls, poll time.Duration, log zerolog.Logger) *ControlListener {
	return &ControlListener{conn: conn, controls: controls, poll: poll, log: log}
}

func (l *ControlListener) Run(ctx context.Context) error {
	buf := make([]byte, maxDatagram)
	for !done(ctx) {
		n, addr, err := readPacket(l.conn, buf, l.poll)
		if err != nil {
			if done(ctx) {
				return nil
			}
			return err
		}
		if n == 0 {
			continue
		}

		c, ok := protocol.DecodeControl(buf[:n])
		if !ok {
			l.log.Debug().Int("len", n).Stringer("from", addr).Msg("dropped malformed control datagram")
			continue
		}
		cmd := state.Command(c.Code)
		l.log.Info().Stringer("cmd", cmd).Stringer("from", addr).Msg("command received")
		l.controls.PostCommand(cmd)
	}
	return nil
}
