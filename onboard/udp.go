package onboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/CodedInternet/gateway/onboard/canbus"
	gwerrors "github.com/CodedInternet/gateway/onboard/errors"
)

// maxDatagram covers every packet the gateway accepts with room to spare.
const maxDatagram = 1500

func listenUDP(loop string, port int) (net.PacketConn, error) {
	addr := fmt.Sprintf(":%d", port)
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, gwerrors.SetupError{Loop: loop, Op: "listen udp " + addr, Err: err}
	}
	return conn, nil
}

func openBus(loop string, open canbus.Opener) (canbus.CANBusInterface, error) {
	bus, err := open()
	if err != nil {
		return nil, gwerrors.SetupError{Loop: loop, Op: "open can", Err: err}
	}
	return bus, nil
}

// readPacket waits at most poll for a datagram. A timeout is reported as
// n == 0 with a nil error.
func readPacket(conn net.PacketConn, buf []byte, poll time.Duration) (int, net.Addr, error) {
	if err := conn.SetReadDeadline(time.Now().Add(poll)); err != nil {
		return 0, nil, err
	}
	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return n, addr, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
