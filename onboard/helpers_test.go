package onboard

import (
	"net"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CodedInternet/gateway/onboard/telemetry"
)

// testMotors records every call made through hardware.MotorInterface.
type testMotors struct {
	lock         sync.Mutex
	broadcasts   []uint32
	stops        int
	targets      [][]float32
	offsets      []float64
	broadcastErr error
}

func (m *testMotors) Joints() int { return 16 }

func (m *testMotors) BroadcastAxisState(state uint32) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.broadcasts = append(m.broadcasts, state)
	return m.broadcastErr
}

func (m *testMotors) SetPosition(joint int, pos float32) error { return nil }

func (m *testMotors) SetTargets(targets []float32) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.targets = append(m.targets, append([]float32(nil), targets...))
	return nil
}

func (m *testMotors) SetOffsets(offsets []float64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.offsets = append([]float64(nil), offsets...)
}

func (m *testMotors) Stop() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.stops++
	return nil
}

type testRows struct {
	lock sync.Mutex
	rows []telemetry.Row
}

func (r *testRows) Push(row telemetry.Row) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.rows = append(r.rows, row)
	return true
}

func (r *testRows) len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.rows)
}

func localUDP() net.PacketConn {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	So(err, ShouldBeNil)
	return conn
}

func freePort() int {
	conn := localUDP()
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func newTestBulk(t *testing.T) *telemetry.BulkLogger {
	return telemetry.NewBulkLogger(t.TempDir(), zerolog.Nop())
}
