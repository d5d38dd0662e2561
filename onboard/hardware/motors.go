package hardware

import (
	"fmt"
	"sync"
	"time"

	"github.com/CodedInternet/gateway/onboard/canbus"
	"go.uber.org/multierr"
)

const (
	CMD_MAX_RETRIES = 5
	CMD_RETRY_DELAY = 200 * time.Microsecond
)

// Motors fans joint commands out to the motor controllers on one socket.
// The socket is shared by the dispatcher, calibration and the motion
// stream, so every write happens under lock.
type Motors struct {
	bus     canbus.CANBusInterface
	nodes   []uint32
	lock    sync.Mutex
	offsets []float64
}

func NewMotors(bus canbus.CANBusInterface, nodes []uint32) *Motors {
	return &Motors{
		bus:     bus,
		nodes:   nodes,
		offsets: make([]float64, len(nodes)),
	}
}

func (m *Motors) Joints() int {
	return len(m.nodes)
}

func (m *Motors) Node(joint int) uint32 {
	return m.nodes[joint]
}

// SendMsg writes msg, retrying while the transmit queue is full.
func (m *Motors) SendMsg(msg canbus.CANMsg) (err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.sendLocked(msg)
}

func (m *Motors) sendLocked(msg canbus.CANMsg) (err error) {
	for i := 0; i < CMD_MAX_RETRIES; i++ {
		err = m.bus.SendMsg(msg)
		if err != canbus.ErrWouldBlock {
			return err
		}
		time.Sleep(CMD_RETRY_DELAY)
	}
	return fmt.Errorf("node %d: %w", msg.ID, err)
}

// BroadcastAxisState sends state to every node. A failing node does not
// stop the rest.
func (m *Motors) BroadcastAxisState(state uint32) (err error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, node := range m.nodes {
		err = multierr.Append(err, m.sendLocked(SetAxisStateMsg(node, state)))
	}
	return
}

// SetPosition commands an absolute position, offsets are not applied.
func (m *Motors) SetPosition(joint int, pos float32) error {
	if joint < 0 || joint >= len(m.nodes) {
		return fmt.Errorf("joint %d out of range", joint)
	}
	return m.SendMsg(SetInputPosMsg(m.nodes[joint], pos))
}

// SetTargets commands every joint to its zero offset plus target.
func (m *Motors) SetTargets(targets []float32) (err error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for i, node := range m.nodes {
		if i >= len(targets) {
			break
		}
		pos := float32(m.offsets[i]) + targets[i]
		err = multierr.Append(err, m.sendLocked(SetInputPosMsg(node, pos)))
	}
	return
}

func (m *Motors) SetOffsets(offsets []float64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	copy(m.offsets, offsets)
}

func (m *Motors) Offsets() []float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]float64, len(m.offsets))
	copy(out, m.offsets)
	return out
}

// Stop idles every axis.
func (m *Motors) Stop() error {
	return m.BroadcastAxisState(AXIS_STATE_IDLE)
}
