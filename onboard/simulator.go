package onboard

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/CodedInternet/gateway/onboard/canbus"
	"github.com/CodedInternet/gateway/onboard/hardware"
	"github.com/CodedInternet/gateway/onboard/samples"
)

const (
	SIM_ZERO_SPREAD = 0.25 // turns either side of the commanded zero
	SIM_IDLE_ADC    = 2048
)

type simNode struct {
	joint     int
	axisState uint32
	target    float64
	pos       float64
	vel       float64
}

// Simulator is an in-process robot on a loopback CAN bus. Its nodes follow
// position commands while in closed loop, report encoder estimates and
// drive the pot boards from their positions.
type Simulator struct {
	bus    *canbus.Loopback
	port   *canbus.LoopbackPort
	cfg    SimulatorConfig
	joints []JointConfig
	log    zerolog.Logger

	lock  sync.Mutex
	nodes map[uint32]*simNode
	base  [samples.Channels]float64
}

func NewSimulator(cfg GatewayConfig, log zerolog.Logger) *Simulator {
	bus := canbus.NewLoopback()
	s := &Simulator{
		bus:    bus,
		port:   bus.Open(),
		cfg:    cfg.Simulator,
		joints: cfg.Joints,
		log:    log,
		nodes:  make(map[uint32]*simNode, len(cfg.Joints)),
	}

	rnd := rand.New(rand.NewSource(cfg.Simulator.Seed))
	for i := range s.base {
		s.base[i] = SIM_IDLE_ADC
	}
	for i, j := range cfg.Joints {
		s.nodes[j.Node] = &simNode{joint: i, axisState: hardware.AXIS_STATE_IDLE}
		if j.Exempt {
			continue
		}
		// pick a hidden zero and place the pot so it reads target there
		zero := (rnd.Float64()*2 - 1) * SIM_ZERO_SPREAD
		s.base[j.Channel] = float64(j.Target) - float64(j.Polarity)*s.cfg.CountsPerTurn*zero
	}
	return s
}

// Opener hands out gateway sockets on the simulated bus.
func (s *Simulator) Opener() canbus.Opener {
	return s.bus.Opener()
}

// Position reports where node's axis is.
func (s *Simulator) Position(node uint32) (pos float64, axisState uint32, ok bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	n, ok := s.nodes[node]
	if !ok {
		return 0, 0, false
	}
	return n.pos, n.axisState, true
}

func (s *Simulator) Run(ctx context.Context) error {
	defer s.port.Close()

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Int("nodes", len(s.nodes)).Dur("interval", interval).Msg("simulated robot running")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s.receive()
		s.step(interval.Seconds())
		s.transmit()
	}
}

func (s *Simulator) receive() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for {
		msg, err := s.port.ReadMsg()
		if err != nil {
			return
		}
		if node, axisState, ok := hardware.DecodeAxisState(msg); ok {
			if n, known := s.nodes[node]; known {
				n.axisState = axisState
				if axisState == hardware.AXIS_STATE_CLOSED_LOOP_CONTROL {
					n.target = n.pos
				}
			}
			continue
		}
		if node, pos, ok := hardware.DecodeInputPos(msg); ok {
			if n, known := s.nodes[node]; known {
				n.target = float64(pos)
			}
		}
	}
}

func (s *Simulator) step(dt float64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	maxMove := s.cfg.MaxSpeed * dt
	for _, n := range s.nodes {
		switch n.axisState {
		case hardware.AXIS_STATE_FULL_CALIBRATION_SEQUENCE:
			// the real sequence ends idle
			n.axisState = hardware.AXIS_STATE_IDLE
			n.vel = 0
		case hardware.AXIS_STATE_CLOSED_LOOP_CONTROL:
			move := n.target - n.pos
			if maxMove > 0 {
				move = math.Max(-maxMove, math.Min(maxMove, move))
			}
			n.pos += move
			n.vel = move / dt
		default:
			n.vel = 0
		}
	}
}

func (s *Simulator) transmit() {
	s.lock.Lock()
	var m samples.Matrix
	for i, b := range s.base {
		m.SetChannel(i, toADC(b))
	}
	estimates := make([]canbus.CANMsg, 0, len(s.nodes))
	for node, n := range s.nodes {
		j := s.joints[n.joint]
		if !j.Exempt {
			m.SetChannel(j.Channel, toADC(s.base[j.Channel]+float64(j.Polarity)*s.cfg.CountsPerTurn*n.pos))
		}
		estimates = append(estimates, hardware.EncoderEstimateMsg(node, float32(n.pos), float32(n.vel)))
	}
	s.lock.Unlock()

	for board := 0; board < samples.Boards; board++ {
		s.port.SendMsg(hardware.PotMsg(board, m[board][:]))
	}
	for _, msg := range estimates {
		s.port.SendMsg(msg)
	}
}

func toADC(v float64) uint16 {
	return uint16(math.Max(0, math.Min(samples.ADCMask, math.Round(v))))
}
