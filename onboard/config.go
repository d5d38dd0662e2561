package onboard

import (
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/CodedInternet/gateway/onboard/calibration"
	"github.com/CodedInternet/gateway/onboard/protocol"
	"github.com/CodedInternet/gateway/onboard/samples"
)

const (
	CONFIG_VERSION    = "1.0.0"
	CONFIG_CONSTRAINT = "~1.0"
)

type JointConfig struct {
	Node      uint32 `yaml:"node"`
	Channel   int    `yaml:"channel"`
	Target    uint16 `yaml:"target"`
	Tolerance uint16 `yaml:"tolerance"`
	Polarity  int    `yaml:"polarity"`
	Exempt    bool   `yaml:"exempt"`
}

type PortConfig struct {
	Control    int `yaml:"control"`
	PotRequest int `yaml:"pot_request"`
	PotReply   int `yaml:"pot_reply"`
	Motion     int `yaml:"motion"`
}

type CalibrationConfig struct {
	Step       float64       `yaml:"step"`
	Interval   time.Duration `yaml:"interval"`
	Timeout    time.Duration `yaml:"timeout"`
	Settle     time.Duration `yaml:"settle"`
	FullSettle time.Duration `yaml:"full_settle"` // wait after requesting the full calibration sequence
	GroupSize  int           `yaml:"group_size"`
	// FeedbackTicks is how many ticks old an encoder estimate may be and
	// still be used.
	FeedbackTicks int `yaml:"feedback_ticks"`
}

type LoggingConfig struct {
	Dir           string        `yaml:"dir"`
	QueueCapacity int           `yaml:"queue_capacity"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type PriorityConfig struct {
	Motion      int `yaml:"motion"`
	Calibration int `yaml:"calibration"`
	Logger      int `yaml:"logger"`
}

type SimulatorConfig struct {
	Interval      time.Duration `yaml:"interval"`
	CountsPerTurn float64       `yaml:"counts_per_turn"`
	MaxSpeed      float64       `yaml:"max_speed"` // turns per second
	Seed          int64         `yaml:"seed"`
}

type GatewayConfig struct {
	Version     string            `yaml:"version"`
	Interface   string            `yaml:"interface"`
	Poll        time.Duration     `yaml:"poll"`
	Ports       PortConfig        `yaml:"ports"`
	Joints      []JointConfig     `yaml:"joints"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Logging     LoggingConfig     `yaml:"logging"`
	Priority    PriorityConfig    `yaml:"priority"`
	Simulator   SimulatorConfig   `yaml:"simulator"`
	History     string            `yaml:"history"`
	HTTP        string            `yaml:"http"`
}

// DefaultJoints maps joint i to node i+1 and pot channel i.
func DefaultJoints() []JointConfig {
	joints := make([]JointConfig, protocol.JointCount)
	for i := range joints {
		joints[i] = JointConfig{
			Node:      uint32(i + 1),
			Channel:   i,
			Target:    2048,
			Tolerance: 20,
			Polarity:  1,
		}
	}
	return joints
}

func DefaultConfig() GatewayConfig {
	return GatewayConfig{
		Version:   CONFIG_VERSION,
		Interface: "can0",
		Poll:      5 * time.Millisecond,
		Ports: PortConfig{
			Control:    60000,
			PotRequest: 50010,
			PotReply:   50011,
			Motion:     50000,
		},
		Joints: DefaultJoints(),
		Calibration: CalibrationConfig{
			Step:          0.01,
			Interval:      100 * time.Millisecond,
			Timeout:       20 * time.Second,
			Settle:        time.Second,
			FullSettle:    15 * time.Second,
			GroupSize:     4,
			FeedbackTicks: 3,
		},
		Logging: LoggingConfig{
			Dir:           "logs",
			QueueCapacity: 5000,
			FlushInterval: 300 * time.Millisecond,
		},
		Priority: PriorityConfig{
			Motion:      80,
			Calibration: 80,
			Logger:      10,
		},
		Simulator: SimulatorConfig{
			Interval:      10 * time.Millisecond,
			CountsPerTurn: 400,
			MaxSpeed:      1,
			Seed:          1,
		},
		History: "gateway.db",
	}
}

// LoadConfig overlays the YAML file at path onto DefaultConfig. A missing
// file is reported with os.ErrNotExist in the chain and the defaults.
func LoadConfig(path string) (GatewayConfig, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err = yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func (c GatewayConfig) Validate() error {
	constraint, err := semver.NewConstraint(CONFIG_CONSTRAINT)
	if err != nil {
		return err
	}
	version, err := semver.NewVersion(c.Version)
	if err != nil {
		return errors.Wrapf(err, "config version %q", c.Version)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("unable to use config version %s - require %s", c.Version, CONFIG_CONSTRAINT)
	}

	if len(c.Joints) != protocol.JointCount {
		return fmt.Errorf("joint table has %d entries, want %d", len(c.Joints), protocol.JointCount)
	}
	nodes := make(map[uint32]int, len(c.Joints))
	for i, j := range c.Joints {
		if j.Node == 0 || j.Node > 0x3F {
			return fmt.Errorf("joint %d: node %d outside 1..63", i, j.Node)
		}
		if prev, dup := nodes[j.Node]; dup {
			return fmt.Errorf("joint %d: node %d already used by joint %d", i, j.Node, prev)
		}
		nodes[j.Node] = i
		if j.Channel < 0 || j.Channel >= samples.Channels {
			return fmt.Errorf("joint %d: channel %d outside 0..%d", i, j.Channel, samples.Channels-1)
		}
		if j.Target > samples.ADCMask {
			return fmt.Errorf("joint %d: target %d exceeds 12 bits", i, j.Target)
		}
		if !j.Exempt && j.Polarity != 1 && j.Polarity != -1 {
			return fmt.Errorf("joint %d: polarity must be 1 or -1", i)
		}
	}

	for name, port := range map[string]int{
		"control":     c.Ports.Control,
		"pot_request": c.Ports.PotRequest,
		"pot_reply":   c.Ports.PotReply,
		"motion":      c.Ports.Motion,
	} {
		if port <= 0 || port > 0xFFFF {
			return fmt.Errorf("port %s: %d out of range", name, port)
		}
	}

	cal := c.Calibration
	if cal.Step <= 0 || cal.Interval <= 0 || cal.Timeout <= 0 {
		return errors.New("calibration step, interval and timeout must be positive")
	}
	if c.Poll <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// Nodes lists the node ID of every joint in joint order.
func (c GatewayConfig) Nodes() []uint32 {
	nodes := make([]uint32, len(c.Joints))
	for i, j := range c.Joints {
		nodes[i] = j.Node
	}
	return nodes
}

// EngineConfig builds the calibration engine's view of the config.
func (c GatewayConfig) EngineConfig() calibration.Config {
	joints := make([]calibration.Joint, len(c.Joints))
	for i, j := range c.Joints {
		joints[i] = calibration.Joint{
			Node:      j.Node,
			Channel:   j.Channel,
			Target:    j.Target,
			Tolerance: j.Tolerance,
			Polarity:  float64(j.Polarity),
			Exempt:    j.Exempt,
		}
	}
	return calibration.Config{
		Joints:         joints,
		Step:           c.Calibration.Step,
		Interval:       c.Calibration.Interval,
		Timeout:        c.Calibration.Timeout,
		Settle:         c.Calibration.Settle,
		GroupSize:      c.Calibration.GroupSize,
		FeedbackMaxAge: time.Duration(c.Calibration.FeedbackTicks) * c.Calibration.Interval,
	}
}
