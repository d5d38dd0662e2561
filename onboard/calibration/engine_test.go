package calibration

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/CodedInternet/gateway/onboard/samples"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

type command struct {
	joint int
	pos   float64
}

// plant is a set of joints whose pots read base + polarity*gain*pos.
type plant struct {
	lock     sync.Mutex
	pos      []float64
	base     []int
	polarity []float64
	gain     float64
	stuck    bool
	silent   bool
	cmds     []command
}

func newPlant(n int) *plant {
	p := &plant{
		pos:      make([]float64, n),
		base:     make([]int, n),
		polarity: make([]float64, n),
		gain:     1000,
	}
	for i := range p.base {
		p.base[i] = 2000
		p.polarity[i] = 1
	}
	return p
}

func (p *plant) SetPosition(joint int, pos float32) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.cmds = append(p.cmds, command{joint, float64(pos)})
	if !p.stuck {
		p.pos[joint] = float64(pos)
	}
	return nil
}

func (p *plant) Back() (m samples.Matrix, ok bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.silent {
		return m, false
	}
	for i := range p.pos {
		m.SetChannel(i, uint16(math.Round(float64(p.base[i])+p.polarity[i]*p.gain*p.pos[i])))
	}
	return m, true
}

func (p *plant) Ready() <-chan struct{} {
	p.lock.Lock()
	defer p.lock.Unlock()
	ch := make(chan struct{})
	if !p.silent {
		close(ch)
	}
	return ch
}

func (p *plant) commands() []command {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]command(nil), p.cmds...)
}

type stuckFeedback struct{}

func (stuckFeedback) Fresh(node uint32, maxAge time.Duration, now time.Time) (samples.Position, bool) {
	return samples.Position{At: now}, true
}

// laggingFeedback is silent for the first quiet calls, then reports the
// axis parked at zero.
type laggingFeedback struct {
	lock  sync.Mutex
	quiet int
}

func (f *laggingFeedback) Fresh(node uint32, maxAge time.Duration, now time.Time) (samples.Position, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.quiet > 0 {
		f.quiet--
		return samples.Position{}, false
	}
	return samples.Position{At: now}, true
}

func testConfig(joints []Joint) Config {
	return Config{
		Joints:   joints,
		Step:     0.01,
		Interval: time.Millisecond,
		Timeout:  3 * time.Second,
		Settle:   5 * time.Millisecond,
	}
}

func TestEngineConverges(t *testing.T) {
	Convey("Given four joints in groups of two, one exempt", t, func() {
		p := newPlant(4)
		p.polarity[1] = -1
		joints := []Joint{
			{Node: 1, Channel: 0, Target: 2100, Tolerance: 5, Polarity: 1},
			{Node: 2, Channel: 1, Target: 1900, Tolerance: 5, Polarity: -1},
			{Node: 3, Channel: 2, Target: 2050, Tolerance: 5, Polarity: 1},
			{Node: 4, Channel: 3, Exempt: true},
		}
		cfg := testConfig(joints)
		cfg.GroupSize = 2
		e := NewEngine(cfg, p, p, nil, zerolog.Nop())

		res, err := e.Run(context.Background())
		So(err, ShouldBeNil)

		Convey("every actuated joint converges", func() {
			So(res.TimedOut, ShouldBeFalse)
			So(res.Converged, ShouldResemble, []int{0, 1, 2})
			So(res.Pending, ShouldBeEmpty)
			So(e.Progress().Phase, ShouldEqual, PhaseDone)
		})

		Convey("offsets are the final commanded positions", func() {
			So(res.Offsets[0], ShouldAlmostEqual, 0.1, 1e-6)
			So(res.Offsets[1], ShouldAlmostEqual, 0.1, 1e-6)
			So(res.Offsets[2], ShouldAlmostEqual, 0.05, 1e-6)
			So(res.Offsets[3], ShouldEqual, 0)
		})

		Convey("no joint moves more than one step per tick", func() {
			last := make([]float64, 4)
			for _, c := range p.commands() {
				So(math.Abs(c.pos-last[c.joint]), ShouldBeLessThanOrEqualTo, cfg.Step+1e-6)
				last[c.joint] = c.pos
			}
		})

		Convey("the second group waits for the first", func() {
			cmds := p.commands()
			firstOf2, lastOf0 := -1, -1
			for i, c := range cmds[:len(cmds)-4] {
				if c.joint == 2 && firstOf2 < 0 {
					firstOf2 = i
				}
				if c.joint == 0 {
					lastOf0 = i
				}
			}
			So(firstOf2, ShouldBeGreaterThan, lastOf0)
		})

		Convey("every joint is commanded to its offset at the end", func() {
			cmds := p.commands()
			tail := cmds[len(cmds)-4:]
			for i, c := range tail {
				So(c.joint, ShouldEqual, i)
				So(c.pos, ShouldAlmostEqual, res.Offsets[i], 1e-6)
			}
		})
	})
}

func TestEngineTimeout(t *testing.T) {
	Convey("Joints that cannot move time out within the bound", t, func() {
		p := newPlant(2)
		p.stuck = true
		cfg := testConfig([]Joint{
			{Node: 1, Channel: 0, Target: 2500, Tolerance: 5, Polarity: 1},
			{Node: 2, Channel: 1, Target: 2000, Tolerance: 5, Polarity: 1},
		})
		cfg.Timeout = 100 * time.Millisecond
		cfg.Interval = 2 * time.Millisecond

		start := time.Now()
		res, err := NewEngine(cfg, p, p, nil, zerolog.Nop()).Run(context.Background())
		So(err, ShouldBeNil)
		So(time.Since(start), ShouldBeLessThan, cfg.Timeout+cfg.Settle+400*time.Millisecond)
		So(res.TimedOut, ShouldBeTrue)
		So(res.Converged, ShouldResemble, []int{1})
		So(res.Pending, ShouldResemble, []int{0})
		So(res.Offsets[0], ShouldBeGreaterThan, 0)
	})

	Convey("Without pot samples calibration reports it", t, func() {
		p := newPlant(1)
		p.silent = true
		cfg := testConfig([]Joint{{Node: 1, Target: 2500, Tolerance: 5, Polarity: 1}})
		cfg.Timeout = 30 * time.Millisecond

		res, err := NewEngine(cfg, p, p, nil, zerolog.Nop()).Run(context.Background())
		So(err, ShouldEqual, ErrNoSamples)
		So(res.TimedOut, ShouldBeTrue)
		So(res.Ticks, ShouldEqual, 0)
	})
}

func TestEngineFeedback(t *testing.T) {
	Convey("Fresh feedback keeps commands from winding up", t, func() {
		p := newPlant(1)
		p.stuck = true
		cfg := testConfig([]Joint{{Node: 1, Target: 2500, Tolerance: 5, Polarity: 1}})
		cfg.Timeout = 50 * time.Millisecond
		cfg.FeedbackMaxAge = time.Second

		res, err := NewEngine(cfg, p, p, stuckFeedback{}, zerolog.Nop()).Run(context.Background())
		So(err, ShouldBeNil)
		So(res.TimedOut, ShouldBeTrue)
		for _, c := range p.commands() {
			So(c.pos, ShouldAlmostEqual, cfg.Step, 1e-6)
		}
	})
}

func TestEngineLaggingFeedback(t *testing.T) {
	Convey("Feedback that lags the dead-reckoned position never reverses a joint", t, func() {
		p := newPlant(2)
		p.stuck = true
		cfg := testConfig([]Joint{
			{Node: 1, Channel: 0, Target: 2500, Tolerance: 5, Polarity: 1},
			{Node: 2, Channel: 1, Target: 1500, Tolerance: 5, Polarity: 1},
		})
		cfg.Timeout = 60 * time.Millisecond
		cfg.Interval = 2 * time.Millisecond
		cfg.FeedbackMaxAge = time.Second

		_, err := NewEngine(cfg, p, p, &laggingFeedback{quiet: 10}, zerolog.Nop()).Run(context.Background())
		So(err, ShouldBeNil)

		last := make([]float64, 2)
		for _, c := range p.commands() {
			if c.joint == 0 {
				So(c.pos, ShouldBeGreaterThanOrEqualTo, last[0]-1e-9)
			} else {
				So(c.pos, ShouldBeLessThanOrEqualTo, last[1]+1e-9)
			}
			So(math.Abs(c.pos-last[c.joint]), ShouldBeLessThanOrEqualTo, cfg.Step+1e-6)
			last[c.joint] = c.pos
		}
		So(last[0], ShouldBeGreaterThan, cfg.Step)
	})
}
