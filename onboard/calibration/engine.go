// Package calibration drives every actuated joint until its pot reading sits
// within tolerance of its target, then records the commanded positions as
// the joints' zero offsets.
package calibration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CodedInternet/gateway/onboard/samples"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
)

var ErrNoSamples = errors.New("no pot samples received")

// Joint describes one joint's pot channel and its convergence target.
type Joint struct {
	Node      uint32
	Channel   int
	Target    uint16
	Tolerance uint16
	Polarity  float64 // +1 when a positive move raises the reading
	Exempt    bool
}

type Config struct {
	Joints    []Joint
	Step      float64       // turns per tick, also the per tick clamp
	Interval  time.Duration // tick period
	Timeout   time.Duration // bound on the convergence phase
	Settle    time.Duration // pause after commanding the offsets
	GroupSize int           // joints moved together, 0 moves all at once

	// FeedbackMaxAge is how old an encoder estimate may be and still be
	// used as the base for the next command.
	FeedbackMaxAge time.Duration
}

// Motors is the part of the motor fan-out calibration uses.
type Motors interface {
	SetPosition(joint int, pos float32) error
}

// Sensors supplies the latest pot matrix.
type Sensors interface {
	Back() (samples.Matrix, bool)
	// Ready is closed once the first matrix is available.
	Ready() <-chan struct{}
}

// Feedback supplies encoder estimates. It may be nil.
type Feedback interface {
	Fresh(node uint32, maxAge time.Duration, now time.Time) (samples.Position, bool)
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseConverging
	PhaseSettling
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseConverging:
		return "converging"
	case PhaseSettling:
		return "settling"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// JointState is the per joint convergence record.
type JointState struct {
	Converged        bool
	LastCommanded    float64
	LastDelta        float64
	ObservedFeedback bool
}

type Result struct {
	Started   time.Time
	Duration  time.Duration
	Ticks     int
	TimedOut  bool
	Converged []int
	Pending   []int
	Offsets   []float64
}

// Progress is a point in time view of a running calibration.
type Progress struct {
	Phase     Phase
	Group     int
	Ticks     int
	Converged int
	Joints    int
	ErrorNorm float64
}

type Engine struct {
	cfg      Config
	motors   Motors
	sensors  Sensors
	feedback Feedback
	log      zerolog.Logger

	lock     sync.Mutex
	progress Progress
}

func NewEngine(cfg Config, motors Motors, sensors Sensors, feedback Feedback, log zerolog.Logger) *Engine {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = len(cfg.Joints)
	}
	return &Engine{
		cfg:      cfg,
		motors:   motors,
		sensors:  sensors,
		feedback: feedback,
		log:      log,
		progress: Progress{Joints: len(cfg.Joints)},
	}
}

func (e *Engine) Progress() Progress {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.progress
}

func (e *Engine) setProgress(f func(p *Progress)) {
	e.lock.Lock()
	f(&e.progress)
	e.lock.Unlock()
}

// groups splits the non-exempt joints into consecutive runs of GroupSize.
func (e *Engine) groups() [][]int {
	var out [][]int
	var cur []int
	for i, j := range e.cfg.Joints {
		if j.Exempt {
			continue
		}
		cur = append(cur, i)
		if len(cur) == e.cfg.GroupSize {
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// Run converges the joints, commands every joint to its offset and waits
// for it to settle. Running out of time is not an error: the result lists
// the joints that did not converge and their offsets are whatever was last
// commanded. ErrNoSamples is returned if no pot matrix ever arrived.
func (e *Engine) Run(ctx context.Context) (res Result, err error) {
	res.Started = time.Now()
	joints := make([]JointState, len(e.cfg.Joints))
	for i, j := range e.cfg.Joints {
		joints[i].Converged = j.Exempt
		if p, ok := e.fresh(j.Node); ok {
			joints[i].LastCommanded = float64(p.Pos)
		}
	}

	groups := e.groups()
	actuated := 0
	for _, g := range groups {
		actuated += len(g)
	}
	e.log.Info().
		Int("joints", len(joints)).
		Int("groups", len(groups)).
		Float64("step", e.cfg.Step).
		Dur("timeout", e.cfg.Timeout).
		Msg("zero calibration started")

	e.setProgress(func(p *Progress) { *p = Progress{Phase: PhaseWaiting, Joints: actuated} })
	res.Ticks, res.TimedOut, err = e.converge(ctx, joints, groups)

	for i, j := range joints {
		if e.cfg.Joints[i].Exempt {
			continue
		}
		if j.Converged {
			res.Converged = append(res.Converged, i)
		} else {
			res.Pending = append(res.Pending, i)
		}
	}

	res.Offsets = make([]float64, len(joints))
	for i, j := range joints {
		res.Offsets[i] = j.LastCommanded
	}

	if ctx.Err() == nil {
		e.setProgress(func(p *Progress) { p.Phase = PhaseSettling })
		for i, off := range res.Offsets {
			if serr := e.motors.SetPosition(i, float32(off)); serr != nil {
				e.log.Warn().Err(serr).Int("joint", i).Msg("failed to command offset")
			}
		}
		sleep(ctx, e.cfg.Settle)
	}

	res.Duration = time.Since(res.Started)
	e.setProgress(func(p *Progress) { p.Phase = PhaseDone })

	ev := e.log.Info()
	if res.TimedOut {
		ev = e.log.Warn().Ints("pending", res.Pending)
	}
	ev.Int("converged", len(res.Converged)).
		Int("ticks", res.Ticks).
		Dur("took", res.Duration).
		Bool("timed_out", res.TimedOut).
		Msg("zero calibration finished")

	return res, err
}

func (e *Engine) converge(ctx context.Context, joints []JointState, groups [][]int) (ticks int, timedOut bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	if len(groups) == 0 {
		return 0, false, nil
	}
	select {
	case <-ctx.Done():
		return 0, true, ErrNoSamples
	case <-e.sensors.Ready():
	}
	e.setProgress(func(p *Progress) { p.Phase = PhaseConverging })

	for {
		group := -1
		for g, members := range groups {
			if !allConverged(joints, members) {
				group = g
				break
			}
		}
		if group < 0 {
			return ticks, false, nil
		}

		select {
		case <-ctx.Done():
			return ticks, true, nil
		case <-ticker.C:
		}

		m, ok := e.sensors.Back()
		if !ok {
			continue
		}
		ticks++

		errs := make([]float64, 0, len(groups[group]))
		for _, i := range groups[group] {
			errs = append(errs, e.step(i, &joints[i], m))
		}

		converged := 0
		for i, j := range joints {
			if j.Converged && !e.cfg.Joints[i].Exempt {
				converged++
			}
		}
		norm := mgl64.NewVecNFromData(errs).Len()
		e.setProgress(func(p *Progress) {
			p.Group = group
			p.Ticks = ticks
			p.Converged = converged
			p.ErrorNorm = norm
		})
	}
}

// step advances joint i by one tick and returns its remaining error in counts.
func (e *Engine) step(i int, js *JointState, m samples.Matrix) float64 {
	j := e.cfg.Joints[i]
	reading := int(m.Channel(j.Channel))
	diff := int(j.Target) - reading
	if js.Converged {
		return 0
	}
	if abs(diff) <= int(j.Tolerance) {
		js.Converged = true
		js.LastDelta = 0
		e.log.Debug().Int("joint", i).Int("reading", reading).Msg("joint converged")
		return float64(diff)
	}

	delta := e.cfg.Step * j.Polarity
	if diff < 0 {
		delta = -delta
	}

	base := js.LastCommanded
	if p, ok := e.fresh(j.Node); ok {
		base = float64(p.Pos)
		js.ObservedFeedback = true
	}

	// at most one step per tick, and never away from the target
	lo, hi := js.LastCommanded, js.LastCommanded+e.cfg.Step
	if delta < 0 {
		lo, hi = js.LastCommanded-e.cfg.Step, js.LastCommanded
	}
	next := mgl64.Clamp(base+delta, lo, hi)
	if err := e.motors.SetPosition(i, float32(next)); err != nil {
		e.log.Warn().Err(err).Int("joint", i).Msg("failed to command joint")
		return float64(diff)
	}
	js.LastDelta = next - js.LastCommanded
	js.LastCommanded = next
	return float64(diff)
}

func (e *Engine) fresh(node uint32) (samples.Position, bool) {
	if e.feedback == nil || e.cfg.FeedbackMaxAge <= 0 {
		return samples.Position{}, false
	}
	return e.feedback.Fresh(node, e.cfg.FeedbackMaxAge, time.Now())
}

func allConverged(joints []JointState, members []int) bool {
	for _, i := range members {
		if !joints[i].Converged {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
