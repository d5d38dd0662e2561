// Package history keeps a record of zero calibration runs in a storm database.
package history

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/index"
	"github.com/pkg/errors"

	"github.com/CodedInternet/gateway/onboard/calibration"
)

// Run is one stored calibration.
type Run struct {
	ID        int       `storm:"increment" json:"id"` // pk
	Started   time.Time `storm:"index" json:"started"`
	Duration  string    `json:"duration"`
	Ticks     int       `json:"ticks"`
	TimedOut  bool      `json:"timed_out"`
	Converged []int     `json:"converged"`
	Pending   []int     `json:"pending"`
	Offsets   []float64 `json:"offsets"`
}

func RunFromResult(res calibration.Result) Run {
	return Run{
		Started:   res.Started,
		Duration:  res.Duration.String(),
		Ticks:     res.Ticks,
		TimedOut:  res.TimedOut,
		Converged: res.Converged,
		Pending:   res.Pending,
		Offsets:   res.Offsets,
	}
}

type DB struct {
	db *storm.DB
}

func Open(path string) (*DB, error) {
	db, err := storm.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open history %s", path)
	}
	return &DB{db: db}, nil
}

func (h *DB) Record(res calibration.Result) (Run, error) {
	run := RunFromResult(res)
	if err := h.db.Save(&run); err != nil {
		return run, errors.Wrap(err, "save calibration run")
	}
	return run, nil
}

// Recent returns up to limit runs, newest first. A limit of 0 returns all.
func (h *DB) Recent(limit int) ([]Run, error) {
	var runs []Run
	opts := []func(*index.Options){storm.Reverse()}
	if limit > 0 {
		opts = append(opts, storm.Limit(limit))
	}
	err := h.db.All(&runs, opts...)
	if err != nil && err != storm.ErrNotFound {
		return nil, err
	}
	return runs, nil
}

// Latest returns the newest run. ok is false if none has been recorded.
func (h *DB) Latest() (run Run, ok bool, err error) {
	runs, err := h.Recent(1)
	if err != nil || len(runs) == 0 {
		return run, false, err
	}
	return runs[0], true, nil
}

func (h *DB) Close() error {
	return h.db.Close()
}
