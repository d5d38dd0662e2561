package telemetry

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultQueueCapacity = 5000
	DefaultFlushInterval = 300 * time.Millisecond

	MotionLogPrefix = "log_udp"
)

var ErrClosed = errors.New("logger closed")

// Row is one received joint target packet.
type Row struct {
	Time   float64 // seconds since the gateway started
	Joints []float32
}

// QueueLogger streams rows to CSV from its own goroutine. Producers never
// block: when the queue is full the row is dropped.
type QueueLogger struct {
	dir      string
	prefix   string
	joints   int
	queue    chan Row
	interval time.Duration
	log      zerolog.Logger

	dropped atomic.Uint64
	written atomic.Uint64
	path    atomic.Value
}

func NewQueueLogger(dir string, joints, capacity int, interval time.Duration, log zerolog.Logger) *QueueLogger {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &QueueLogger{
		dir:      dir,
		prefix:   MotionLogPrefix,
		joints:   joints,
		queue:    make(chan Row, capacity),
		interval: interval,
		log:      log,
	}
}

// Push enqueues r, returning false if it was dropped.
func (l *QueueLogger) Push(r Row) bool {
	select {
	case l.queue <- r:
		return true
	default:
		l.dropped.Add(1)
		return false
	}
}

func (l *QueueLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Pending is the number of rows queued but not yet written.
func (l *QueueLogger) Pending() int {
	return len(l.queue)
}

func (l *QueueLogger) Written() uint64 {
	return l.written.Load()
}

// Path is the file being written, empty until Run opens it.
func (l *QueueLogger) Path() string {
	p, _ := l.path.Load().(string)
	return p
}

// Run opens the log, then writes queued rows every flush interval until ctx
// is cancelled. Rows still queued at shutdown are written before it returns.
func (l *QueueLogger) Run(ctx context.Context) (err error) {
	f, err := createLog(l.dir, l.prefix, time.Now())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	l.path.Store(f.Name())
	l.log.Info().Str("path", f.Name()).Msg("motion log opened")

	w := csv.NewWriter(f)
	header := make([]string, 0, l.joints+1)
	header = append(header, "time")
	for i := 0; i < l.joints; i++ {
		header = append(header, "joint_"+strconv.Itoa(i))
	}
	if err = w.Write(header); err != nil {
		return err
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			err = l.flush(w, f)
			l.log.Info().
				Uint64("written", l.Written()).
				Uint64("dropped", l.Dropped()).
				Msg("motion log closed")
			return err
		case <-ticker.C:
			if err = l.flush(w, f); err != nil {
				return err
			}
		}
	}
}

func (l *QueueLogger) flush(w *csv.Writer, f *os.File) error {
	record := make([]string, l.joints+1)
	n := 0
drain:
	for {
		select {
		case r := <-l.queue:
			record[0] = formatSeconds(r.Time)
			for i := 0; i < l.joints; i++ {
				record[i+1] = ""
				if i < len(r.Joints) {
					record[i+1] = formatFloat32(r.Joints[i])
				}
			}
			if err := w.Write(record); err != nil {
				return err
			}
			n++
		default:
			break drain
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	l.written.Add(uint64(n))
	if n == 0 {
		return nil
	}
	return f.Sync()
}
