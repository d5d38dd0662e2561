package telemetry

import (
	"bufio"
	"encoding/csv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EncoderLogPrefix = "encoder"

	bulkReserve = 10000
)

// Sample is one decoded encoder estimate.
type Sample struct {
	Time float64
	Node uint32
	Pos  float32
	Vel  float32
}

// BulkLogger keeps every sample in memory and writes them out once, at
// shutdown.
type BulkLogger struct {
	dir     string
	lock    sync.Mutex
	samples []Sample
	log     zerolog.Logger
}

func NewBulkLogger(dir string, log zerolog.Logger) *BulkLogger {
	return &BulkLogger{
		dir:     dir,
		samples: make([]Sample, 0, bulkReserve),
		log:     log,
	}
}

func (l *BulkLogger) Append(s Sample) {
	l.lock.Lock()
	l.samples = append(l.samples, s)
	l.lock.Unlock()
}

func (l *BulkLogger) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.samples)
}

// WriteAll writes every sample in a single pass and returns the file path.
// With nothing recorded it writes no file.
func (l *BulkLogger) WriteAll() (path string, err error) {
	l.lock.Lock()
	samples := l.samples
	l.samples = nil
	l.lock.Unlock()

	if len(samples) == 0 {
		l.log.Info().Msg("no samples")
		return "", nil
	}

	f, err := createLog(l.dir, EncoderLogPrefix, time.Now())
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(f, 64*1024)
	w := csv.NewWriter(bw)
	if err = w.Write([]string{"time", "node_id", "pos", "vel"}); err != nil {
		return "", err
	}
	for _, s := range samples {
		err = w.Write([]string{
			formatSeconds(s.Time),
			strconv.FormatUint(uint64(s.Node), 10),
			formatFloat32(s.Pos),
			formatFloat32(s.Vel),
		})
		if err != nil {
			return "", err
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return "", err
	}
	if err = bw.Flush(); err != nil {
		return "", err
	}

	l.log.Info().Str("path", f.Name()).Int("samples", len(samples)).Msg("encoder log written")
	return f.Name(), nil
}
