package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const stampLayout = "20060102_150405"

// createLog makes dir if needed and creates prefix_YYYYmmdd_HHMMSS.csv in it.
func createLog(dir, prefix string, at time.Time) (*os.File, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create log dir")
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", prefix, at.Format(stampLayout)))
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create log")
	}
	return f, nil
}

func formatSeconds(t float64) string {
	return strconv.FormatFloat(t, 'f', 6, 64)
}

func formatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
