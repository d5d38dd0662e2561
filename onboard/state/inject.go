package state

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrMalformedLine = errors.New("expected key=value")
	ErrNotInjectable = errors.New("key cannot be set from text")
)

// Inject parses a key=value line and writes it using the type the key
// already holds. Unknown keys and lifecycle keys are refused, so a text
// command can never change a key's type.
func Inject(s *Store, line string) (key string, err error) {
	idx := strings.IndexByte(line, '=')
	if idx <= 0 {
		return "", ErrMalformedLine
	}
	key = strings.TrimSpace(line[:idx])
	raw := strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", ErrMalformedLine
	}

	switch kind := s.TypeOf(key); kind {
	case KindBool:
		v, err := parseBool(raw)
		if err != nil {
			return key, errors.Wrapf(err, "%s", key)
		}
		Set(s, key, v)
	case KindInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return key, errors.Wrapf(err, "%s", key)
		}
		Set(s, key, v)
	case KindDouble:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return key, errors.Wrapf(err, "%s", key)
		}
		Set(s, key, v)
	case KindString:
		Set(s, key, raw)
	default:
		return key, errors.Wrapf(ErrNotInjectable, "%s (%s)", key, kind)
	}
	return key, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no":
		return false, nil
	}
	return false, errors.Errorf("invalid bool %q", raw)
}
