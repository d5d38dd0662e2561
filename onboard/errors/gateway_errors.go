package errors

import "fmt"

// KeyNotFoundError is returned when a control store key has never been set.
type KeyNotFoundError struct {
	Key string
}

func (err KeyNotFoundError) Error() string {
	return fmt.Sprintf("no such key %q", err.Key)
}

// TypeMismatchError is returned when a key is read as a different type than it holds.
type TypeMismatchError struct {
	Key  string
	Want string
	Have string
}

func (err TypeMismatchError) Error() string {
	if len(err.Have) == 0 {
		err.Have = "UNKNOWN"
	}

	return fmt.Sprintf("type mismatch on %q; holds %s, read as %s", err.Key, err.Have, err.Want)
}

// SetupError is raised when a loop cannot acquire its socket or file. It is
// fatal to that loop only.
type SetupError struct {
	Loop string
	Op   string
	Err  error
}

func (err SetupError) Error() string {
	return fmt.Sprintf("%s: %s: %v", err.Loop, err.Op, err.Err)
}

func (err SetupError) Unwrap() error {
	return err.Err
}
