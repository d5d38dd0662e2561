//go:build !linux

package onboard

import "errors"

func setRealtimePriority(priority int) error {
	if priority <= 0 {
		return nil
	}
	return errors.New("realtime priority is only supported on linux")
}
