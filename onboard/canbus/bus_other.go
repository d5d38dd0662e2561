//go:build !linux

package canbus

import "errors"

var errNoSocketCAN = errors.New("socketcan is only available on linux")

// Open always fails off linux, use a Loopback instead.
func Open(ifname string) Opener {
	return func() (CANBusInterface, error) {
		return nil, errNoSocketCAN
	}
}
