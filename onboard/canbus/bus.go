package canbus

// CANBusInterface is one socket on a CAN bus. Reads never block: when no
// frame is pending ReadMsg returns ErrWouldBlock so callers can poll their
// shutdown flag between frames.
type CANBusInterface interface {
	SendMsg(msg CANMsg) error
	ReadMsg() (CANMsg, error)
	Close() error
}

// Opener opens a fresh socket on the same bus.
type Opener func() (CANBusInterface, error)
