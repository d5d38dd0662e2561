package canbus

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// CANBus is a raw, non-blocking SocketCAN socket.
type CANBus struct {
	fd     int
	lock   sync.Mutex
	closed bool
}

func NewCANBus(ifname string) (bus *CANBus, err error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup %s", ifname)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "socket")
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err = unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "bind %s", ifname)
	}

	return &CANBus{fd: fd}, nil
}

// Open returns an Opener for ifname, one socket per call.
func Open(ifname string) Opener {
	return func() (CANBusInterface, error) {
		return NewCANBus(ifname)
	}
}

func (c *CANBus) SendMsg(msg CANMsg) error {
	raw, err := msg.ToByteArray()
	if err != nil {
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return ErrClosed
	}

	_, err = unix.Write(c.fd, raw)
	if err == unix.EAGAIN || err == unix.ENOBUFS {
		return ErrWouldBlock
	}
	return err
}

func (c *CANBus) ReadMsg() (CANMsg, error) {
	raw := make([]byte, FrameSize)
	n, err := unix.Read(c.fd, raw)
	switch {
	case err == unix.EAGAIN:
		return CANMsg{}, ErrWouldBlock
	case err == unix.EBADF:
		return CANMsg{}, ErrClosed
	case err != nil:
		return CANMsg{}, err
	}

	return MsgFromByteArray(raw[:n])
}

func (c *CANBus) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}
