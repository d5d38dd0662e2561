package canbus

import "sync"

// LoopbackQueue is the number of frames a loopback socket holds before it
// starts dropping the oldest, standing in for the kernel receive buffer.
const LoopbackQueue = 1024

// Loopback is an in-memory bus. A frame sent on one socket is delivered to
// every other open socket, the same way SocketCAN loops frames back to
// other sockets on the host.
type Loopback struct {
	lock  sync.Mutex
	ports map[*LoopbackPort]struct{}
}

func NewLoopback() *Loopback {
	return &Loopback{ports: make(map[*LoopbackPort]struct{})}
}

// Open attaches a new socket to the bus.
func (l *Loopback) Open() *LoopbackPort {
	p := &LoopbackPort{bus: l}
	l.lock.Lock()
	l.ports[p] = struct{}{}
	l.lock.Unlock()
	return p
}

// Opener satisfies Opener so the loopback can stand in for a real interface.
func (l *Loopback) Opener() Opener {
	return func() (CANBusInterface, error) {
		return l.Open(), nil
	}
}

func (l *Loopback) deliver(from *LoopbackPort, msg CANMsg) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for p := range l.ports {
		if p == from {
			continue
		}
		p.push(msg)
	}
}

func (l *Loopback) detach(p *LoopbackPort) {
	l.lock.Lock()
	delete(l.ports, p)
	l.lock.Unlock()
}

type LoopbackPort struct {
	bus     *Loopback
	lock    sync.Mutex
	queue   []CANMsg
	dropped int
	closed  bool
}

func (p *LoopbackPort) push(msg CANMsg) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if len(p.queue) >= LoopbackQueue {
		p.queue = p.queue[1:]
		p.dropped++
	}
	p.queue = append(p.queue, msg)
}

func (p *LoopbackPort) SendMsg(msg CANMsg) error {
	if len(msg.Data) > MaxDataLength {
		return ErrDataTooLong
	}

	p.lock.Lock()
	closed := p.closed
	p.lock.Unlock()
	if closed {
		return ErrClosed
	}

	data := make([]byte, len(msg.Data))
	copy(data, msg.Data)
	msg.Data = data
	p.bus.deliver(p, msg)
	return nil
}

func (p *LoopbackPort) ReadMsg() (CANMsg, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return CANMsg{}, ErrClosed
	}
	if len(p.queue) == 0 {
		return CANMsg{}, ErrWouldBlock
	}
	msg := p.queue[0]
	p.queue = p.queue[1:]
	return msg, nil
}

// Dropped reports how many frames overflowed the receive queue.
func (p *LoopbackPort) Dropped() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.dropped
}

func (p *LoopbackPort) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	p.queue = nil
	p.lock.Unlock()

	p.bus.detach(p)
	return nil
}
