package samples

import (
	"sync"
	"time"
)

const (
	Boards           = 6
	ChannelsPerBoard = 3
	Channels         = Boards * ChannelsPerBoard

	// ADCMask keeps the 12 significant bits of a pot reading.
	ADCMask = 0x0FFF
)

// Matrix holds one reading per pot channel, board major.
type Matrix [Boards][ChannelsPerBoard]uint16

// Channel returns the flat channel index i, board*3+channel.
func (m Matrix) Channel(i int) uint16 {
	return m[i/ChannelsPerBoard][i%ChannelsPerBoard]
}

func (m *Matrix) SetChannel(i int, v uint16) {
	m[i/ChannelsPerBoard][i%ChannelsPerBoard] = v & ADCMask
}

// Flat returns every channel in index order.
func (m Matrix) Flat() []uint16 {
	out := make([]uint16, 0, Channels)
	for _, board := range m {
		out = append(out, board[:]...)
	}
	return out
}

// PotBuffer holds the most recent pot matrix. Readers always see a complete
// matrix, never one torn across two pushes.
type PotBuffer struct {
	lock   sync.RWMutex
	latest Matrix
	at     time.Time
	seq    uint64
	ready  chan struct{}
}

func NewPotBuffer() *PotBuffer {
	return &PotBuffer{ready: make(chan struct{})}
}

func (b *PotBuffer) PushBack(m Matrix) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.latest = m
	b.at = time.Now()
	b.seq++
	if b.seq == 1 {
		close(b.ready)
	}
}

// Back returns the latest matrix. ok is false until the first push.
func (b *PotBuffer) Back() (m Matrix, ok bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.latest, b.seq > 0
}

// Seq counts pushes so far.
func (b *PotBuffer) Seq() uint64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.seq
}

// Updated is the time of the latest push.
func (b *PotBuffer) Updated() time.Time {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.at
}

// Ready is closed once the first matrix has been pushed.
func (b *PotBuffer) Ready() <-chan struct{} {
	return b.ready
}
