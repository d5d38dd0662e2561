package samples

import (
	"sync"
	"time"
)

// Position is the latest encoder estimate reported by a motor controller.
type Position struct {
	Pos, Vel float32
	At       time.Time
}

// PositionTable tracks the latest estimate per node.
type PositionTable struct {
	lock sync.RWMutex
	m    map[uint32]Position
}

func NewPositionTable() *PositionTable {
	return &PositionTable{m: make(map[uint32]Position)}
}

func (t *PositionTable) Update(node uint32, pos, vel float32, at time.Time) {
	t.lock.Lock()
	t.m[node] = Position{Pos: pos, Vel: vel, At: at}
	t.lock.Unlock()
}

func (t *PositionTable) Latest(node uint32) (Position, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	p, ok := t.m[node]
	return p, ok
}

// Fresh returns the estimate for node only if it is no older than maxAge.
func (t *PositionTable) Fresh(node uint32, maxAge time.Duration, now time.Time) (Position, bool) {
	p, ok := t.Latest(node)
	if !ok || now.Sub(p.At) > maxAge {
		return Position{}, false
	}
	return p, true
}

func (t *PositionTable) Snapshot() map[uint32]Position {
	t.lock.RLock()
	defer t.lock.RUnlock()
	out := make(map[uint32]Position, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}
