package hardware

import (
	"sync"

	"github.com/CodedInternet/gateway/onboard/canbus"
)

// testBus records every frame written to it.
type testBus struct {
	lock    sync.Mutex
	txCount int
	sent    []canbus.CANMsg
	block   int // number of sends to refuse with ErrWouldBlock
	failFor map[uint32]error
}

func (b *testBus) SendMsg(msg canbus.CANMsg) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.txCount++
	if b.block > 0 {
		b.block--
		return canbus.ErrWouldBlock
	}
	if err, ok := b.failFor[msg.ID]; ok {
		return err
	}
	b.sent = append(b.sent, msg)
	return nil
}

func (b *testBus) ReadMsg() (canbus.CANMsg, error) {
	return canbus.CANMsg{}, canbus.ErrWouldBlock
}

func (b *testBus) Close() error {
	return nil
}

func (b *testBus) lastTx() canbus.CANMsg {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.sent[len(b.sent)-1]
}
