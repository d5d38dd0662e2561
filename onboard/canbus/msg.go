package canbus

import (
	"encoding/binary"
	"errors"
)

const (
	// NodeShift is the number of low bits of an arbitration ID that carry the command.
	NodeShift = 5
	CmdMask   = 0x1F
	NodeMask  = 0x3F

	// FrameSize is the size of a linux struct can_frame.
	FrameSize     = 16
	MaxDataLength = 8

	// flags and masks from linux/can.h
	sffMask = 0x000007FF
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
)

var (
	ErrDataTooLong    = errors.New("data length exceeds 8 bytes")
	ErrShortFrame     = errors.New("raw frame shorter than a can_frame")
	ErrUnsupportedMsg = errors.New("extended, remote and error frames are not supported")
	ErrWouldBlock     = errors.New("no frame pending")
	ErrClosed         = errors.New("bus closed")
)

// CANMsg is a classic standard frame. The 11 bit arbitration ID is split
// into the node it addresses and the command it carries.
type CANMsg struct {
	ID   uint32 // node ID this is being issued for
	Cmd  uint16 // command being issued in this message
	Data []byte // raw data up to eight bytes. DLC is taken from len(Data).
}

// MsgFromArbitrationID splits a raw 11 bit arbitration ID into node and command.
func MsgFromArbitrationID(id uint32, data []byte) CANMsg {
	return CANMsg{
		ID:   (id >> NodeShift) & NodeMask,
		Cmd:  uint16(id & CmdMask),
		Data: data,
	}
}

func (msg CANMsg) ArbitrationID() uint32 {
	return (msg.ID&NodeMask)<<NodeShift | uint32(msg.Cmd)&CmdMask
}

// ToByteArray lays the message out as a struct can_frame. The ID is written
// little endian which matches every host the gateway is deployed on.
func (msg *CANMsg) ToByteArray() (raw []byte, err error) {
	if len(msg.Data) > MaxDataLength {
		return nil, ErrDataTooLong
	}

	raw = make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(raw[0:4], msg.ArbitrationID()&sffMask)
	raw[4] = byte(len(msg.Data))
	copy(raw[8:], msg.Data)

	return
}

func MsgFromByteArray(raw []byte) (msg CANMsg, err error) {
	if len(raw) < FrameSize {
		return msg, ErrShortFrame
	}

	oid := binary.LittleEndian.Uint32(raw[0:4])
	if oid&(effFlag|rtrFlag|errFlag) != 0 {
		return msg, ErrUnsupportedMsg
	}

	dlc := int(raw[4])
	if dlc > MaxDataLength {
		dlc = MaxDataLength
	}
	data := make([]byte, dlc)
	copy(data, raw[8:8+dlc])

	return MsgFromArbitrationID(oid&sffMask, data), nil
}
