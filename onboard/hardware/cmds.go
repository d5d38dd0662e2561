package hardware

import (
	"encoding/binary"
	"math"

	"github.com/CodedInternet/gateway/onboard/canbus"
	"github.com/CodedInternet/gateway/onboard/samples"
)

// motor controller opcodes, low five bits of the arbitration ID
const (
	CMD_SET_AXIS_STATE        = 0x007
	CMD_GET_ENCODER_ESTIMATES = 0x009
	CMD_SET_INPUT_POS         = 0x00C
)

// axis states understood by the motor controllers
const (
	AXIS_STATE_IDLE                      = 1
	AXIS_STATE_FULL_CALIBRATION_SEQUENCE = 3
	AXIS_STATE_CLOSED_LOOP_CONTROL       = 8
)

const (
	// POT_BASE_ID is the arbitration ID of pot board 0.
	POT_BASE_ID = 0x301

	ENCODER_DLC   = 8
	INPUT_POS_DLC = 4
)

// SetAxisStateMsg requests an axis state change on node.
func SetAxisStateMsg(node, state uint32) canbus.CANMsg {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, state)
	return canbus.CANMsg{ID: node, Cmd: CMD_SET_AXIS_STATE, Data: data}
}

// SetInputPosMsg commands an absolute position in turns. The payload is the
// bare four byte float.
func SetInputPosMsg(node uint32, pos float32) canbus.CANMsg {
	data := make([]byte, INPUT_POS_DLC)
	binary.LittleEndian.PutUint32(data, math.Float32bits(pos))
	return canbus.CANMsg{ID: node, Cmd: CMD_SET_INPUT_POS, Data: data}
}

func EncoderEstimateMsg(node uint32, pos, vel float32) canbus.CANMsg {
	data := make([]byte, ENCODER_DLC)
	binary.LittleEndian.PutUint32(data[0:4], math.Float32bits(pos))
	binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(vel))
	return canbus.CANMsg{ID: node, Cmd: CMD_GET_ENCODER_ESTIMATES, Data: data}
}

type EncoderEstimate struct {
	Node     uint32
	Pos, Vel float32
}

// DecodeEncoderEstimate accepts only GET_ENCODER_ESTIMATES frames with a
// full eight byte payload.
func DecodeEncoderEstimate(msg canbus.CANMsg) (e EncoderEstimate, ok bool) {
	if msg.Cmd != CMD_GET_ENCODER_ESTIMATES || len(msg.Data) != ENCODER_DLC {
		return e, false
	}
	return EncoderEstimate{
		Node: msg.ID & canbus.NodeMask,
		Pos:  math.Float32frombits(binary.LittleEndian.Uint32(msg.Data[0:4])),
		Vel:  math.Float32frombits(binary.LittleEndian.Uint32(msg.Data[4:8])),
	}, true
}

func DecodeAxisState(msg canbus.CANMsg) (node, state uint32, ok bool) {
	if msg.Cmd != CMD_SET_AXIS_STATE || len(msg.Data) < 4 {
		return 0, 0, false
	}
	return msg.ID, binary.LittleEndian.Uint32(msg.Data), true
}

func DecodeInputPos(msg canbus.CANMsg) (node uint32, pos float32, ok bool) {
	if msg.Cmd != CMD_SET_INPUT_POS || len(msg.Data) < INPUT_POS_DLC {
		return 0, 0, false
	}
	return msg.ID, math.Float32frombits(binary.LittleEndian.Uint32(msg.Data)), true
}

// PotMsg packs up to three readings for a pot board.
func PotMsg(board int, values []uint16) canbus.CANMsg {
	if len(values) > samples.ChannelsPerBoard {
		values = values[:samples.ChannelsPerBoard]
	}
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	return canbus.MsgFromArbitrationID(uint32(POT_BASE_ID+board), data)
}

type PotReading struct {
	Board  int
	Values []uint16
}

// DecodePotMsg reads dlc/2 little endian values, at most three, from a pot
// board frame. Values are masked to 12 bits.
func DecodePotMsg(msg canbus.CANMsg) (r PotReading, ok bool) {
	board := int(msg.ArbitrationID()) - POT_BASE_ID
	if board < 0 || board >= samples.Boards {
		return r, false
	}

	n := len(msg.Data) / 2
	if n > samples.ChannelsPerBoard {
		n = samples.ChannelsPerBoard
	}
	r.Board = board
	r.Values = make([]uint16, n)
	for i := range r.Values {
		r.Values[i] = binary.LittleEndian.Uint16(msg.Data[2*i:]) & samples.ADCMask
	}
	return r, true
}

// Apply writes the reading into m.
func (r PotReading) Apply(m *samples.Matrix) {
	for i, v := range r.Values {
		m[r.Board][i] = v
	}
}
