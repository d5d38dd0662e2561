// Package protocol encodes and decodes the gateway's UDP datagrams. Every
// datagram starts with a four byte ASCII magic and all multi-byte fields are
// little endian.
package protocol

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/CodedInternet/gateway/onboard/samples"
)

var (
	MagicSensorQuery = []byte("POTQ")
	MagicSensorReply = []byte("POTR")
	MagicJointTarget = []byte("UDJ1")
	MagicControl     = []byte("CTRL")
)

const (
	magicLen = 4

	SensorQueryLen     = 6
	sensorReplyHdrLen  = 7
	sensorReplyItemLen = 3
	ControlLen         = 6

	JointCount     = 16
	JointTargetLen = magicLen + 4 + 4*JointCount
)

func hasMagic(b, magic []byte) bool {
	return len(b) >= magicLen && bytes.Equal(b[:magicLen], magic)
}

// SensorQuery asks for the latest pot readings.
type SensorQuery struct {
	Group   uint8
	Request uint8
}

func DecodeSensorQuery(b []byte) (q SensorQuery, ok bool) {
	if len(b) < SensorQueryLen || !hasMagic(b, MagicSensorQuery) {
		return q, false
	}
	return SensorQuery{Group: b[4], Request: b[5]}, true
}

func (q SensorQuery) Encode() []byte {
	b := make([]byte, 0, SensorQueryLen)
	b = append(b, MagicSensorQuery...)
	return append(b, q.Group, q.Request)
}

type ChannelValue struct {
	Index uint8
	Value uint16
}

// SensorReply echoes the query's group and request ids with the readings.
type SensorReply struct {
	Group    uint8
	Request  uint8
	Channels []ChannelValue
}

// ReplyFromMatrix answers q with every channel of m in index order.
func ReplyFromMatrix(q SensorQuery, m samples.Matrix) SensorReply {
	r := SensorReply{Group: q.Group, Request: q.Request}
	r.Channels = make([]ChannelValue, samples.Channels)
	for i := range r.Channels {
		r.Channels[i] = ChannelValue{Index: uint8(i), Value: m.Channel(i)}
	}
	return r
}

func (r SensorReply) Encode() []byte {
	n := len(r.Channels)
	if n > math.MaxUint8 {
		n = math.MaxUint8
	}

	b := make([]byte, sensorReplyHdrLen+sensorReplyItemLen*n)
	copy(b, MagicSensorReply)
	b[4], b[5], b[6] = r.Group, r.Request, uint8(n)
	for i, c := range r.Channels[:n] {
		off := sensorReplyHdrLen + sensorReplyItemLen*i
		b[off] = c.Index
		binary.LittleEndian.PutUint16(b[off+1:], c.Value)
	}
	return b
}

func DecodeSensorReply(b []byte) (r SensorReply, ok bool) {
	if len(b) < sensorReplyHdrLen || !hasMagic(b, MagicSensorReply) {
		return r, false
	}
	n := int(b[6])
	if len(b) < sensorReplyHdrLen+sensorReplyItemLen*n {
		return r, false
	}

	r = SensorReply{Group: b[4], Request: b[5], Channels: make([]ChannelValue, n)}
	for i := range r.Channels {
		off := sensorReplyHdrLen + sensorReplyItemLen*i
		r.Channels[i] = ChannelValue{Index: b[off], Value: binary.LittleEndian.Uint16(b[off+1:])}
	}
	return r, true
}

// JointTargets carries sixteen joint angles in turns. The sequence number
// is carried but not interpreted.
type JointTargets struct {
	Seq    uint32
	Angles [JointCount]float32
}

func DecodeJointTargets(b []byte) (t JointTargets, ok bool) {
	if len(b) < JointTargetLen || !hasMagic(b, MagicJointTarget) {
		return t, false
	}
	t.Seq = binary.LittleEndian.Uint32(b[4:8])
	for i := range t.Angles {
		t.Angles[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[8+4*i:]))
	}
	return t, true
}

func (t JointTargets) Encode() []byte {
	b := make([]byte, JointTargetLen)
	copy(b, MagicJointTarget)
	binary.LittleEndian.PutUint32(b[4:8], t.Seq)
	for i, a := range t.Angles {
		binary.LittleEndian.PutUint32(b[8+4*i:], math.Float32bits(a))
	}
	return b
}

// Control posts an operator command code.
type Control struct {
	Code uint8
}

func DecodeControl(b []byte) (c Control, ok bool) {
	if len(b) < ControlLen || !hasMagic(b, MagicControl) {
		return c, false
	}
	return Control{Code: b[4]}, true
}

func (c Control) Encode() []byte {
	b := make([]byte, ControlLen)
	copy(b, MagicControl)
	b[4] = c.Code
	return b
}
