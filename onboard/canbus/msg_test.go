package canbus

import (
	"encoding/binary"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCANMsg_ToByteArray(t *testing.T) {
	Convey("Standard frame format encodes correctly", t, func() {
		msg := &CANMsg{
			ID:   0x01,
			Cmd:  0x0C,
			Data: []byte{1, 2, 3, 4, 5},
		}
		raw, err := msg.ToByteArray()
		So(err, ShouldBeNil)
		So(raw, ShouldHaveLength, FrameSize)

		Convey("ID combines node and command", func() {
			So(raw[0:4], ShouldResemble, []byte{0x2C, 0x00, 0x00, 0x00})
		})

		Convey("Data length is correctly set", func() {
			So(raw[4], ShouldEqual, 5)
		})

		Convey("Data is copied over", func() {
			So(raw[8:], ShouldResemble, []byte{1, 2, 3, 4, 5, 0, 0, 0})
		})

		Convey("data length error is handled correctly", func() {
			msg.Data = make([]byte, 8)
			_, err = msg.ToByteArray()
			So(err, ShouldBeNil)

			msg.Data = make([]byte, 9)
			_, err = msg.ToByteArray()
			So(err, ShouldEqual, ErrDataTooLong)
		})
	})
}

func TestMsgFromByteArray(t *testing.T) {
	Convey("Given a raw encoder estimate frame from node 3", t, func() {
		raw := make([]byte, FrameSize)
		binary.LittleEndian.PutUint32(raw[0:4], 3<<5|0x09)
		raw[4] = 8
		copy(raw[8:], []byte{1, 2, 3, 4, 5, 6, 7, 8})

		msg, err := MsgFromByteArray(raw)
		So(err, ShouldBeNil)

		Convey("node and command are split out", func() {
			So(msg.ID, ShouldEqual, 3)
			So(msg.Cmd, ShouldEqual, 0x09)
			So(msg.ArbitrationID(), ShouldEqual, 0x69)
		})

		Convey("data is copied and not aliased", func() {
			So(msg.Data, ShouldResemble, []byte{1, 2, 3, 4, 5, 6, 7, 8})
			raw[8] = 0xFF
			So(msg.Data[0], ShouldEqual, 1)
		})
	})

	Convey("Short and extended frames are rejected", t, func() {
		_, err := MsgFromByteArray(make([]byte, 8))
		So(err, ShouldEqual, ErrShortFrame)

		raw := make([]byte, FrameSize)
		binary.LittleEndian.PutUint32(raw[0:4], effFlag|0x1234)
		_, err = MsgFromByteArray(raw)
		So(err, ShouldEqual, ErrUnsupportedMsg)
	})

	Convey("Pot board IDs survive the node/command split", t, func() {
		for id := uint32(0x301); id <= 0x306; id++ {
			msg := MsgFromArbitrationID(id, nil)
			So(msg.ArbitrationID(), ShouldEqual, id)
		}
	})
}

func BenchmarkCANMsg_ToByteArray(b *testing.B) {
	msg := &CANMsg{
		ID:   0x3f,
		Cmd:  0x0C,
		Data: make([]byte, 8),
	}
	binary.LittleEndian.PutUint32(msg.Data, 0x0001)

	for n := 0; n < b.N; n++ {
		msg.ToByteArray()
	}
}

func BenchmarkMsgFromByteArray(b *testing.B) {
	msg := &CANMsg{
		ID:   0x3f,
		Data: make([]byte, 8),
	}
	raw, _ := msg.ToByteArray()

	for n := 0; n < b.N; n++ {
		MsgFromByteArray(raw)
	}
}
