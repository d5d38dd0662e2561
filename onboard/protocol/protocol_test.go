package protocol

import (
	"testing"

	"github.com/CodedInternet/gateway/onboard/samples"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSensorQuery(t *testing.T) {
	Convey("A six byte POTQ decodes", t, func() {
		q, ok := DecodeSensorQuery([]byte{'P', 'O', 'T', 'Q', 0x07, 0x2A})
		So(ok, ShouldBeTrue)
		So(q, ShouldResemble, SensorQuery{Group: 7, Request: 42})
		So(q.Encode(), ShouldResemble, []byte("POTQ\x07\x2A"))
	})

	Convey("Short or foreign datagrams are dropped", t, func() {
		_, ok := DecodeSensorQuery([]byte("POTQ\x07"))
		So(ok, ShouldBeFalse)
		_, ok = DecodeSensorQuery([]byte("POTX\x07\x2A"))
		So(ok, ShouldBeFalse)
	})
}

func TestSensorReply(t *testing.T) {
	Convey("Given a matrix answering group 7 request 42", t, func() {
		var m samples.Matrix
		for i := 0; i < samples.Channels; i++ {
			m.SetChannel(i, uint16(100+i))
		}
		b := ReplyFromMatrix(SensorQuery{Group: 7, Request: 42}, m).Encode()

		Convey("the header and length are exact", func() {
			So(b, ShouldHaveLength, 7+3*18)
			So(b[:7], ShouldResemble, []byte{'P', 'O', 'T', 'R', 7, 42, 18})
		})

		Convey("every channel is encoded in order", func() {
			So(b[7:10], ShouldResemble, []byte{0, 100, 0})
			So(b[7+3*17:], ShouldResemble, []byte{17, 117, 0})
		})

		Convey("it decodes back", func() {
			r, ok := DecodeSensorReply(b)
			So(ok, ShouldBeTrue)
			So(r.Channels, ShouldHaveLength, 18)
			So(r.Channels[5], ShouldResemble, ChannelValue{Index: 5, Value: 105})

			_, ok = DecodeSensorReply(b[:len(b)-1])
			So(ok, ShouldBeFalse)
		})
	})
}

func TestJointTargets(t *testing.T) {
	Convey("A UDJ1 datagram round trips", t, func() {
		var in JointTargets
		in.Seq = 9
		for i := range in.Angles {
			in.Angles[i] = float32(i) * 0.125
		}
		b := in.Encode()
		So(b, ShouldHaveLength, 72)
		So(string(b[:4]), ShouldEqual, "UDJ1")

		out, ok := DecodeJointTargets(b)
		So(ok, ShouldBeTrue)
		So(out, ShouldResemble, in)
	})

	Convey("Trailing bytes are tolerated, truncation is not", t, func() {
		b := JointTargets{}.Encode()
		_, ok := DecodeJointTargets(append(b, 0xFF))
		So(ok, ShouldBeTrue)
		_, ok = DecodeJointTargets(b[:71])
		So(ok, ShouldBeFalse)
	})
}

func TestControl(t *testing.T) {
	Convey("CTRL carries a command code", t, func() {
		c, ok := DecodeControl(Control{Code: 8}.Encode())
		So(ok, ShouldBeTrue)
		So(c.Code, ShouldEqual, 8)

		_, ok = DecodeControl([]byte("CTRL\x08"))
		So(ok, ShouldBeFalse)
	})
}
