package state

import (
	stderrors "errors"
	"sync"
	"testing"

	gwerrors "github.com/CodedInternet/gateway/onboard/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given an empty store", t, func() {
		s := NewStore()

		Convey("missing keys report not found", func() {
			_, err := Get[int](s, "nope")
			So(err, ShouldResemble, gwerrors.KeyNotFoundError{Key: "nope"})
			So(s.TypeOf("nope"), ShouldEqual, KindMissing)
			So(s.Has("nope"), ShouldBeFalse)
		})

		Convey("values read back as the type they were written", func() {
			Set(s, "b", true)
			Set(s, "i", 42)
			Set(s, "d", 1.5)
			Set(s, "s", "hello")

			So(must(Get[bool](s, "b")), ShouldBeTrue)
			So(must(Get[int](s, "i")), ShouldEqual, 42)
			So(must(Get[float64](s, "d")), ShouldEqual, 1.5)
			So(must(Get[string](s, "s")), ShouldEqual, "hello")

			So(s.TypeOf("b"), ShouldEqual, KindBool)
			So(s.TypeOf("i"), ShouldEqual, KindInt)
			So(s.TypeOf("d"), ShouldEqual, KindDouble)
			So(s.TypeOf("s"), ShouldEqual, KindString)
		})

		Convey("reading the wrong type is a mismatch, never a coercion", func() {
			Set(s, "i", 1)
			_, err := Get[bool](s, "i")
			var mismatch gwerrors.TypeMismatchError
			So(stderrors.As(err, &mismatch), ShouldBeTrue)
			So(mismatch.Have, ShouldEqual, "int")
			So(mismatch.Want, ShouldEqual, "bool")

			_, ok := TryGet[float64](s, "i")
			So(ok, ShouldBeFalse)
		})

		Convey("lifecycle values are distinct from ints", func() {
			Set(s, KeyState, Ready)
			So(s.TypeOf(KeyState), ShouldEqual, KindOther)
			_, err := Get[int](s, KeyState)
			So(err, ShouldNotBeNil)
			So(must(Get[Lifecycle](s, KeyState)), ShouldEqual, Ready)
			So(s.Snapshot()[KeyState], ShouldEqual, "READY")
		})

		Convey("swap returns the previous value", func() {
			Set(s, "i", 5)
			old, err := Swap(s, "i", 0)
			So(err, ShouldBeNil)
			So(old, ShouldEqual, 5)
			So(must(Get[int](s, "i")), ShouldEqual, 0)

			_, err = Swap(s, "missing", 1)
			So(err, ShouldNotBeNil)
		})

		Convey("keys are listed in order", func() {
			Set(s, "b", 1)
			Set(s, "a", 1)
			So(s.Keys(), ShouldResemble, []string{"a", "b"})
		})
	})

	Convey("Concurrent swaps never lose or duplicate a command", t, func() {
		s := NewStore()
		c := NewControls(s)

		var wg sync.WaitGroup
		var lock sync.Mutex
		taken := 0
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					if c.TakeCommand() != CmdNone {
						lock.Lock()
						taken++
						lock.Unlock()
					}
				}
			}()
		}
		c.PostCommand(CmdRun)
		wg.Wait()
		if c.TakeCommand() != CmdNone {
			taken++
		}
		So(taken, ShouldEqual, 1)
	})
}

func TestControls(t *testing.T) {
	Convey("Given fresh controls", t, func() {
		c := NewControls(NewStore())

		Convey("the well-known keys are seeded", func() {
			So(c.State(), ShouldEqual, Init)
			So(c.Finished(), ShouldBeFalse)
			So(c.PendingCommand(), ShouldEqual, CmdNone)
			So(c.TakePotEcho(), ShouldEqual, 0)
		})

		Convey("commands are consumed once", func() {
			c.PostCommand(CmdFullCalibration)
			So(c.TakeCommand(), ShouldEqual, CmdFullCalibration)
			So(c.TakeCommand(), ShouldEqual, CmdNone)
		})

		Convey("pot echo requests are consumed once", func() {
			c.RequestPotEcho(5)
			So(c.TakePotEcho(), ShouldEqual, 5)
			So(c.TakePotEcho(), ShouldEqual, 0)
		})

		Convey("shutdown sets fin", func() {
			c.Shutdown()
			So(c.Finished(), ShouldBeTrue)
		})
	})
}
