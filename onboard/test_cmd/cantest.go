// Command cantest pokes a single motor controller: it requests an axis state and,
// optionally, a position, then prints the encoder estimates that come back.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/CodedInternet/gateway/onboard/canbus"
	"github.com/CodedInternet/gateway/onboard/hardware"
)

func main() {
	ifname := flag.String("i", "can0", "CAN interface")
	node := flag.Uint("node", 1, "motor controller node id")
	state := flag.Uint("state", hardware.AXIS_STATE_CLOSED_LOOP_CONTROL, "axis state to request")
	pos := flag.Float64("pos", 0, "input position in turns, sent in closed loop only")
	wait := flag.Duration("wait", time.Second, "how long to print encoder estimates")
	flag.Parse()

	bus, err := canbus.Open(*ifname)()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer bus.Close()

	motors := hardware.NewMotors(bus, []uint32{uint32(*node)})
	if err := motors.BroadcastAxisState(uint32(*state)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *state == hardware.AXIS_STATE_CLOSED_LOOP_CONTROL {
		if err := motors.SetPosition(0, float32(*pos)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		msg, err := bus.ReadMsg()
		if err == canbus.ErrWouldBlock || err == canbus.ErrUnsupportedMsg {
			time.Sleep(time.Millisecond)
			continue
		} else if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if e, ok := hardware.DecodeEncoderEstimate(msg); ok && e.Node == uint32(*node) {
			fmt.Printf("node %d pos=%.4f vel=%.4f\n", e.Node, e.Pos, e.Vel)
		}
	}
}
