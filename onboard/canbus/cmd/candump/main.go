// Command candump prints every frame on a CAN interface, decoding the gateway's
// own traffic where it can.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/CodedInternet/gateway/onboard/canbus"
	"github.com/CodedInternet/gateway/onboard/hardware"
)

func main() {
	ifname := flag.String("i", "can0", "CAN interface")
	poll := flag.Duration("poll", time.Millisecond, "poll interval while the bus is quiet")
	flag.Parse()

	bus, err := canbus.Open(*ifname)()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer bus.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	fmt.Printf("Opening listener on %s\n", *ifname)
	start := time.Now()
	for {
		select {
		case <-sig:
			return
		default:
		}

		msg, err := bus.ReadMsg()
		switch err {
		case nil:
		case canbus.ErrWouldBlock:
			time.Sleep(*poll)
			continue
		case canbus.ErrUnsupportedMsg:
			continue
		default:
			fmt.Fprintln(os.Stderr, err)
			return
		}

		fmt.Printf("%10.6f 0x%03x [%d] %-24s %s\n",
			time.Since(start).Seconds(), msg.ArbitrationID(), len(msg.Data), hexBytes(msg.Data), describe(msg))
	}
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = fmt.Sprintf("%02x", b[i])
	}
	return strings.Join(parts, " ")
}

func describe(msg canbus.CANMsg) string {
	if r, ok := hardware.DecodePotMsg(msg); ok {
		return fmt.Sprintf("pots board=%d %v", r.Board, r.Values)
	}
	if e, ok := hardware.DecodeEncoderEstimate(msg); ok {
		return fmt.Sprintf("encoder node=%d pos=%.4f vel=%.4f", e.Node, e.Pos, e.Vel)
	}
	if node, state, ok := hardware.DecodeAxisState(msg); ok {
		return fmt.Sprintf("axis_state node=%d state=%d", node, state)
	}
	if node, pos, ok := hardware.DecodeInputPos(msg); ok {
		return fmt.Sprintf("input_pos node=%d pos=%.4f", node, pos)
	}
	return ""
}
