package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/pkg/errors"

	"github.com/CodedInternet/gateway/onboard"
	"github.com/CodedInternet/gateway/onboard/state"
)

// NewShell builds the operator console. Any line that is not a command is
// treated as key=value and injected into the store.
func NewShell(gw *onboard.Gateway) *ishell.Shell {
	shell := ishell.New()
	shell.Println("Gateway operator shell")
	shell.SetPrompt("gateway> ")

	shell.EOF(func(c *ishell.Context) {
		c.Stop()
	})

	shell.NotFound(func(c *ishell.Context) {
		line := strings.Join(c.RawArgs, " ")
		msg, err := injectLine(gw, line)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(msg)
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "show the lifecycle state and every store key",
		Func: func(c *ishell.Context) {
			c.Print(describeState(gw))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "cmd",
		Help: "cmd <code> - 1 full calibration, 2 closed loop, 3 zero calibration, 6 run, 7 pause, 8 stop",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("usage: cmd <code>"))
				return
			}
			code, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			gw.Controls().PostCommand(state.Command(code))
			c.Printf("posted %s\n", state.Command(code))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "emergency stop, idles every axis",
		Func: func(c *ishell.Context) {
			gw.Controls().PostCommand(state.CmdEmergencyStop)
			c.Println("emergency stop posted")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "pot",
		Help: "pot [seconds] - print the latest pot readings, optionally echo frames to the log",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 1 {
				secs, err := strconv.Atoi(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				gw.Controls().RequestPotEcho(secs)
			}
			m, ok := gw.Pots().Back()
			if !ok {
				c.Println("no pot readings yet")
				return
			}
			for i, v := range m.Flat() {
				c.Printf("%2d: %4d\n", i, v)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "history",
		Help: "list recent zero calibrations",
		Func: func(c *ishell.Context) {
			if gw.History() == nil {
				c.Println("calibration history disabled")
				return
			}
			runs, err := gw.History().Recent(10)
			if err != nil {
				c.Err(err)
				return
			}
			for _, run := range runs {
				c.Printf("#%d %s took %s converged %v pending %v\n",
					run.ID, run.Started.Format("2006-01-02 15:04:05"), run.Duration, run.Converged, run.Pending)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "quit",
		Help: "shut the gateway down",
		Func: func(c *ishell.Context) {
			gw.Controls().Shutdown()
			c.Stop()
		},
	})

	return shell
}

func injectLine(gw *onboard.Gateway, line string) (string, error) {
	key, err := state.Inject(gw.Store(), line)
	if err != nil {
		return "", err
	}
	v, _ := state.TryGet[int](gw.Store(), key)
	if key == state.KeyCmd {
		return fmt.Sprintf("posted %s", state.Command(v)), nil
	}
	return "set " + key, nil
}

func describeState(gw *onboard.Gateway) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", gw.Controls().State())
	snapshot := gw.Store().Snapshot()
	for _, k := range gw.Store().Keys() {
		fmt.Fprintf(&b, "  %s = %v\n", k, snapshot[k])
	}
	p := gw.Calibration()
	fmt.Fprintf(&b, "calibration: %s, %d/%d converged\n", p.Phase, p.Converged, p.Joints)
	fmt.Fprintf(&b, "offsets: %v\n", gw.Motors().Offsets())
	return b.String()
}
