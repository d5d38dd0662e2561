package state

import "fmt"

// Lifecycle is the gateway's operating state.
type Lifecycle int

const (
	Init Lifecycle = iota
	Calibrated
	Ready
	Run
)

func (l Lifecycle) String() string {
	switch l {
	case Init:
		return "INIT"
	case Calibrated:
		return "CALIBRATED"
	case Ready:
		return "READY"
	case Run:
		return "RUN"
	}
	return fmt.Sprintf("Lifecycle(%d)", int(l))
}

// Command is an operator command code, posted through the store's cmd key.
type Command int

const (
	CmdNone            Command = 0
	CmdFullCalibration Command = 1
	CmdClosedLoop      Command = 2
	CmdZeroCalibration Command = 3
	CmdRun             Command = 6
	CmdPause           Command = 7
	CmdEmergencyStop   Command = 8
)

func (c Command) String() string {
	switch c {
	case CmdNone:
		return "none"
	case CmdFullCalibration:
		return "full-calibration"
	case CmdClosedLoop:
		return "closed-loop"
	case CmdZeroCalibration:
		return "zero-calibration"
	case CmdRun:
		return "run"
	case CmdPause:
		return "pause"
	case CmdEmergencyStop:
		return "emergency-stop"
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Action is the side effect the dispatcher performs before committing a transition.
type Action int

const (
	ActNone Action = iota
	ActFullCalibration
	ActClosedLoop
	ActZeroCalibration
	ActEmergencyStop
)

func (a Action) String() string {
	switch a {
	case ActNone:
		return "none"
	case ActFullCalibration:
		return "axis-full-calibration"
	case ActClosedLoop:
		return "axis-closed-loop"
	case ActZeroCalibration:
		return "zero-calibration"
	case ActEmergencyStop:
		return "axis-idle"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

type Transition struct {
	From   Lifecycle
	Cmd    Command
	Action Action
	To     Lifecycle
}

type edge struct {
	from Lifecycle
	cmd  Command
}

var transitions = map[edge]Transition{
	{Init, CmdFullCalibration}:       {Init, CmdFullCalibration, ActFullCalibration, Calibrated},
	{Calibrated, CmdClosedLoop}:      {Calibrated, CmdClosedLoop, ActClosedLoop, Calibrated},
	{Calibrated, CmdZeroCalibration}: {Calibrated, CmdZeroCalibration, ActZeroCalibration, Ready},
	{Ready, CmdRun}:                  {Ready, CmdRun, ActNone, Run},
	{Run, CmdPause}:                  {Run, CmdPause, ActNone, Ready},
}

// Next looks up the transition for cmd issued in from. Emergency stop is
// accepted in every state. ok is false when the command is ignored.
func Next(from Lifecycle, cmd Command) (t Transition, ok bool) {
	if cmd == CmdEmergencyStop {
		return Transition{from, cmd, ActEmergencyStop, Init}, true
	}
	t, ok = transitions[edge{from, cmd}]
	return
}
