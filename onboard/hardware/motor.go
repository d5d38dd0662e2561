package hardware

// MotorInterface is the command set the control plane drives. Joints are
// addressed by their index in the joint table, not by node ID.
type MotorInterface interface {
	Joints() int
	BroadcastAxisState(state uint32) error
	SetPosition(joint int, pos float32) error
	SetTargets(targets []float32) error
	SetOffsets(offsets []float64)
	Stop() error
}
