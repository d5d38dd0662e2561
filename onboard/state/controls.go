package state

// Keys shared by every loop and by the text command surface.
const (
	KeyCmd   = "cmd"
	KeyState = "system_state"
	KeyFin   = "fin"
	KeyPot   = "pot"
)

// Controls is the typed view of the well-known keys. The underlying store
// stays reachable so operators can inject values by name.
type Controls struct {
	store *Store
}

// NewControls seeds the well-known keys: not finished, no pending command,
// lifecycle INIT and no pot echo requested.
func NewControls(s *Store) *Controls {
	Set(s, KeyFin, false)
	Set(s, KeyCmd, int(CmdNone))
	Set(s, KeyState, Init)
	Set(s, KeyPot, 0)
	return &Controls{store: s}
}

func (c *Controls) Store() *Store {
	return c.store
}

// must panics on a store access error. The well-known keys are seeded with
// the right types and injection preserves types, so a failure here is a bug.
func must[T Scalar](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func (c *Controls) State() Lifecycle {
	return must(Get[Lifecycle](c.store, KeyState))
}

func (c *Controls) SetState(l Lifecycle) {
	Set(c.store, KeyState, l)
}

func (c *Controls) Finished() bool {
	return must(Get[bool](c.store, KeyFin))
}

func (c *Controls) Shutdown() {
	Set(c.store, KeyFin, true)
}

// PostCommand overwrites any pending command.
func (c *Controls) PostCommand(cmd Command) {
	Set(c.store, KeyCmd, int(cmd))
}

// TakeCommand consumes the pending command, leaving CmdNone behind.
func (c *Controls) TakeCommand() Command {
	return Command(must(Swap(c.store, KeyCmd, int(CmdNone))))
}

func (c *Controls) PendingCommand() Command {
	return Command(must(Get[int](c.store, KeyCmd)))
}

// TakePotEcho consumes a pending pot echo request, returning how many
// seconds of pot frames should be echoed to the log.
func (c *Controls) TakePotEcho() int {
	return must(Swap(c.store, KeyPot, 0))
}

func (c *Controls) RequestPotEcho(seconds int) {
	Set(c.store, KeyPot, seconds)
}
