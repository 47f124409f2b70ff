// Package protocol implements the xin line protocol: one command per line,
// space separated fields, newline terminated.
package protocol

import "fmt"

// Action tells whether a key or button goes down or up.
type Action int

const (
	Press Action = iota
	Release
)

func (a Action) String() string {
	if a == Press {
		return "press"
	}
	return "release"
}

// Command codes as they appear in the first column of a line.
const (
	CodeKeyPress      = 'k'
	CodeKeyRelease    = 'K'
	CodeButtonPress   = 'b'
	CodeButtonRelease = 'B'
	CodeMotion        = 'm'
	CodeLayout        = 'l'
)

// Command is one parsed protocol line. Exactly one of the concrete types
// below implements it.
type Command interface {
	command()
	fmt.Stringer
}

// KeyEvent presses or releases a key. Keycode is zero when the key was
// given by keysym and must be resolved against the current keyboard map.
type KeyEvent struct {
	Action  Action
	Keysym  uint32
	Keycode uint8
}

// Raw reports whether the event names an explicit keycode.
func (e KeyEvent) Raw() bool {
	return e.Keycode != 0
}

func (e KeyEvent) String() string {
	if e.Raw() {
		return fmt.Sprintf("key %s keycode=%d", e.Action, e.Keycode)
	}
	return fmt.Sprintf("key %s keysym=%#x", e.Action, e.Keysym)
}

// ButtonEvent presses or releases a pointer button.
type ButtonEvent struct {
	Action Action
	Button uint8
}

func (e ButtonEvent) String() string {
	return fmt.Sprintf("button %s %d", e.Action, e.Button)
}

// MotionEvent moves the pointer. Positive deltas move toward the origin.
type MotionEvent struct {
	DeltaX int
	DeltaY int
}

func (e MotionEvent) String() string {
	return fmt.Sprintf("motion dx=%d dy=%d", e.DeltaX, e.DeltaY)
}

// LayoutChange asks for a keyboard layout switch. Name is not validated by
// the parser beyond being non-empty.
type LayoutChange struct {
	Name string
}

func (e LayoutChange) String() string {
	return fmt.Sprintf("layout %q", e.Name)
}

func (KeyEvent) command()     {}
func (ButtonEvent) command()  {}
func (MotionEvent) command()  {}
func (LayoutChange) command() {}
