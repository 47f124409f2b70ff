// Package display talks to the X server on behalf of the injector and the
// layout switcher.
package display

import (
	"errors"
	"fmt"
)

type (
	// Keysym is an X keysym value.
	Keysym uint32
	// Keycode is a physical key number on the X server, 8..255 in practice.
	Keycode uint8
	// Window is an X window id.
	Window uint32
)

// Modifier mask bits as they appear in the state field of key events.
const (
	ShiftMask   uint16 = 1 << 0
	LockMask    uint16 = 1 << 1
	ControlMask uint16 = 1 << 2
	Mod1Mask    uint16 = 1 << 3
	Mod2Mask    uint16 = 1 << 4
	Mod3Mask    uint16 = 1 << 5
	Mod4Mask    uint16 = 1 << 6
	Mod5Mask    uint16 = 1 << 7
)

// FocusWindow is the SendEvent destination meaning whichever window holds
// the input focus at delivery time.
const FocusWindow Window = 1

// Mapping notify request kinds.
const (
	MappingModifier uint8 = 0
	MappingKeyboard uint8 = 1
	MappingPointer  uint8 = 2
)

var (
	// ErrNoDisplay is returned when the X server cannot be reached
	ErrNoDisplay = errors.New("cannot open display")
	// ErrNoXTest is returned by fake input requests when the server lacks XTEST
	ErrNoXTest = errors.New("XTEST extension not available")
	// ErrClosed is returned when the connection to the X server went away
	ErrClosed = errors.New("display connection closed")
	// ErrNoFocus is returned when no window holds the input focus
	ErrNoFocus = errors.New("no input focus")
)

// MappingNotify reports a change of the keyboard, modifier or pointer
// mapping on the server.
type MappingNotify struct {
	Request      uint8
	FirstKeycode Keycode
	Count        uint8
}

// Keyboard reports whether the keysym table changed.
func (m MappingNotify) Keyboard() bool {
	return m.Request == MappingKeyboard
}

func (m MappingNotify) String() string {
	kind := "pointer"
	switch m.Request {
	case MappingKeyboard:
		kind = "keyboard"
	case MappingModifier:
		kind = "modifier"
	}
	return fmt.Sprintf("mapping notify (%s, first=%d count=%d)", kind, m.FirstKeycode, m.Count)
}

// KeyEvent is a synthetic key event delivered with SendKey.
type KeyEvent struct {
	Keycode Keycode
	Press   bool
	// Window receives the event and is also reported as its event window.
	Window Window
	State  uint16
}

// Size is the dimension of a screen in pixels.
type Size struct {
	Width  int
	Height int
}

// Point is a position on the root window.
type Point struct {
	X int
	Y int
}

// Session is the part of an X connection the injector needs.
type Session interface {
	KeysymToKeycode(sym Keysym) (Keycode, bool)
	KeysymModifiers(sym Keysym) uint16
	KeycodeModifiers(code Keycode) uint16
	FakeKey(code Keycode, press bool) error
	FakeButton(button uint8, press bool) error
	FakeMotion(x, y int) error
	QueryPointer() (Point, error)
	ScreenSize() (Size, error)
	InputFocus() (Window, error)
	Root() Window
	SendKey(ev KeyEvent) error
	Flush() error
}

// MappingSource is the part of an X connection the layout switcher needs.
type MappingSource interface {
	KeycodeFor(name string) (Keycode, bool)
	GrabKey(code Keycode) error
	Sync() error
	PollMappingNotify() (MappingNotify, bool)
	WaitMappingNotify() (MappingNotify, error)
	RefreshMapping(ev MappingNotify) error
}
