// Package input turns parsed commands into events on the X server
package input

import (
	"errors"
	"fmt"

	"github.com/tleino/xin/internal/display"
	"github.com/tleino/xin/internal/protocol"
)

var (
	// ErrNoKeycode is returned when a keysym is not mapped to any keycode
	ErrNoKeycode = errors.New("couldn't find keycode for a keysym")
	// ErrNoPointer is returned when the initial pointer position is unknown
	ErrNoPointer = errors.New("couldn't query pointer position")
	// ErrUnsupported is returned for commands the engine does not handle
	ErrUnsupported = errors.New("unsupported command")
)

// KeyInjector delivers key events using one injection method.
type KeyInjector interface {
	InjectKey(ev protocol.KeyEvent) error
}

// Engine injects key, button and motion commands into one X session.
// It owns the pointer state and, for direct delivery, the modifier state.
type Engine struct {
	session display.Session
	method  Method
	keys    KeyInjector
	pointer pointerState
}

// NewEngine creates an engine using the given injection method
func NewEngine(session display.Session, method Method) *Engine {
	e := &Engine{
		session: session,
		method:  method,
	}
	switch method {
	case MethodSendEvent:
		e.keys = newSendEventInjector(session)
	default:
		e.keys = newXTestInjector(session)
	}
	return e
}

// Method returns the injection method chosen at construction
func (e *Engine) Method() Method {
	return e.method
}

// Apply dispatches a key, button or motion command
func (e *Engine) Apply(cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.KeyEvent:
		return e.Key(c)
	case protocol.ButtonEvent:
		return e.Button(c)
	case protocol.MotionEvent:
		return e.Motion(c)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupported, cmd)
	}
}

// Key injects a key press or release
func (e *Engine) Key(ev protocol.KeyEvent) error {
	return e.keys.InjectKey(ev)
}

// Button injects a pointer button press or release through XTEST
func (e *Engine) Button(ev protocol.ButtonEvent) error {
	if err := e.session.FakeButton(ev.Button, ev.Action == protocol.Press); err != nil {
		return fmt.Errorf("button %d: %w", ev.Button, err)
	}
	return e.session.Flush()
}

// Motion moves the pointer against the reported delta
func (e *Engine) Motion(ev protocol.MotionEvent) error {
	if !e.pointer.valid {
		pos, err := e.session.QueryPointer()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoPointer, err)
		}
		e.pointer.reset(pos)
	}

	size, err := e.session.ScreenSize()
	if err != nil {
		return err
	}

	next := e.pointer.moved(ev.DeltaX, ev.DeltaY, size)
	if err := e.session.FakeMotion(next.X, next.Y); err != nil {
		return fmt.Errorf("motion: %w", err)
	}
	e.pointer.pos = next
	return e.session.Flush()
}

// Pointer returns the tracked pointer position and whether it is known yet
func (e *Engine) Pointer() (display.Point, bool) {
	return e.pointer.pos, e.pointer.valid
}

// resolveKeycode returns the keycode for ev, translating a keysym through
// the current keyboard mapping when no raw keycode was given.
func resolveKeycode(session display.Session, ev protocol.KeyEvent) (display.Keycode, error) {
	if ev.Raw() {
		return display.Keycode(ev.Keycode), nil
	}
	code, ok := session.KeysymToKeycode(display.Keysym(ev.Keysym))
	if !ok {
		return 0, fmt.Errorf("%w: keysym %d", ErrNoKeycode, ev.Keysym)
	}
	return code, nil
}
