package input

import (
	"errors"

	"github.com/tleino/xin/internal/display"
	"github.com/tleino/xin/internal/logger"
	"github.com/tleino/xin/internal/protocol"
)

// xtestInjector presses keys through XTEST.
type xtestInjector struct {
	session display.Session
}

func newXTestInjector(session display.Session) *xtestInjector {
	return &xtestInjector{session: session}
}

func (i *xtestInjector) InjectKey(ev protocol.KeyEvent) error {
	code, err := resolveKeycode(i.session, ev)
	if err != nil {
		return err
	}
	if err := i.session.FakeKey(code, ev.Action == protocol.Press); err != nil {
		return err
	}
	return i.session.Flush()
}

// ModifierTracker keeps the modifier mask reported in synthetic key events.
type ModifierTracker struct {
	state uint16
}

// Update sets the mask bits on press and clears them on release, then
// returns the new state.
func (t *ModifierTracker) Update(mask uint16, press bool) uint16 {
	if press {
		t.state |= mask
	} else {
		t.state &^= mask
	}
	return t.state
}

// State returns the current modifier mask.
func (t *ModifierTracker) State() uint16 {
	return t.state
}

// sendEventInjector sends key events to the focused window with SendEvent.
type sendEventInjector struct {
	session   display.Session
	modifiers ModifierTracker
}

func newSendEventInjector(session display.Session) *sendEventInjector {
	return &sendEventInjector{session: session}
}

func (i *sendEventInjector) InjectKey(ev protocol.KeyEvent) error {
	focus, err := i.session.InputFocus()
	if err != nil {
		if !errors.Is(err, display.ErrNoFocus) {
			return err
		}
		logger.Warn("no input focus; sending events to root window", "error", err)
		focus = i.session.Root()
	}

	code, err := resolveKeycode(i.session, ev)
	if err != nil {
		return err
	}

	var mask uint16
	if ev.Raw() {
		mask = i.session.KeycodeModifiers(code)
	} else {
		mask = i.session.KeysymModifiers(display.Keysym(ev.Keysym))
	}

	press := ev.Action == protocol.Press
	state := i.modifiers.Update(mask, press)

	if err := i.session.SendKey(display.KeyEvent{
		Keycode: code,
		Press:   press,
		Window:  focus,
		State:   state,
	}); err != nil {
		return err
	}
	return i.session.Flush()
}
