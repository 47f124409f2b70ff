package display

import (
	"fmt"
	"os"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"

	"github.com/tleino/xin/internal/logger"
)

// X11 is a connection to an X server. It is not safe for concurrent use.
type X11 struct {
	xu    *xgbutil.XUtil
	name  string
	root  xproto.Window
	xtest bool
}

// Open connects to the named display, or to $DISPLAY when name is empty.
// The keyboard and modifier maps are loaded and XTEST is initialised when
// the server offers it.
func Open(name string) (*X11, error) {
	if name == "" {
		name = os.Getenv("DISPLAY")
		if name == "" {
			return nil, fmt.Errorf("%w: X11 connection failed; DISPLAY environment variable not set?", ErrNoDisplay)
		}
	}

	xu, err := xgbutil.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("%w: failed X11 connection to '%s': %v", ErrNoDisplay, name, err)
	}

	x := &X11{
		xu:   xu,
		name: name,
		root: xu.Setup().Roots[0].Root,
	}
	if err := x.loadMaps(); err != nil {
		xu.Conn().Close()
		return nil, err
	}

	if err := xtest.Init(xu.Conn()); err != nil {
		logger.Debug("XTEST unavailable", "display", name, "error", err)
	} else {
		x.xtest = true
	}

	logger.Debug("Connected to X server", "display", name, "vendor", xu.Setup().Vendor)
	return x, nil
}

// Close shuts down the connection.
func (x *X11) Close() {
	x.xu.Conn().Close()
}

// Name returns the display name the connection was opened with.
func (x *X11) Name() string {
	return x.name
}

// Root returns the root window of screen 0.
func (x *X11) Root() Window {
	return Window(x.root)
}

// HasXTest reports whether fake input requests can be issued.
func (x *X11) HasXTest() bool {
	return x.xtest
}

// HasExtension asks the server whether it offers the named extension.
func (x *X11) HasExtension(name string) (bool, error) {
	reply, err := xproto.QueryExtension(x.xu.Conn(), uint16(len(name)), name).Reply()
	if err != nil {
		return false, err
	}
	return reply.Present, nil
}

// XTestVersion returns the XTEST version offered by the server.
func (x *X11) XTestVersion() (major, minor int, err error) {
	if !x.xtest {
		return 0, 0, ErrNoXTest
	}
	reply, err := xtest.GetVersion(x.xu.Conn(), 2, 2).Reply()
	if err != nil {
		return 0, 0, err
	}
	return int(reply.MajorVersion), int(reply.MinorVersion), nil
}

// loadMaps fetches the keyboard and modifier maps from the server and
// stores them in the keybind cache.
func (x *X11) loadMaps() error {
	setup := x.xu.Setup()
	conn := x.xu.Conn()

	keyMap, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode,
		byte(setup.MaxKeycode-setup.MinKeycode+1)).Reply()
	if err != nil {
		return fmt.Errorf("failed to get keyboard mapping: %w", err)
	}
	modMap, err := xproto.GetModifierMapping(conn).Reply()
	if err != nil {
		return fmt.Errorf("failed to get modifier mapping: %w", err)
	}

	keybind.KeyMapSet(x.xu, keyMap)
	keybind.ModMapSet(x.xu, modMap)
	return nil
}

// RefreshMapping reloads the cached maps after a keyboard or modifier
// mapping change. Pointer mapping changes are ignored.
func (x *X11) RefreshMapping(ev MappingNotify) error {
	if ev.Request == MappingPointer {
		return nil
	}
	logger.Debug("Refreshing keyboard mapping", "event", ev.String())
	return x.loadMaps()
}

func (x *X11) minMaxKeycode() (int, int) {
	setup := x.xu.Setup()
	return int(setup.MinKeycode), int(setup.MaxKeycode)
}

// KeysymToKeycode returns the first keycode producing sym, searching the
// first column of every keycode before moving to the next column.
func (x *X11) KeysymToKeycode(sym Keysym) (Keycode, bool) {
	if sym == 0 {
		return 0, false
	}
	keyMap := keybind.KeyMapGet(x.xu)
	if keyMap == nil {
		return 0, false
	}

	lo, hi := x.minMaxKeycode()
	for col := byte(0); col < keyMap.KeysymsPerKeycode; col++ {
		for kc := lo; kc <= hi; kc++ {
			if keybind.KeysymGet(x.xu, xproto.Keycode(kc), col) == xproto.Keysym(sym) {
				return Keycode(kc), true
			}
		}
	}
	return 0, false
}

// KeysymModifiers returns the modifier bits bound to any keycode that
// produces sym.
func (x *X11) KeysymModifiers(sym Keysym) uint16 {
	keyMap := keybind.KeyMapGet(x.xu)
	if keyMap == nil || sym == 0 {
		return 0
	}

	var mods uint16
	lo, hi := x.minMaxKeycode()
	for kc := lo; kc <= hi; kc++ {
		for col := byte(0); col < keyMap.KeysymsPerKeycode; col++ {
			if keybind.KeysymGet(x.xu, xproto.Keycode(kc), col) == xproto.Keysym(sym) {
				mods |= keybind.ModGet(x.xu, xproto.Keycode(kc))
				break
			}
		}
	}
	return mods
}

// KeycodeModifiers returns the modifier bit the keycode is bound to, if any.
func (x *X11) KeycodeModifiers(code Keycode) uint16 {
	if keybind.ModMapGet(x.xu) == nil {
		return 0
	}
	return keybind.ModGet(x.xu, xproto.Keycode(code))
}

// KeycodeFor looks up a keysym by name, "Super_L" for example, and returns
// its first keycode.
func (x *X11) KeycodeFor(name string) (Keycode, bool) {
	codes := keybind.StrToKeycodes(x.xu, name)
	if len(codes) == 0 {
		return 0, false
	}
	return Keycode(codes[0]), true
}

// FakeKey presses or releases a key through XTEST.
func (x *X11) FakeKey(code Keycode, press bool) error {
	if !x.xtest {
		return ErrNoXTest
	}
	typ := byte(xproto.KeyRelease)
	if press {
		typ = xproto.KeyPress
	}
	xtest.FakeInput(x.xu.Conn(), typ, byte(code), xproto.TimeCurrentTime,
		xproto.WindowNone, 0, 0, 0)
	return nil
}

// FakeButton presses or releases a pointer button through XTEST.
func (x *X11) FakeButton(button uint8, press bool) error {
	if !x.xtest {
		return ErrNoXTest
	}
	typ := byte(xproto.ButtonRelease)
	if press {
		typ = xproto.ButtonPress
	}
	xtest.FakeInput(x.xu.Conn(), typ, button, xproto.TimeCurrentTime,
		xproto.WindowNone, 0, 0, 0)
	return nil
}

// FakeMotion moves the pointer to an absolute position on screen 0.
func (x *X11) FakeMotion(px, py int) error {
	if !x.xtest {
		return ErrNoXTest
	}
	xtest.FakeInput(x.xu.Conn(), xproto.MotionNotify, 0, xproto.TimeCurrentTime,
		x.root, int16(px), int16(py), 0)
	return nil
}

// QueryPointer returns the pointer position relative to the root window.
func (x *X11) QueryPointer() (Point, error) {
	reply, err := xproto.QueryPointer(x.xu.Conn(), x.root).Reply()
	if err != nil {
		return Point{}, fmt.Errorf("failed to query pointer: %w", err)
	}
	return Point{X: int(reply.RootX), Y: int(reply.RootY)}, nil
}

// ScreenSize returns the current size of the root window.
func (x *X11) ScreenSize() (Size, error) {
	reply, err := xproto.GetGeometry(x.xu.Conn(), xproto.Drawable(x.root)).Reply()
	if err != nil {
		return Size{}, fmt.Errorf("failed to get root geometry: %w", err)
	}
	return Size{Width: int(reply.Width), Height: int(reply.Height)}, nil
}

// InputFocus returns the window holding the input focus. With a
// PointerRoot focus it returns FocusWindow so the server picks the window.
// ErrNoFocus is returned for None.
func (x *X11) InputFocus() (Window, error) {
	reply, err := xproto.GetInputFocus(x.xu.Conn()).Reply()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoFocus, err)
	}
	return focusTarget(reply.Focus)
}

func focusTarget(focus xproto.Window) (Window, error) {
	switch focus {
	case xproto.WindowNone:
		return 0, ErrNoFocus
	case xproto.InputFocusPointerRoot:
		return FocusWindow, nil
	}
	return Window(focus), nil
}

// SendKey delivers a synthetic key event to ev.Window with SendEvent.
func (x *X11) SendKey(ev KeyEvent) error {
	dest := xproto.Window(ev.Window)
	win, child := dest, dest
	if ev.Window == FocusWindow {
		dest = xproto.SendEventDestItemFocus
		win, child = x.root, xproto.WindowNone
	}

	kev := xproto.KeyPressEvent{
		Detail:     xproto.Keycode(ev.Keycode),
		Time:       xproto.TimeCurrentTime,
		Root:       x.root,
		Event:      win,
		Child:      child,
		State:      ev.State,
		SameScreen: true,
	}

	var (
		raw  []byte
		mask uint32
	)
	if ev.Press {
		raw = kev.Bytes()
		mask = xproto.EventMaskKeyPress
	} else {
		raw = xproto.KeyReleaseEvent(kev).Bytes()
		mask = xproto.EventMaskKeyRelease
	}

	xproto.SendEvent(x.xu.Conn(), false, dest, mask, string(raw))
	return nil
}

// GrabKey grabs code without modifiers on the root window.
func (x *X11) GrabKey(code Keycode) error {
	err := xproto.GrabKeyChecked(x.xu.Conn(), false, x.root, 0, xproto.Keycode(code),
		xproto.GrabModeSync, xproto.GrabModeAsync).Check()
	if err != nil {
		return fmt.Errorf("failed to grab keycode %d: %w", code, err)
	}
	return nil
}

// Sync waits until the server has processed every request sent so far.
// A failed round trip means the connection is gone.
func (x *X11) Sync() error {
	if _, err := xproto.GetInputFocus(x.xu.Conn()).Reply(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrClosed, err)
	}
	return nil
}

// Flush syncs with the server, then consumes whatever it queued meanwhile.
// Protocol errors of unchecked requests are logged and mapping changes are
// applied.
func (x *X11) Flush() error {
	if err := x.Sync(); err != nil {
		return err
	}
	for {
		ev, ok := x.PollMappingNotify()
		if !ok {
			return nil
		}
		if err := x.RefreshMapping(ev); err != nil {
			return err
		}
	}
}

// PollMappingNotify returns a queued mapping change without blocking. Other
// queued events are discarded.
func (x *X11) PollMappingNotify() (MappingNotify, bool) {
	for {
		ev, xerr := x.xu.Conn().PollForEvent()
		if ev == nil && xerr == nil {
			return MappingNotify{}, false
		}
		if m, ok := x.mappingNotify(ev, xerr); ok {
			return m, true
		}
	}
}

// WaitMappingNotify blocks until the server reports a mapping change.
// Other events are discarded.
func (x *X11) WaitMappingNotify() (MappingNotify, error) {
	for {
		ev, xerr := x.xu.Conn().WaitForEvent()
		if ev == nil && xerr == nil {
			return MappingNotify{}, ErrClosed
		}
		if m, ok := x.mappingNotify(ev, xerr); ok {
			return m, nil
		}
	}
}

func (x *X11) mappingNotify(ev xgb.Event, xerr xgb.Error) (MappingNotify, bool) {
	if xerr != nil {
		logger.Warn("X protocol error", "error", xerr.Error())
		return MappingNotify{}, false
	}

	var m xproto.MappingNotifyEvent
	switch e := ev.(type) {
	case xproto.MappingNotifyEvent:
		m = e
	default:
		logger.Debug("Ignoring X event", "event", ev.String())
		return MappingNotify{}, false
	}
	return MappingNotify{
		Request:      m.Request,
		FirstKeycode: Keycode(m.FirstKeycode),
		Count:        m.Count,
	}, true
}
