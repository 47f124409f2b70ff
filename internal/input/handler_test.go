package input

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tleino/xin/internal/display"
	"github.com/tleino/xin/internal/protocol"
)

type fakeKey struct {
	code  display.Keycode
	press bool
}

type fakeButton struct {
	button uint8
	press  bool
}

// fakeSession records every request the engine makes.
type fakeSession struct {
	keymap     map[display.Keysym]display.Keycode
	symMods    map[display.Keysym]uint16
	codeMods   map[display.Keycode]uint16
	pointer    display.Point
	pointerErr error
	size       display.Size
	focus      display.Window
	focusErr   error
	noXTest    bool

	keys    []fakeKey
	buttons []fakeButton
	motions []display.Point
	sent    []display.KeyEvent
	queries int
	flushes int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		keymap: map[display.Keysym]display.Keycode{
			0x41:   38, // A
			0xffe1: 50, // Shift_L
		},
		symMods:  map[display.Keysym]uint16{0xffe1: display.ShiftMask},
		codeMods: map[display.Keycode]uint16{50: display.ShiftMask, 37: display.ControlMask},
		pointer:  display.Point{X: 100, Y: 100},
		size:     display.Size{Width: 800, Height: 600},
		focus:    0x400001,
	}
}

func (f *fakeSession) KeysymToKeycode(sym display.Keysym) (display.Keycode, bool) {
	code, ok := f.keymap[sym]
	return code, ok
}

func (f *fakeSession) KeysymModifiers(sym display.Keysym) uint16 { return f.symMods[sym] }

func (f *fakeSession) KeycodeModifiers(code display.Keycode) uint16 { return f.codeMods[code] }

func (f *fakeSession) FakeKey(code display.Keycode, press bool) error {
	if f.noXTest {
		return display.ErrNoXTest
	}
	f.keys = append(f.keys, fakeKey{code: code, press: press})
	return nil
}

func (f *fakeSession) FakeButton(button uint8, press bool) error {
	if f.noXTest {
		return display.ErrNoXTest
	}
	f.buttons = append(f.buttons, fakeButton{button: button, press: press})
	return nil
}

func (f *fakeSession) FakeMotion(x, y int) error {
	if f.noXTest {
		return display.ErrNoXTest
	}
	f.motions = append(f.motions, display.Point{X: x, Y: y})
	return nil
}

func (f *fakeSession) QueryPointer() (display.Point, error) {
	f.queries++
	return f.pointer, f.pointerErr
}

func (f *fakeSession) ScreenSize() (display.Size, error) { return f.size, nil }

func (f *fakeSession) InputFocus() (display.Window, error) { return f.focus, f.focusErr }

func (f *fakeSession) Root() display.Window { return 0x100 }

func (f *fakeSession) SendKey(ev display.KeyEvent) error {
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeSession) Flush() error {
	f.flushes++
	return nil
}

func TestEngineXTestKeys(t *testing.T) {
	tests := []struct {
		name    string
		ev      protocol.KeyEvent
		want    []fakeKey
		wantErr error
	}{
		{
			name: "keysym is translated",
			ev:   protocol.KeyEvent{Action: protocol.Press, Keysym: 0x41},
			want: []fakeKey{{code: 38, press: true}},
		},
		{
			name: "release",
			ev:   protocol.KeyEvent{Action: protocol.Release, Keysym: 0x41},
			want: []fakeKey{{code: 38, press: false}},
		},
		{
			name: "raw keycode is used verbatim",
			ev:   protocol.KeyEvent{Action: protocol.Press, Keycode: 200},
			want: []fakeKey{{code: 200, press: true}},
		},
		{
			name:    "unmapped keysym injects nothing",
			ev:      protocol.KeyEvent{Action: protocol.Press, Keysym: 0x1234},
			wantErr: ErrNoKeycode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSession()
			e := NewEngine(s, MethodXTest)

			err := e.Apply(tt.ev)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, s.keys)
				assert.Zero(t, s.flushes)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.keys)
			assert.Equal(t, 1, s.flushes)
		})
	}
}

func TestEngineSendEventModifiers(t *testing.T) {
	s := newFakeSession()
	e := NewEngine(s, MethodSendEvent)
	tracker := &e.keys.(*sendEventInjector).modifiers

	require.NoError(t, e.Key(protocol.KeyEvent{Action: protocol.Press, Keysym: 0xffe1}))
	assert.Equal(t, display.ShiftMask, tracker.State())

	require.NoError(t, e.Key(protocol.KeyEvent{Action: protocol.Press, Keysym: 0x41}))
	require.NoError(t, e.Key(protocol.KeyEvent{Action: protocol.Release, Keysym: 0x41}))
	assert.Equal(t, display.ShiftMask, tracker.State())

	require.NoError(t, e.Key(protocol.KeyEvent{Action: protocol.Release, Keysym: 0xffe1}))
	assert.Zero(t, tracker.State())

	require.Len(t, s.sent, 4)
	assert.Equal(t, display.KeyEvent{Keycode: 50, Press: true, Window: 0x400001, State: display.ShiftMask}, s.sent[0])
	assert.Equal(t, display.KeyEvent{Keycode: 38, Press: true, Window: 0x400001, State: display.ShiftMask}, s.sent[1])
	assert.Equal(t, display.KeyEvent{Keycode: 50, Press: false, Window: 0x400001, State: 0}, s.sent[3])
	assert.Empty(t, s.keys, "direct delivery must not use XTEST for keys")
	assert.Equal(t, 4, s.flushes)
}

func TestEngineSendEventRawKeycode(t *testing.T) {
	s := newFakeSession()
	e := NewEngine(s, MethodSendEvent)

	require.NoError(t, e.Key(protocol.KeyEvent{Action: protocol.Press, Keycode: 37}))

	require.Len(t, s.sent, 1)
	assert.Equal(t, display.Keycode(37), s.sent[0].Keycode)
	assert.Equal(t, display.ControlMask, s.sent[0].State)
}

func TestEngineSendEventFocusFallback(t *testing.T) {
	tests := []struct {
		name     string
		focusErr error
		wantErr  bool
	}{
		{name: "no focus targets root", focusErr: display.ErrNoFocus},
		{name: "wrapped no focus targets root", focusErr: errors.Join(display.ErrNoFocus, errors.New("reply"))},
		{name: "broken connection is reported", focusErr: display.ErrClosed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSession()
			s.focusErr = tt.focusErr
			e := NewEngine(s, MethodSendEvent)

			err := e.Key(protocol.KeyEvent{Action: protocol.Press, Keysym: 0x41})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, s.sent)
				return
			}
			require.NoError(t, err)
			require.Len(t, s.sent, 1)
			assert.Equal(t, display.Window(0x100), s.sent[0].Window)
		})
	}
}

func TestEngineSendEventPointerRootFocus(t *testing.T) {
	s := newFakeSession()
	s.focus = display.FocusWindow
	e := NewEngine(s, MethodSendEvent)

	require.NoError(t, e.Key(protocol.KeyEvent{Action: protocol.Press, Keysym: 0x41}))
	require.Len(t, s.sent, 1)
	assert.Equal(t, display.FocusWindow, s.sent[0].Window)
}

func TestEngineSendEventUnmappedKeysym(t *testing.T) {
	s := newFakeSession()
	e := NewEngine(s, MethodSendEvent)

	err := e.Key(protocol.KeyEvent{Action: protocol.Press, Keysym: 0x1234})
	assert.ErrorIs(t, err, ErrNoKeycode)
	assert.Empty(t, s.sent)
	assert.Zero(t, e.keys.(*sendEventInjector).modifiers.State())
}

func TestEngineButtons(t *testing.T) {
	for _, method := range []Method{MethodXTest, MethodSendEvent} {
		t.Run(method.String(), func(t *testing.T) {
			s := newFakeSession()
			e := NewEngine(s, method)

			require.NoError(t, e.Apply(protocol.ButtonEvent{Action: protocol.Press, Button: 1}))
			require.NoError(t, e.Apply(protocol.ButtonEvent{Action: protocol.Release, Button: 1}))

			assert.Equal(t, []fakeButton{{button: 1, press: true}, {button: 1, press: false}}, s.buttons)
			assert.Equal(t, 2, s.flushes)
		})
	}
}

func TestEngineWithoutXTest(t *testing.T) {
	s := newFakeSession()
	s.noXTest = true
	e := NewEngine(s, MethodSendEvent)

	assert.ErrorIs(t, e.Apply(protocol.ButtonEvent{Action: protocol.Press, Button: 3}), display.ErrNoXTest)
	assert.ErrorIs(t, e.Apply(protocol.MotionEvent{DeltaX: 1, DeltaY: 1}), display.ErrNoXTest)

	// Keys still work through SendEvent.
	require.NoError(t, e.Apply(protocol.KeyEvent{Action: protocol.Press, Keysym: 0x41}))
	assert.Len(t, s.sent, 1)

	// A failed motion leaves the baseline untouched.
	pos, valid := e.Pointer()
	assert.True(t, valid)
	assert.Equal(t, display.Point{X: 100, Y: 100}, pos)
}

func TestEngineMotion(t *testing.T) {
	tests := []struct {
		name   string
		deltas [][2]int
		want   []display.Point
	}{
		{
			name:   "delta is subtracted",
			deltas: [][2]int{{5, 5}},
			want:   []display.Point{{X: 95, Y: 95}},
		},
		{
			name:   "moves accumulate",
			deltas: [][2]int{{10, -10}, {-20, 30}},
			want:   []display.Point{{X: 90, Y: 110}, {X: 110, Y: 80}},
		},
		{
			name:   "clamped at zero",
			deltas: [][2]int{{1000, 1000}},
			want:   []display.Point{{X: 0, Y: 0}},
		},
		{
			name:   "clamped at screen size",
			deltas: [][2]int{{-5000, -5000}},
			want:   []display.Point{{X: 800, Y: 600}},
		},
		{
			name:   "extreme deltas clamp to the edges",
			deltas: [][2]int{{math.MinInt32, math.MaxInt32}, {math.MaxInt32, math.MinInt32}},
			want:   []display.Point{{X: 800, Y: 0}, {X: 0, Y: 600}},
		},
		{
			name:   "recovers from the edge",
			deltas: [][2]int{{1000, 0}, {-3, 0}},
			want:   []display.Point{{X: 0, Y: 100}, {X: 3, Y: 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSession()
			e := NewEngine(s, MethodXTest)

			for _, d := range tt.deltas {
				require.NoError(t, e.Apply(protocol.MotionEvent{DeltaX: d[0], DeltaY: d[1]}))
			}
			assert.Equal(t, tt.want, s.motions)
			assert.Equal(t, 1, s.queries, "pointer is queried once")

			pos, valid := e.Pointer()
			assert.True(t, valid)
			assert.Equal(t, tt.want[len(tt.want)-1], pos)
		})
	}
}

func TestEngineMotionScreenResize(t *testing.T) {
	s := newFakeSession()
	e := NewEngine(s, MethodXTest)

	require.NoError(t, e.Motion(protocol.MotionEvent{DeltaX: -1000, DeltaY: -1000}))
	s.size = display.Size{Width: 1920, Height: 1080}
	require.NoError(t, e.Motion(protocol.MotionEvent{DeltaX: -2000, DeltaY: -2000}))

	assert.Equal(t, []display.Point{{X: 800, Y: 600}, {X: 1920, Y: 1080}}, s.motions)
}

func TestEngineMotionPointerQueryFailure(t *testing.T) {
	s := newFakeSession()
	s.pointerErr = errors.New("bad window")
	e := NewEngine(s, MethodXTest)

	err := e.Motion(protocol.MotionEvent{DeltaX: 1, DeltaY: 1})
	assert.ErrorIs(t, err, ErrNoPointer)
	assert.Empty(t, s.motions)
	_, valid := e.Pointer()
	assert.False(t, valid)

	// The next motion retries the query.
	s.pointerErr = nil
	require.NoError(t, e.Motion(protocol.MotionEvent{DeltaX: 1, DeltaY: 1}))
	assert.Equal(t, []display.Point{{X: 99, Y: 99}}, s.motions)
	assert.Equal(t, 2, s.queries)
}

func TestEngineRejectsLayoutChange(t *testing.T) {
	e := NewEngine(newFakeSession(), MethodXTest)
	assert.ErrorIs(t, e.Apply(protocol.LayoutChange{Name: "us"}), ErrUnsupported)
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{in: "", want: MethodXTest},
		{in: "xtest", want: MethodXTest},
		{in: "SendEvent", want: MethodSendEvent},
		{in: "uinput", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Method {
	t.Helper()
	m, err := ParseMethod(s)
	require.NoError(t, err)
	return m
}

func TestModifierTracker(t *testing.T) {
	var m ModifierTracker
	assert.Equal(t, display.ShiftMask, m.Update(display.ShiftMask, true))
	assert.Equal(t, display.ShiftMask|display.ControlMask, m.Update(display.ControlMask, true))
	assert.Equal(t, display.ControlMask, m.Update(display.ShiftMask, false))
	assert.Equal(t, display.ControlMask, m.Update(0, true))
	assert.Zero(t, m.Update(display.ControlMask, false))
}
