package display

import "fmt"

// Capability is one line of a display capability report.
type Capability struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// Report describes what the connected server offers to xin.
type Report struct {
	Display      string       `json:"display"`
	Vendor       string       `json:"vendor"`
	Capabilities []Capability `json:"capabilities"`
}

// Probe gathers a capability report. Failing queries are reported as
// unavailable capabilities rather than errors.
func (x *X11) Probe() Report {
	setup := x.xu.Setup()
	r := Report{
		Display: x.name,
		Vendor:  setup.Vendor,
	}

	xtestDetail := "fake input unavailable; use -s"
	if major, minor, err := x.XTestVersion(); err == nil {
		xtestDetail = fmt.Sprintf("version %d.%d", major, minor)
	}
	r.add("XTEST", x.xtest, xtestDetail)

	xkb, err := x.HasExtension("XKEYBOARD")
	r.add("XKEYBOARD", err == nil && xkb, errDetail(err, "needed by setxkbmap"))

	lo, hi := x.minMaxKeycode()
	r.add("Keycodes", true, fmt.Sprintf("%d..%d", lo, hi))

	size, err := x.ScreenSize()
	r.add("Screen 0", err == nil, errDetail(err, fmt.Sprintf("%dx%d", size.Width, size.Height)))

	pos, err := x.QueryPointer()
	r.add("Pointer", err == nil, errDetail(err, fmt.Sprintf("%d,%d", pos.X, pos.Y)))

	focus, err := x.InputFocus()
	focusDetail := fmt.Sprintf("window 0x%x", uint32(focus))
	if focus == FocusWindow {
		focusDetail = "pointer root"
	}
	r.add("Input focus", err == nil, errDetail(err, focusDetail))

	code, ok := x.KeycodeFor("Super_L")
	r.add("Super_L", ok, fmt.Sprintf("keycode %d", code))

	return r
}

func (r *Report) add(name string, ok bool, detail string) {
	r.Capabilities = append(r.Capabilities, Capability{Name: name, OK: ok, Detail: detail})
}

// OK reports whether every capability is available.
func (r Report) OK() bool {
	for _, c := range r.Capabilities {
		if !c.OK {
			return false
		}
	}
	return true
}

func errDetail(err error, ok string) string {
	if err != nil {
		return err.Error()
	}
	return ok
}
