package input

import (
	"fmt"
	"strings"
)

// Method selects how key events reach the X server
type Method int

const (
	// MethodXTest injects through the XTEST extension. Events honour grabs
	// and look like real hardware input.
	MethodXTest Method = iota
	// MethodSendEvent delivers key events straight to the focused window.
	MethodSendEvent
)

// ParseMethod parses a method name as used in the configuration file
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xtest":
		return MethodXTest, nil
	case "sendevent":
		return MethodSendEvent, nil
	default:
		return MethodXTest, fmt.Errorf("unknown input method %q (want xtest or sendevent)", s)
	}
}

func (m Method) String() string {
	switch m {
	case MethodXTest:
		return "xtest"
	case MethodSendEvent:
		return "sendevent"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}
