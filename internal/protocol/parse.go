package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrParse is returned for lines that do not match any command form
	ErrParse = errors.New("invalid or incomplete format")
	// ErrUnknownCommand is returned for well formed lines with an unknown command code
	ErrUnknownCommand = errors.New("unknown control")
)

// Parse classifies a single line with its terminator already removed.
//
// The two field form "k 65" names a key by keysym. The three field form
// "k 0 38" names it by raw keycode and ignores the middle field. The two
// forms are kept distinct on purpose.
func Parse(line string) (Command, error) {
	if len(line) > 2 && line[0] == CodeLayout && isSeparator(line[1]) {
		return LayoutChange{Name: line[2:]}, nil
	}
	if line == "" {
		return nil, ErrParse
	}

	code := line[0]
	fields := strings.Fields(line[1:])

	switch len(fields) {
	case 1:
		if code != CodeKeyPress && code != CodeKeyRelease {
			return nil, fmt.Errorf("%w: %q", ErrParse, line)
		}
		sym, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: keysym %q", ErrParse, fields[0])
		}
		return KeyEvent{Action: keyAction(code), Keysym: uint32(sym)}, nil
	case 2:
		return parseTriple(line, code, fields[0], fields[1])
	default:
		return nil, fmt.Errorf("%w: %q", ErrParse, line)
	}
}

// parseTriple handles the three field forms. Numbers are limited to the
// 32-bit signed range.
func parseTriple(line string, code byte, first, second string) (Command, error) {
	n1, err := strconv.ParseInt(first, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrParse, line)
	}
	n2, err := strconv.ParseInt(second, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrParse, line)
	}
	v1, v2 := int(n1), int(n2)

	switch code {
	case CodeMotion:
		return MotionEvent{DeltaX: v1, DeltaY: v2}, nil
	case CodeButtonPress, CodeButtonRelease:
		if v2 < 1 || v2 > 255 {
			return nil, fmt.Errorf("%w: button %d out of range", ErrParse, v2)
		}
		action := Press
		if code == CodeButtonRelease {
			action = Release
		}
		return ButtonEvent{Action: action, Button: uint8(v2)}, nil
	case CodeKeyPress, CodeKeyRelease:
		if v2 < 1 || v2 > 255 {
			return nil, fmt.Errorf("%w: keycode %d out of range", ErrParse, v2)
		}
		return KeyEvent{Action: keyAction(code), Keycode: uint8(v2)}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, code)
	}
}

func keyAction(code byte) Action {
	if code == CodeKeyRelease {
		return Release
	}
	return Press
}

func isSeparator(c byte) bool {
	return c == ' ' || c == '\t'
}
