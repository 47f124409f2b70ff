// Package layout switches the keyboard layout of the X session and waits
// until the server has published the new keyboard mapping.
package layout

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/tleino/xin/internal/display"
	"github.com/tleino/xin/internal/logger"
)

const (
	// DefaultCommand is the tool run with the layout name as its argument
	DefaultCommand = "setxkbmap"
	// DefaultCommandMax bounds the length of the tool command line
	DefaultCommandMax = 128
	// DefaultSentinelKey is grabbed on the root window before switching
	DefaultSentinelKey = "Super_L"
)

var (
	// ErrInvalidName is returned for layout names with non-letter characters
	ErrInvalidName = errors.New("layout name cannot contain special characters")
	// ErrNameTooLong is returned when the tool command line would not fit
	ErrNameTooLong = errors.New("layout name too long")
	// ErrToolInvocation is returned when the layout tool could not be started
	ErrToolInvocation = errors.New("failed to run layout tool")
)

// State is the progress of a layout switch.
type State int

const (
	Idle State = iota
	Validating
	AwaitingExternalTool
	AwaitingMappingNotify
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case AwaitingExternalTool:
		return "awaiting-external-tool"
	case AwaitingMappingNotify:
		return "awaiting-mapping-notify"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ToolRunner runs the external layout tool. An *exec.ExitError means the
// tool ran and failed; any other error means it could not be started.
type ToolRunner interface {
	Run(ctx context.Context, tool, name string) error
}

// ExecRunner runs the tool as a child process without a shell.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, tool, name string) error {
	cmd := exec.CommandContext(ctx, tool, name)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		logger.Debug("Layout tool output", "tool", tool, "output", string(out))
	}
	return err
}

// AwaitFunc blocks until the server reports a mapping change.
type AwaitFunc func() (display.MappingNotify, error)

// Options configure a Switcher. Zero values select the defaults.
type Options struct {
	Command     string
	CommandMax  int
	SentinelKey string
	Runner      ToolRunner
	Await       AwaitFunc
}

// Switcher applies layout change commands. It is not safe for concurrent use.
type Switcher struct {
	src   display.MappingSource
	opts  Options
	state State
}

// NewSwitcher creates a switcher working on src
func NewSwitcher(src display.MappingSource, opts Options) *Switcher {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.CommandMax <= 0 {
		opts.CommandMax = DefaultCommandMax
	}
	if opts.SentinelKey == "" {
		opts.SentinelKey = DefaultSentinelKey
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Await == nil {
		opts.Await = src.WaitMappingNotify
	}
	return &Switcher{src: src, opts: opts}
}

// State returns the current step of the switch in progress.
func (s *Switcher) State() State {
	return s.state
}

// Switch validates name, runs the layout tool and blocks until the new
// keyboard mapping has been loaded. There is no timeout on the wait.
func (s *Switcher) Switch(ctx context.Context, name string) error {
	defer s.setState(Idle)

	s.setState(Validating)
	if err := s.validate(name); err != nil {
		return err
	}

	if code, ok := s.src.KeycodeFor(s.opts.SentinelKey); !ok {
		logger.Warn("sentinel key has no keycode", "key", s.opts.SentinelKey)
	} else if err := s.src.GrabKey(code); err != nil {
		logger.Warn("failed to grab sentinel key", "key", s.opts.SentinelKey, "error", err)
	}
	if err := s.src.Sync(); err != nil {
		return err
	}
	if err := s.drain(); err != nil {
		return err
	}

	s.setState(AwaitingExternalTool)
	if err := s.opts.Runner.Run(ctx, s.opts.Command, name); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("%w %s: %v", ErrToolInvocation, s.opts.Command, err)
		}
		logger.Debug("Layout tool failed", "tool", s.opts.Command, "layout", name, "status", exitErr.ExitCode())
	}

	s.setState(AwaitingMappingNotify)
	ev, err := s.opts.Await()
	if err != nil {
		return err
	}
	if err := s.src.RefreshMapping(ev); err != nil {
		return err
	}

	if err := s.drain(); err != nil {
		return err
	}
	logger.Info("Keyboard layout switched", "layout", name)
	return nil
}

func (s *Switcher) validate(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	for i := 0; i < len(name); i++ {
		if !isAlpha(name[i]) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	if len(s.opts.Command)+1+len(name) >= s.opts.CommandMax {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	return nil
}

// drain applies every mapping change already queued without blocking.
func (s *Switcher) drain() error {
	for {
		ev, ok := s.src.PollMappingNotify()
		if !ok {
			return nil
		}
		if err := s.src.RefreshMapping(ev); err != nil {
			return err
		}
	}
}

func (s *Switcher) setState(state State) {
	if s.state != state {
		logger.Debug("Layout switch state", "from", s.state, "to", state)
	}
	s.state = state
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
