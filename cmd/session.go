package cmd

import (
	"fmt"

	"github.com/tleino/xin/internal/config"
	"github.com/tleino/xin/internal/display"
	"github.com/tleino/xin/internal/input"
	"github.com/tleino/xin/internal/layout"
	"github.com/tleino/xin/internal/logger"
	"github.com/tleino/xin/internal/receiver"
)

// session ties a display connection to the components replaying commands on it
type session struct {
	x        *display.X11
	engine   *input.Engine
	switcher *layout.Switcher
	receiver *receiver.Receiver
}

// inputMethod resolves the configured method; -s always selects SendEvent
func inputMethod(cfg *config.Config, sendEvent bool) (input.Method, error) {
	if sendEvent {
		return input.MethodSendEvent, nil
	}
	return input.ParseMethod(cfg.Input.Method)
}

// openSession connects to the display and builds the receiver pipeline
func openSession(cfg *config.Config, method input.Method) (*session, error) {
	x, err := display.Open(cfg.Display.Name)
	if err != nil {
		return nil, err
	}

	if method == input.MethodXTest && !x.HasXTest() {
		x.Close()
		return nil, fmt.Errorf("%w; try xin -s", display.ErrNoXTest)
	}
	logger.Debug("connected", "display", x.Name(), "method", method)

	engine := input.NewEngine(x, method)
	switcher := layout.NewSwitcher(x, layout.Options{
		Command:     cfg.Layout.Command,
		CommandMax:  cfg.Layout.CommandMax,
		SentinelKey: cfg.Layout.SentinelKey,
	})

	return &session{
		x:        x,
		engine:   engine,
		switcher: switcher,
		receiver: receiver.New(engine, switcher, cfg.Input.LineMax),
	}, nil
}

func (s *session) Close() {
	s.x.Close()
}
