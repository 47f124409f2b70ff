// Package receiver reads a command stream and applies each command to the
// X session in order.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tleino/xin/internal/display"
	"github.com/tleino/xin/internal/layout"
	"github.com/tleino/xin/internal/logger"
	"github.com/tleino/xin/internal/protocol"
)

// ErrRead is returned when the command stream fails for a reason other than
// its end.
var ErrRead = errors.New("reading input")

// Injector applies key, button and motion commands.
type Injector interface {
	Apply(cmd protocol.Command) error
}

// LayoutSwitcher applies layout change commands.
type LayoutSwitcher interface {
	Switch(ctx context.Context, name string) error
}

// Stats counts what happened to the lines of a stream.
type Stats struct {
	Lines    int
	Applied  int
	Warnings int
}

// Receiver dispatches commands to the injector and the layout switcher.
// Only one stream is processed at a time; Run calls are serialised.
type Receiver struct {
	mu       sync.Mutex
	injector Injector
	switcher LayoutSwitcher
	lineMax  int

	statsMu sync.Mutex
	stats   Stats
}

// New creates a receiver. A lineMax below 3 selects protocol.DefaultLineMax.
func New(injector Injector, switcher LayoutSwitcher, lineMax int) *Receiver {
	return &Receiver{
		injector: injector,
		switcher: switcher,
		lineMax:  lineMax,
	}
}

// Run processes in until it ends. A clean end of stream returns nil.
// Malformed lines and rejected commands are logged and skipped; errors
// for which IsFatal is true stop the loop and are returned.
func (r *Receiver) Run(ctx context.Context, in io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reader := protocol.NewReader(in, r.lineMax)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, protocol.ErrTruncated):
			r.warn("parse error; truncated input")
			continue
		case err != nil:
			return fmt.Errorf("%w: %v", ErrRead, err)
		}
		r.count(func(s *Stats) { s.Lines++ })

		cmd, err := protocol.Parse(line)
		if err != nil {
			r.warn("parse error", "error", err)
			continue
		}

		if err := r.dispatch(ctx, cmd); err != nil {
			if IsFatal(err) {
				return err
			}
			r.warn("command failed", "command", cmd, "error", err)
			continue
		}
		r.count(func(s *Stats) { s.Applied++ })
	}
}

func (r *Receiver) dispatch(ctx context.Context, cmd protocol.Command) error {
	logger.Debug("Applying command", "command", cmd)
	if c, ok := cmd.(protocol.LayoutChange); ok {
		return r.switcher.Switch(ctx, c.Name)
	}
	return r.injector.Apply(cmd)
}

func (r *Receiver) warn(msg string, keyvals ...interface{}) {
	r.count(func(s *Stats) { s.Warnings++ })
	logger.Warn(msg, keyvals...)
}

func (r *Receiver) count(update func(s *Stats)) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	update(&r.stats)
}

// Stats returns the counters accumulated over every stream so far. It does
// not wait for a running stream.
func (r *Receiver) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// IsFatal reports whether err must end the program rather than the
// current command.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRead) ||
		errors.Is(err, layout.ErrToolInvocation) ||
		errors.Is(err, display.ErrClosed) ||
		errors.Is(err, context.Canceled)
}
