package stage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrClosed is returned when a Processor is used after Close.
var ErrClosed = errors.New("processor already closed")

// UnitError attaches the unit path to a fatal parse or composition failure.
type UnitError struct {
	Path string
	Err  error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.Path, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// State is the position of a Processor in its life cycle.
type State int

const (
	Buffering State = iota
	Deciding
	PassThrough
	Transforming
	Emitting
	Done
)

func (s State) String() string {
	switch s {
	case Buffering:
		return "buffering"
	case Deciding:
		return "deciding"
	case PassThrough:
		return "pass-through"
	case Transforming:
		return "transforming"
	case Emitting:
		return "emitting"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Processor adapts one unit to a byte stream. Writes are buffered until
// Close, which decides, transforms, and then performs exactly one Write on
// the destination followed by its Close.
//
// When the unit fails, or the destination rejects the write, the
// destination is closed with the error if it can carry one (as
// *io.PipeWriter does); otherwise it is left open and the error is
// returned from Close.
type Processor struct {
	stage *Stage
	path  string
	dst   io.WriteCloser
	buf   bytes.Buffer
	state State
}

// NewProcessor returns a Processor for the unit at path writing to dst.
func (s *Stage) NewProcessor(path string, dst io.WriteCloser) *Processor {
	return &Processor{stage: s, path: path, dst: dst}
}

// State returns the current life-cycle state.
func (p *Processor) State() State { return p.state }

// Write buffers one chunk of the unit.
func (p *Processor) Write(chunk []byte) (int, error) {
	if p.state != Buffering {
		return 0, ErrClosed
	}
	return p.buf.Write(chunk)
}

// Close processes the buffered unit and emits the result.
func (p *Processor) Close() error {
	if p.state != Buffering {
		return ErrClosed
	}
	text := p.buf.Bytes()

	p.state = Deciding
	out := text
	if !ShouldTransform(p.path, text, p.stage.markers) {
		p.state = PassThrough
		p.stage.logger.Debug("passing unit through", "unit", p.path)
	} else {
		p.state = Transforming
		var err error
		out, err = p.stage.transform(p.path, text)
		if err != nil {
			return p.fail(err)
		}
	}

	p.state = Emitting
	if _, err := p.dst.Write(out); err != nil {
		return p.fail(fmt.Errorf("emitting %s: %w", p.path, err))
	}
	p.state = Done
	return p.dst.Close()
}

// fail ends the unit with err, passing it on to destinations that accept one.
func (p *Processor) fail(err error) error {
	p.state = Done
	if c, ok := p.dst.(interface{ CloseWithError(error) error }); ok {
		_ = c.CloseWithError(err)
	}
	return err
}
