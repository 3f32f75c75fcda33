// Package enumerate lists the playback streams (sink inputs) of an audio
// server and prints one line per stream that declares an application name.
//
// A Context moves through Unconnected -> Connecting -> Ready -> Terminated
// (or Failed). Every transition and every list item is delivered on a
// mainloop, so the Context itself is only ever touched from one goroutine.
// Blocking server calls run on helper goroutines which post their results
// back to the loop.
package enumerate

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/petems/pulsetap/internal/audio"
	"github.com/petems/pulsetap/internal/mainloop"
)

// DefaultProperty is the stream property printed for each stream.
const DefaultProperty = "application.name"

// Server is the connection an enumeration runs against.
type Server interface {
	Connect(ctx context.Context) error
	SinkInputs(ctx context.Context) ([]audio.StreamInfo, error)
	Disconnect()
}

// State is the lifecycle phase of an enumeration context.
type State int

const (
	Unconnected State = iota
	Connecting
	Ready
	Failed
	Terminated
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// End-of-list signal passed to the item callback.
const (
	listMore  = 0
	listEnd   = 1
	listError = -1
)

// Options configures an enumeration.
type Options struct {
	// Property is the stream property to print. Defaults to DefaultProperty.
	Property string
	Output   io.Writer
	Logger   zerolog.Logger
	// OnStateChange, if set, observes every transition.
	OnStateChange func(State)
}

// Context drives one connection through listing the playback streams.
type Context struct {
	loop   *mainloop.Loop
	server Server
	opts   Options
	log    zerolog.Logger
	ctx    context.Context

	state        State
	requested    bool
	disconnected bool
	printed      int
	err          error
}

// NewContext returns an unconnected context scheduled on loop.
func NewContext(loop *mainloop.Loop, server Server, opts Options) *Context {
	if opts.Property == "" {
		opts.Property = DefaultProperty
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	return &Context{
		loop:   loop,
		server: server,
		opts:   opts,
		log:    opts.Logger,
		ctx:    context.Background(),
	}
}

func (c *Context) State() State { return c.state }

// Err returns the first connection or enumeration error.
func (c *Context) Err() error { return c.err }

// Printed is the number of stream lines written.
func (c *Context) Printed() int { return c.printed }

// Connect starts the connection attempt. It must be called on the loop
// goroutine or before the loop runs.
func (c *Context) Connect(ctx context.Context) {
	c.ctx = ctx
	c.setState(Connecting)

	go func() {
		err := c.server.Connect(ctx)
		c.loop.Post(func() {
			if err != nil {
				c.fail(err)
				return
			}
			c.setState(Ready)
		})
	}()
}

func (c *Context) setState(s State) {
	c.state = s
	c.log.Debug().Stringer("state", s).Msg("Context state changed")
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
	c.onStateChange()
}

func (c *Context) onStateChange() {
	switch c.state {
	case Ready:
		if c.requested {
			return
		}
		c.requested = true
		c.requestSinkInputs()
	case Failed:
		c.loop.Quit(1)
	case Terminated:
		if c.err != nil {
			c.loop.Quit(1)
			return
		}
		c.loop.Quit(0)
	}
}

// requestSinkInputs is fire-and-forget: results arrive through onItem.
func (c *Context) requestSinkInputs() {
	ctx := c.ctx
	go func() {
		infos, err := c.server.SinkInputs(ctx)
		for i := range infos {
			info := infos[i]
			if !c.loop.Post(func() { c.onItem(&info, listMore, nil) }) {
				return
			}
		}
		eol := listEnd
		if err != nil {
			eol = listError
		}
		c.loop.Post(func() { c.onItem(nil, eol, err) })
	}()
}

func (c *Context) onItem(info *audio.StreamInfo, eol int, cause error) {
	switch {
	case eol == listMore:
		if info == nil {
			return
		}
		name := info.Property(c.opts.Property)
		if name == "" {
			c.log.Debug().Uint32("index", info.Index).Str("property", c.opts.Property).Msg("Stream has no name, skipping")
			return
		}
		if _, err := fmt.Fprintf(c.opts.Output, "Stream Name: %s\n", name); err != nil {
			c.log.Warn().Err(err).Msg("Failed to write stream name")
			return
		}
		c.printed++
	case eol < 0:
		c.err = audio.Wrap(audio.KindEnumeration, "list sink inputs", cause)
		c.log.Error().Err(c.err).Msg("Stream enumeration failed")
		c.disconnect()
	default:
		c.log.Debug().Int("streams", c.printed).Msg("Stream list complete")
		c.disconnect()
	}
}

func (c *Context) fail(err error) {
	if audio.KindOf(err) == 0 {
		err = audio.Wrap(audio.KindConnection, "connect", err)
	}
	c.err = err
	c.log.Error().Err(err).Msg("Connection failed")
	c.release()
	c.setState(Failed)
}

func (c *Context) disconnect() {
	if c.disconnected {
		return
	}
	c.release()
	c.setState(Terminated)
}

// release hands the connection back exactly once, whatever path got here.
func (c *Context) release() {
	if c.disconnected {
		return
	}
	c.disconnected = true
	c.server.Disconnect()
}

// Run performs one enumeration: connect, list once, disconnect. It returns
// nil on a clean run, or an error matching audio.ErrConnection or
// audio.ErrEnumeration. Errors have already been logged when returned.
func Run(ctx context.Context, server Server, opts Options) error {
	loop := mainloop.New()
	c := NewContext(loop, server, opts)
	defer c.release()

	c.Connect(ctx)

	if _, err := loop.Run(ctx); err != nil {
		return err
	}
	return c.Err()
}
