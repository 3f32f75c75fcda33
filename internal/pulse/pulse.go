// Package pulse adapts github.com/jfreymuth/pulse to the enumerate and
// record packages.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"github.com/petems/pulsetap/internal/audio"
)

const defaultAppName = "pulsetap"

// Options selects the server and names the client.
type Options struct {
	Server  string // empty uses the library's discovery ($PULSE_SERVER, runtime dir)
	AppName string
}

func (o Options) clientOptions() []pulse.ClientOption {
	name := o.AppName
	if name == "" {
		name = defaultAppName
	}
	opts := []pulse.ClientOption{pulse.ClientApplicationName(name)}
	if o.Server != "" {
		opts = append(opts, pulse.ClientServerString(o.Server))
	}
	return opts
}

var errNotConnected = errors.New("not connected")

// Conn is a lazily established client connection. Disconnect may race with
// Connect; a client that finishes connecting after Disconnect is closed.
type Conn struct {
	opts Options

	mu     sync.Mutex
	client *pulse.Client
	closed bool
}

func NewConn(opts Options) *Conn {
	return &Conn{opts: opts}
}

// Dial connects immediately.
func Dial(opts Options) (*Conn, error) {
	c := NewConn(opts)
	if err := c.Connect(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return audio.Wrap(audio.KindConnection, "connect to pulseaudio", err)
	}

	client, err := pulse.NewClient(c.opts.clientOptions()...)
	if err != nil {
		return audio.Wrap(audio.KindConnection, "connect to pulseaudio", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		client.Close()
		return audio.Wrap(audio.KindConnection, "connect to pulseaudio", errors.New("disconnected while connecting"))
	}
	if c.client != nil {
		c.client.Close()
	}
	c.client = client
	return nil
}

func (c *Conn) raw() (*pulse.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || c.closed {
		return nil, errNotConnected
	}
	return c.client, nil
}

// Disconnect closes the connection. It is idempotent.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

// SinkInputs lists the active playback streams in server order.
func (c *Conn) SinkInputs(ctx context.Context) ([]audio.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := c.raw()
	if err != nil {
		return nil, err
	}

	var reply proto.GetSinkInputInfoListReply
	if err := client.RawRequest(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("get sink input info list: %w", err)
	}

	infos := make([]audio.StreamInfo, 0, len(reply))
	for _, in := range reply {
		if in == nil {
			continue
		}
		infos = append(infos, audio.StreamInfo{
			Index:      in.SinkInputIndex,
			MediaName:  in.MediaName,
			Properties: propList(in.Properties),
		})
	}
	return infos, nil
}

// Property values travel NUL-terminated.
func propList(pl proto.PropList) map[string]string {
	props := make(map[string]string, len(pl))
	for k, v := range pl {
		props[k] = strings.TrimRight(string(v), "\x00")
	}
	return props
}

// Sources lists capture devices, marking the server default.
func (c *Conn) Sources() ([]audio.Device, error) {
	client, err := c.raw()
	if err != nil {
		return nil, err
	}

	sources, err := client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	var defaultName string
	if def, err := client.DefaultSource(); err == nil {
		defaultName = def.Name()
	}

	devices := make([]audio.Device, 0, len(sources))
	for _, s := range sources {
		devices = append(devices, audio.Device{
			ID:      s.Name(),
			Name:    s.Name(),
			Default: s.Name() == defaultName,
		})
	}
	return devices, nil
}

func (c *Conn) findSource(client *pulse.Client, name string) (*pulse.Source, error) {
	sources, err := client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	for _, s := range sources {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("source not found: %s", name)
}
