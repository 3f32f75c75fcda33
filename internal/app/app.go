package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/petems/pulsetap/internal/audio"
	"github.com/petems/pulsetap/internal/config"
	"github.com/petems/pulsetap/internal/enumerate"
	"github.com/petems/pulsetap/internal/feature"
	"github.com/petems/pulsetap/internal/pulse"
	"github.com/petems/pulsetap/internal/record"
	"github.com/petems/pulsetap/internal/sink"
)

// DeviceLister lists capture devices for a backend.
type DeviceLister func(ctx context.Context) ([]audio.Device, error)

type Config struct {
	Config *config.Config
	Logger zerolog.Logger
	Stdout io.Writer

	// Backends default to the ones selected by Config when nil.
	Server  enumerate.Server
	Open    record.Opener
	Devices DeviceLister

	// IsTerminal reports whether w is interactive. Nil treats nothing as a
	// terminal.
	IsTerminal func(w io.Writer) bool
}

type App struct {
	cfg        *config.Config
	log        zerolog.Logger
	stdout     io.Writer
	server     enumerate.Server
	open       record.Opener
	devices    DeviceLister
	isTerminal func(io.Writer) bool
}

func New(cfg Config) *App {
	a := &App{
		cfg:        cfg.Config,
		log:        cfg.Logger,
		stdout:     cfg.Stdout,
		server:     cfg.Server,
		open:       cfg.Open,
		devices:    cfg.Devices,
		isTerminal: cfg.IsTerminal,
	}
	if a.cfg == nil {
		a.cfg = config.Default()
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.isTerminal == nil {
		a.isTerminal = func(io.Writer) bool { return false }
	}

	pulseOpts := a.pulseOptions()
	if a.server == nil {
		a.server = pulse.NewConn(pulseOpts)
	}
	if a.open == nil {
		a.open = OpenerFor(a.cfg.Record.Backend, pulseOpts)
	}
	if a.devices == nil {
		a.devices = DevicesFor(a.cfg.Record.Backend, pulseOpts)
	}
	return a
}

func (a *App) pulseOptions() pulse.Options {
	return pulse.Options{Server: a.cfg.Server, AppName: a.cfg.AppName}
}

// Streams prints one line per playback stream carrying the configured
// property.
func (a *App) Streams(ctx context.Context) error {
	err := enumerate.Run(ctx, a.server, enumerate.Options{
		Property: a.cfg.Streams.Property,
		Output:   a.stdout,
		Logger:   a.log,
	})
	return markReported(err)
}

// Record captures until ctx is cancelled or the stream fails.
func (a *App) Record(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	spec, err := a.cfg.Spec()
	if err != nil {
		return err
	}

	features, err := feature.ParseList(a.cfg.Record.Features)
	if err != nil {
		return err
	}

	opts := audio.OpenOptions{
		Spec:       spec,
		Device:     a.cfg.Record.Device,
		StreamName: a.cfg.Record.StreamName,
		ChunkSize:  a.cfg.Record.ChunkSize,
	}
	if raw, ok := features.Get(feature.Raw); ok {
		latency := raw.BufferLatency
		if a.cfg.Record.BufferLatencyUS > 0 {
			latency = a.cfg.Record.BufferLatencyUS
		}
		opts.Latency = microseconds(latency)
	}

	out, err := a.openSink(spec, features)
	if err != nil {
		return err
	}

	var names []string
	for _, f := range features.Enabled() {
		names = append(names, f.String())
	}
	a.log.Debug().
		Str("backend", a.cfg.Record.Backend).
		Strs("features", names).
		Dur("latency", opts.Latency).
		Msg("Starting recorder")

	rec := record.New(record.Config{
		Open:    a.open,
		Sink:    out,
		Options: opts,
		Logger:  a.log,
	})
	stats, runErr := rec.Run(ctx)

	closeErr := out.Close()
	if closeErr != nil {
		a.log.Error().Err(closeErr).Msg("Failed to finalize output")
	}

	if stats.Chunks > 0 {
		a.log.Info().
			Int64("chunks", stats.Chunks).
			Int64("bytes", stats.Bytes).
			Dur("elapsed", stats.Elapsed).
			Dur("audio", spec.Duration(stats.Bytes)).
			Msg("Capture stopped")
	}

	if runErr != nil {
		return markReported(runErr)
	}
	if closeErr != nil {
		return reported{closeErr}
	}
	return nil
}

func (a *App) openSink(spec audio.Spec, features *feature.Store) (sink.Sink, error) {
	r := a.cfg.Record

	var primary sink.Sink
	switch {
	case r.ToStdout():
		if r.Container == config.ContainerWAV {
			return nil, errors.New("wav output needs a file path")
		}
		if a.isTerminal(a.stdout) && !r.Force {
			return nil, errors.New("refusing to write raw audio to a terminal, redirect stdout or pass --force")
		}
		primary = sink.NewRaw(a.stdout)
	case r.Container == config.ContainerWAV:
		s, err := sink.CreateWAV(r.Output, spec)
		if err != nil {
			return nil, err
		}
		primary = s
	default:
		s, err := sink.CreateRaw(r.Output)
		if err != nil {
			return nil, err
		}
		primary = s
	}

	sinks := []sink.Sink{primary, sink.NewProgress(spec, sink.DefaultProgressInterval, a.log)}
	if features.Contains(feature.MovingAverage) {
		sinks = append(sinks, sink.NewMeter(spec, r.AverageWindow, func(avg float32) {
			a.log.Debug().Float32("average", avg).Msg("Moving average")
		}))
	}
	return sink.Tee(sinks...), nil
}

// ListSources prints the capture devices of the configured backend, the
// default one marked with an asterisk.
func (a *App) ListSources(ctx context.Context) error {
	devices, err := a.devices(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to list capture devices")
		return reported{err}
	}
	for _, d := range devices {
		mark := " "
		if d.Default {
			mark = "*"
		}
		if _, err := fmt.Fprintf(a.stdout, "%s %s\n", mark, d.Name); err != nil {
			return err
		}
	}
	return nil
}

// OpenerFor returns the capture opener of a backend.
func OpenerFor(backend string, opts pulse.Options) record.Opener {
	if backend == config.BackendPortAudio {
		return audio.OpenPortAudio
	}
	return func(o audio.OpenOptions) (audio.Source, error) {
		return pulse.OpenRecord(opts, o)
	}
}

// DevicesFor returns the device listing of a backend.
func DevicesFor(backend string, opts pulse.Options) DeviceLister {
	if backend == config.BackendPortAudio {
		return func(context.Context) ([]audio.Device, error) {
			return audio.ListPortAudioDevices()
		}
	}
	return func(ctx context.Context) ([]audio.Device, error) {
		conn := pulse.NewConn(opts)
		defer conn.Disconnect()
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		return conn.Sources()
	}
}
