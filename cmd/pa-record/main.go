package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petems/pulsetap/internal/app"
	"github.com/petems/pulsetap/internal/cli"
	"github.com/petems/pulsetap/internal/config"
	"github.com/petems/pulsetap/internal/logging"
	"github.com/petems/pulsetap/internal/permissions"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func newRootCmd() *cobra.Command {
	var listSources bool

	cmd, v := cli.NewCommand(cli.Options{
		Use:     "pa-record",
		Short:   "Capture raw audio from a PulseAudio source",
		Long:    "pa-record reads fixed-size chunks from a capture device and writes them to stdout or a file until interrupted.",
		Version: fmt.Sprintf("%s (%s)", Version, Commit),
		Run: func(ctx context.Context, cmd *cobra.Command, env cli.Env) error {
			a := app.New(app.Config{
				Config:     env.Config,
				Logger:     env.Logger,
				Stdout:     cmd.OutOrStdout(),
				IsTerminal: logging.IsTerminal,
			})
			if listSources {
				return a.ListSources(ctx)
			}

			// macOS requires explicit microphone approval before a direct device capture
			if env.Config.Record.Backend == config.BackendPortAudio {
				if err := permissions.EnsureMicrophone(env.Logger); err != nil {
					return err
				}
			}

			env.Logger.Info().
				Str("version", Version).
				Str("commit", Commit).
				Msg("pa-record starting...")
			return a.Record(ctx)
		},
	})

	def := config.Default().Record
	f := cmd.Flags()
	f.String("format", def.Format, "sample format: u8, s16le, s16be, s32le, s32be, f32le or f32be")
	f.Int("rate", def.Rate, "sample rate in Hz")
	f.Int("channels", def.Channels, "channel count")
	f.Int("chunk-size", def.ChunkSize, "bytes per read, a multiple of the frame size")
	f.String("device", def.Device, "capture source name (default is the server default)")
	f.String("stream-name", def.StreamName, "name of the capture stream")
	f.String("backend", def.Backend, "capture backend: pulse or portaudio")
	f.StringP("output", "o", def.Output, `output path, "-" for stdout`)
	f.String("container", def.Container, "output container: raw or wav")
	f.StringSlice("feature", def.Features, "enable a feature: raw, moving_average")
	f.Uint32("buffer-latency-us", def.BufferLatencyUS, "raw feature buffer latency in microseconds (0 keeps the default)")
	f.Int("average-window", def.AverageWindow, "frames per moving average report")
	f.Bool("force", def.Force, "write raw audio even when stdout is a terminal")
	f.BoolVar(&listSources, "list-sources", false, "list capture devices and exit")

	cli.Bind(v, f, map[string]string{
		"record.format":            "format",
		"record.rate":              "rate",
		"record.channels":          "channels",
		"record.chunk_size":        "chunk-size",
		"record.device":            "device",
		"record.stream_name":       "stream-name",
		"record.backend":           "backend",
		"record.output":            "output",
		"record.container":         "container",
		"record.features":          "feature",
		"record.buffer_latency_us": "buffer-latency-us",
		"record.average_window":    "average-window",
		"record.force":             "force",
	})

	return cmd
}

func main() {
	os.Exit(cli.Execute(newRootCmd()))
}
