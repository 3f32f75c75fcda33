package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petems/pulsetap/internal/app"
	"github.com/petems/pulsetap/internal/cli"
	"github.com/petems/pulsetap/internal/enumerate"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd, v := cli.NewCommand(cli.Options{
		Use:     "pa-streams",
		Short:   "List the active PulseAudio playback streams",
		Long:    "pa-streams connects to the sound server, prints one \"Stream Name: <name>\" line per playback stream and disconnects.",
		Version: fmt.Sprintf("%s (%s)", Version, Commit),
		Run: func(ctx context.Context, cmd *cobra.Command, env cli.Env) error {
			a := app.New(app.Config{
				Config: env.Config,
				Logger: env.Logger,
				Stdout: cmd.OutOrStdout(),
			})
			return a.Streams(ctx)
		},
	})

	cmd.Flags().String("property", enumerate.DefaultProperty, "stream property to print")
	cli.Bind(v, cmd.Flags(), map[string]string{"streams.property": "property"})

	return cmd
}

func main() {
	os.Exit(cli.Execute(newRootCmd()))
}
