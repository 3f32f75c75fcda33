// Package cli builds the cobra commands shared by the pulsetap binaries.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/petems/pulsetap/internal/app"
	"github.com/petems/pulsetap/internal/config"
	"github.com/petems/pulsetap/internal/logging"
)

// Env is what a command runs with once flags, environment and config file
// have been merged.
type Env struct {
	Config *config.Config
	Logger zerolog.Logger
}

type Options struct {
	Use     string
	Short   string
	Long    string
	Version string
	Run     func(ctx context.Context, cmd *cobra.Command, env Env) error
}

// NewCommand returns a root command carrying the persistent flags every
// binary accepts. Command specific flags are bound to v by the caller.
func NewCommand(opts Options) (*cobra.Command, *viper.Viper) {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           opts.Use,
		Short:         opts.Short,
		Long:          opts.Long,
		Version:       opts.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			log, closer, err := logging.New(logging.Options{
				Level:  cfg.LogLevel,
				File:   cfg.LogFile,
				Stderr: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			return opts.Run(cmd.Context(), cmd, Env{Config: cfg, Logger: log})
		},
	}

	def := config.Default()
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is "+config.Dir()+"/config.yaml)")
	pf.String("server", def.Server, "PulseAudio server string (default uses $PULSE_SERVER or the local socket)")
	pf.String("app-name", def.AppName, "client name announced to the server")
	pf.String("log-level", def.LogLevel, "log level: debug, info, warn or error")
	pf.String("log-file", def.LogFile, `also append JSON logs to this file ("auto" uses the state dir)`)
	Bind(v, pf, map[string]string{
		"server":    "server",
		"app_name":  "app-name",
		"log_level": "log-level",
		"log_file":  "log-file",
	})

	return cmd, v
}

// Bind maps config keys to flag names.
func Bind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// Execute runs cmd until it finishes or the process is interrupted and
// returns the exit status. Errors that were not logged already are printed
// once.
func Execute(cmd *cobra.Command) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err != nil && !app.Reported(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return app.ExitCode(err)
}
