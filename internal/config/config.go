package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/petems/pulsetap/internal/audio"
	"github.com/petems/pulsetap/internal/enumerate"
)

const (
	BackendPulse     = "pulse"
	BackendPortAudio = "portaudio"

	ContainerRaw = "raw"
	ContainerWAV = "wav"
)

type Config struct {
	Server   string        `mapstructure:"server"`   // empty selects the default server
	AppName  string        `mapstructure:"app_name"` // client name shown by the server
	LogLevel string        `mapstructure:"log_level"`
	LogFile  string        `mapstructure:"log_file"`
	Streams  StreamsConfig `mapstructure:"streams"`
	Record   RecordConfig  `mapstructure:"record"`
}

type StreamsConfig struct {
	Property string `mapstructure:"property"`
}

type RecordConfig struct {
	Format     string `mapstructure:"format"`
	Rate       int    `mapstructure:"rate"`
	Channels   int    `mapstructure:"channels"`
	ChunkSize  int    `mapstructure:"chunk_size"`
	Device     string `mapstructure:"device"` // empty selects the server default
	StreamName string `mapstructure:"stream_name"`
	Backend    string `mapstructure:"backend"`   // "pulse" or "portaudio"
	Output     string `mapstructure:"output"`    // "-" or empty writes to stdout
	Container  string `mapstructure:"container"` // "raw" or "wav"
	Force      bool   `mapstructure:"force"`

	Features        []string `mapstructure:"features"`
	BufferLatencyUS uint32   `mapstructure:"buffer_latency_us"` // 0 keeps the feature default
	AverageWindow   int      `mapstructure:"average_window"`    // frames per moving average report
}

func Default() *Config {
	return &Config{
		AppName:  "pulsetap",
		LogLevel: "info",
		Streams: StreamsConfig{
			Property: enumerate.DefaultProperty,
		},
		Record: RecordConfig{
			Format:        "s16le",
			Rate:          44100,
			Channels:      2,
			ChunkSize:     1024,
			StreamName:    "Record",
			Backend:       BackendPulse,
			Output:        "-",
			Container:     ContainerRaw,
			AverageWindow: 4800,
		},
	}
}

// Load reads path, or config.yaml from Dir when path is empty, on top of the
// defaults. PULSETAP_* environment variables and any flags bound to v take
// precedence over the file. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix("PULSETAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Every key needs a default so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server", d.Server)
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("streams.property", d.Streams.Property)
	v.SetDefault("record.format", d.Record.Format)
	v.SetDefault("record.rate", d.Record.Rate)
	v.SetDefault("record.channels", d.Record.Channels)
	v.SetDefault("record.chunk_size", d.Record.ChunkSize)
	v.SetDefault("record.device", d.Record.Device)
	v.SetDefault("record.stream_name", d.Record.StreamName)
	v.SetDefault("record.backend", d.Record.Backend)
	v.SetDefault("record.output", d.Record.Output)
	v.SetDefault("record.container", d.Record.Container)
	v.SetDefault("record.force", d.Record.Force)
	v.SetDefault("record.features", d.Record.Features)
	v.SetDefault("record.buffer_latency_us", d.Record.BufferLatencyUS)
	v.SetDefault("record.average_window", d.Record.AverageWindow)
}

// Spec returns the requested sample format, rate and channel count.
func (c *Config) Spec() (audio.Spec, error) {
	f, err := audio.ParseFormat(c.Record.Format)
	if err != nil {
		return audio.Spec{}, err
	}
	spec := audio.Spec{Format: f, Rate: c.Record.Rate, Channels: c.Record.Channels}
	if err := spec.Validate(); err != nil {
		return audio.Spec{}, err
	}
	return spec, nil
}

// Validate checks the recording settings before any connection is made.
func (c *Config) Validate() error {
	spec, err := c.Spec()
	if err != nil {
		return err
	}

	r := c.Record
	if r.ChunkSize <= 0 || r.ChunkSize%spec.FrameSize() != 0 {
		return audio.Wrap(audio.KindFormat, "validate config",
			fmt.Errorf("chunk size %d is not a positive multiple of the %d byte frame", r.ChunkSize, spec.FrameSize()))
	}
	switch r.Backend {
	case BackendPulse, BackendPortAudio:
	default:
		return fmt.Errorf("unknown backend %q", r.Backend)
	}
	switch r.Container {
	case ContainerRaw, ContainerWAV:
	default:
		return fmt.Errorf("unknown container %q", r.Container)
	}
	if r.AverageWindow <= 0 {
		return fmt.Errorf("average window must be positive, got %d", r.AverageWindow)
	}
	return nil
}

// ToStdout reports whether recorded audio goes to standard output.
func (r RecordConfig) ToStdout() bool {
	return r.Output == "" || r.Output == "-"
}

// Dir returns the platform-specific config directory.
func Dir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "pulsetap")
}
