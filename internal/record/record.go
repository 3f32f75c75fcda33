package record

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/pulsetap/internal/audio"
)

// Opener opens a blocking capture source.
type Opener func(opts audio.OpenOptions) (audio.Source, error)

type Config struct {
	Open    Opener
	Sink    io.Writer
	Options audio.OpenOptions
	Logger  zerolog.Logger
}

type Recorder struct {
	open Opener
	sink io.Writer
	opts audio.OpenOptions
	log  zerolog.Logger
}

// Stats summarises a run.
type Stats struct {
	Chunks  int64
	Bytes   int64
	Elapsed time.Duration
}

func New(cfg Config) *Recorder {
	return &Recorder{
		open: cfg.Open,
		sink: cfg.Sink,
		opts: cfg.Options,
		log:  cfg.Logger,
	}
}

// Run opens the source and forwards fixed-size chunks to the sink until ctx
// is cancelled or an error occurs. Cancellation is a clean stop and returns
// nil. Open and read failures are logged here once and returned; they are
// never retried. The source is released exactly once on every path.
func (r *Recorder) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	if r.opts.ChunkSize <= 0 {
		return stats, fmt.Errorf("invalid chunk size %d", r.opts.ChunkSize)
	}
	if err := ctx.Err(); err != nil {
		return stats, nil
	}

	src, err := r.open(r.opts)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to open capture stream")
		return stats, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := src.Close(); err != nil {
				r.log.Warn().Err(err).Msg("Failed to close capture stream")
			}
		})
	}
	defer release()
	// A blocked read only returns once the source is closed.
	stop := context.AfterFunc(ctx, release)
	defer stop()

	r.log.Info().
		Stringer("spec", r.opts.Spec).
		Int("chunk_size", r.opts.ChunkSize).
		Str("device", deviceName(r.opts.Device)).
		Msg("Capture started")

	buf := make([]byte, r.opts.ChunkSize)
	start := time.Now()
	done := func(err error) (Stats, error) {
		stats.Elapsed = time.Since(start)
		return stats, err
	}

	for {
		if ctx.Err() != nil {
			return done(nil)
		}

		if err := src.Read(buf); err != nil {
			if ctx.Err() != nil {
				return done(nil)
			}
			rerr := audio.Wrap(audio.KindRead, "read capture stream", err)
			r.log.Error().Err(rerr).Int64("chunks", stats.Chunks).Msg("Capture read failed")
			return done(rerr)
		}
		stats.Chunks++
		stats.Bytes += int64(len(buf))

		if _, err := r.sink.Write(buf); err != nil {
			return done(fmt.Errorf("write chunk %d: %w", stats.Chunks, err))
		}
	}
}

func deviceName(d string) string {
	if d == "" {
		return "default"
	}
	return d
}
