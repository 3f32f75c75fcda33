package pulse

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/petems/pulsetap/internal/audio"
)

// streamPollInterval is how often a capture checks whether the server
// dropped its stream.
const streamPollInterval = 100 * time.Millisecond

// errStreamLost ends a pending Read when the server goes away. The client
// never calls the writer again in that case, so the pipe has to be closed
// from outside.
var errStreamLost = fmt.Errorf("record stream lost: %w", pulse.ErrConnectionClosed)

// pipeWriter hands recorded bytes to a blocking reader. The client's
// callback waits until Read consumes them, mirroring the simple API.
type pipeWriter struct {
	w      *io.PipeWriter
	format byte
}

func (p pipeWriter) Write(buf []byte) (int, error) { return p.w.Write(buf) }
func (p pipeWriter) Format() byte                  { return p.format }

type recordSource struct {
	conn         *Conn
	streamClosed func() bool
	closeStream  func()
	r            *io.PipeReader
	w            *io.PipeWriter

	done chan struct{}
	once sync.Once
}

func newRecordSource(conn *Conn, streamClosed func() bool, closeStream func(), r *io.PipeReader, w *io.PipeWriter) *recordSource {
	return &recordSource{
		conn:         conn,
		streamClosed: streamClosed,
		closeStream:  closeStream,
		r:            r,
		w:            w,
		done:         make(chan struct{}),
	}
}

// OpenRecord connects to the server and opens a capture stream with the exact
// requested spec. If the server would deliver anything else the stream is
// closed again and a format error is returned; nothing has been read.
func OpenRecord(connOpts Options, opts audio.OpenOptions) (audio.Source, error) {
	spec := opts.Spec
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if _, err := recordOptions(opts); err != nil {
		return nil, err
	}

	conn, err := Dial(connOpts)
	if err != nil {
		return nil, err
	}
	src, err := conn.openRecord(opts)
	if err != nil {
		conn.Disconnect()
		return nil, err
	}
	return src, nil
}

// recordOptions maps the sample layout onto record options. The client only
// records mono or stereo.
func recordOptions(opts audio.OpenOptions) ([]pulse.RecordOption, error) {
	spec := opts.Spec
	recOpts := []pulse.RecordOption{pulse.RecordSampleRate(spec.Rate)}
	switch spec.Channels {
	case 1:
		recOpts = append(recOpts, pulse.RecordMono)
	case 2:
		recOpts = append(recOpts, pulse.RecordStereo)
	default:
		return nil, audio.Wrap(audio.KindFormat, "open record stream", fmt.Errorf("%d channels not supported by the pulse backend", spec.Channels))
	}
	if opts.StreamName != "" {
		recOpts = append(recOpts, pulse.RecordMediaName(opts.StreamName))
	}
	if opts.Latency > 0 {
		recOpts = append(recOpts, pulse.RecordLatency(opts.Latency.Seconds()))
	}
	return recOpts, nil
}

// checkNegotiated fails unless the server kept the requested layout. The
// sample format is part of the stream request and converted by the server,
// so only rate and channels can differ.
func checkNegotiated(want, got audio.Spec) error {
	if got.Rate == want.Rate && got.Channels == want.Channels {
		return nil
	}
	return audio.Wrap(audio.KindFormat, "open record stream",
		fmt.Errorf("server cannot provide %s (got %s)", want, got))
}

func (c *Conn) openRecord(opts audio.OpenOptions) (*recordSource, error) {
	spec := opts.Spec
	recOpts, err := recordOptions(opts)
	if err != nil {
		return nil, err
	}

	client, err := c.raw()
	if err != nil {
		return nil, audio.Wrap(audio.KindConnection, "open record stream", err)
	}
	if opts.Device != "" {
		source, err := c.findSource(client, opts.Device)
		if err != nil {
			return nil, audio.Wrap(audio.KindConnection, "open record stream", err)
		}
		recOpts = append(recOpts, pulse.RecordSource(source))
	}

	r, w := io.Pipe()
	stream, err := client.NewRecord(pipeWriter{w: w, format: spec.Format.PulseCode()}, recOpts...)
	if err != nil {
		w.Close()
		return nil, audio.Wrap(audio.KindConnection, "open record stream", err)
	}

	got := audio.Spec{Format: spec.Format, Rate: stream.SampleRate(), Channels: stream.Channels()}
	if err := checkNegotiated(spec, got); err != nil {
		stream.Close()
		w.Close()
		return nil, err
	}

	src := newRecordSource(c, stream.Closed, func() { stream.Close() }, r, w)
	stream.Start()
	go src.watch(streamPollInterval)
	return src, nil
}

// watch fails pending and future reads once the stream is gone.
func (s *recordSource) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.streamClosed() {
				s.w.CloseWithError(errStreamLost)
				return
			}
		}
	}
}

func (s *recordSource) Read(p []byte) error {
	if _, err := io.ReadFull(s.r, p); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return audio.ErrClosed
		}
		return err
	}
	return nil
}

// Close unblocks a pending Read, then tears down the stream and connection.
func (s *recordSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.r.Close()
		s.w.Close()
		s.closeStream()
		if s.conn != nil {
			s.conn.Disconnect()
		}
	})
	return nil
}
