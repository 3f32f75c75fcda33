// Package sink holds the destinations captured chunks are forwarded to.
// Write receives a buffer the caller reuses for the next chunk; a sink must
// not retain it.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
)

type Sink interface {
	io.Writer
	io.Closer
}

type rawSink struct {
	w     io.Writer
	close func() error
}

func (r *rawSink) Write(p []byte) (int, error) { return r.w.Write(p) }

func (r *rawSink) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// NewRaw forwards bytes unchanged. Closing it does not close w.
func NewRaw(w io.Writer) Sink {
	return &rawSink{w: w}
}

// CreateRaw writes headerless audio to a new file at path.
func CreateRaw(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open raw output: %w", err)
	}
	return &rawSink{w: f, close: f.Close}, nil
}

type teeSink struct {
	sinks []Sink
}

// Tee writes every chunk to all sinks in order, stopping at the first error.
func Tee(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &teeSink{sinks: sinks}
}

func (t *teeSink) Write(p []byte) (int, error) {
	for _, s := range t.sinks {
		n, err := s.Write(p)
		if err != nil {
			return n, err
		}
		if n != len(p) {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}

func (t *teeSink) Close() error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
