package sink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/petems/pulsetap/internal/audio"
)

const (
	wavHeaderSize = 44
	wavFormatPCM  = 1
	wavFormatIEEE = 3
)

type wavSink struct {
	f    *os.File
	spec audio.Spec
	size int64
}

// CreateWAV writes a RIFF/WAVE file. The header is written with a zero data
// size and patched on Close.
func CreateWAV(path string, spec audio.Spec) (Sink, error) {
	if spec.Format.BigEndian() {
		return nil, audio.Wrap(audio.KindFormat, "create wav output", fmt.Errorf("wav requires little-endian samples, got %s", spec.Format))
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wav output: %w", err)
	}

	header, err := wavHeader(0, spec)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("build wav header: %w", err)
	}
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write wav header: %w", err)
	}

	return &wavSink{f: f, spec: spec}, nil
}

func (w *wavSink) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("write wav payload: %w", err)
	}
	return n, nil
}

func (w *wavSink) Close() error {
	header, err := wavHeader(w.size, w.spec)
	if err != nil {
		w.f.Close()
		return fmt.Errorf("build wav header: %w", err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("rewind wav output: %w", err)
	}
	if _, err := w.f.Write(header); err != nil {
		w.f.Close()
		return fmt.Errorf("finalize wav header: %w", err)
	}
	return w.f.Close()
}

func wavHeader(dataSize int64, spec audio.Spec) ([]byte, error) {
	bitDepth := spec.Format.BytesPerSample() * 8
	byteRate := spec.Rate * spec.FrameSize()
	blockAlign := spec.FrameSize()
	chunkSize := 36 + dataSize

	formatTag := uint16(wavFormatPCM)
	if spec.Format.Float() {
		formatTag = wavFormatIEEE
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	fields := []interface{}{
		[]byte("RIFF"),
		uint32(chunkSize),
		[]byte("WAVE"),
		[]byte("fmt "),
		uint32(16),
		formatTag,
		uint16(spec.Channels),
		uint32(spec.Rate),
		uint32(byteRate),
		uint16(blockAlign),
		uint16(bitDepth),
		[]byte("data"),
		uint32(dataSize),
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
