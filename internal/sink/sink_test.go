package sink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/pulsetap/internal/audio"
)

func TestRawSinkForwardsBytes(t *testing.T) {
	var out bytes.Buffer
	s := NewRaw(&out)

	payload := []byte{0x00, 0xff, 0x10, 0x80}
	if _, err := s.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("payload mismatch, got %v", out.Bytes())
	}
}

func TestCreateRawWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcm")
	s, err := CreateRaw(path)
	if err != nil {
		t.Fatalf("CreateRaw failed: %v", err)
	}
	if _, err := s.Write([]byte("abcd")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output failed: %v", err)
	}
	if string(data) != "abcd" {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestWAVHeaderPatchedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	spec := audio.DefaultSpec()

	s, err := CreateWAV(path, spec)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	chunk := make([]byte, 1024)
	for i := 0; i < 3; i++ {
		if _, err := s.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output failed: %v", err)
	}
	if len(data) != wavHeaderSize+3*1024 {
		t.Fatalf("expected %d bytes, got %d", wavHeaderSize+3*1024, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Fatalf("malformed header %q", data[:wavHeaderSize])
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != 36+3*1024 {
		t.Errorf("expected riff size %d, got %d", 36+3*1024, got)
	}
	if got := binary.LittleEndian.Uint16(data[20:22]); got != wavFormatPCM {
		t.Errorf("expected PCM format tag, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 2 {
		t.Errorf("expected 2 channels, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 44100 {
		t.Errorf("expected 44100 Hz, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("expected 16 bit samples, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 3*1024 {
		t.Errorf("expected data size %d, got %d", 3*1024, got)
	}
}

func TestWAVFloatFormatTag(t *testing.T) {
	header, err := wavHeader(0, audio.Spec{Format: audio.FormatF32LE, Rate: 48000, Channels: 1})
	if err != nil {
		t.Fatalf("wavHeader failed: %v", err)
	}
	if got := binary.LittleEndian.Uint16(header[20:22]); got != wavFormatIEEE {
		t.Fatalf("expected IEEE float tag, got %d", got)
	}
}

func TestWAVRejectsBigEndian(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	_, err := CreateWAV(path, audio.Spec{Format: audio.FormatS16BE, Rate: 44100, Channels: 2})
	if !errors.Is(err, audio.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		t.Fatal("no file should be created for a rejected format")
	}
}

func TestMeterReportsPerWindow(t *testing.T) {
	spec := audio.Spec{Format: audio.FormatS16LE, Rate: 8000, Channels: 1}
	var reports []float32
	m := NewMeter(spec, 2, func(avg float32) { reports = append(reports, avg) })

	// 16384, -16384, 0, 0, 16384 (last frame is a partial window)
	raw := []byte{0x00, 0x40, 0x00, 0xc0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x40}
	if _, err := m.Write(raw); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	expected := []float32{0.5, 0}
	if len(reports) != len(expected) {
		t.Fatalf("expected %d reports, got %v", len(expected), reports)
	}
	for i := range expected {
		if reports[i] != expected[i] {
			t.Fatalf("report %d: expected %f, got %f", i, expected[i], reports[i])
		}
	}
}

type failingSink struct{ closed bool }

func (f *failingSink) Write(p []byte) (int, error) { return 0, errors.New("disk full") }
func (f *failingSink) Close() error                { f.closed = true; return nil }

func TestTeeStopsOnFirstErrorAndClosesAll(t *testing.T) {
	var out bytes.Buffer
	bad := &failingSink{}
	tee := Tee(NewRaw(&out), bad)

	if _, err := tee.Write([]byte{1, 2}); err == nil {
		t.Fatal("expected write error")
	}
	if out.Len() != 2 {
		t.Fatalf("expected first sink to receive the chunk, got %d bytes", out.Len())
	}
	if err := tee.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !bad.closed {
		t.Fatal("expected every sink to be closed")
	}
}

func TestProgressLogsPerInterval(t *testing.T) {
	var logs bytes.Buffer
	s := NewProgress(audio.DefaultSpec(), time.Second, zerolog.New(&logs)).(*progressSink)

	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { return clock }

	chunk := make([]byte, 1024)
	for i := 0; i < 5; i++ {
		if _, err := s.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		clock = clock.Add(500 * time.Millisecond)
	}
	// writes at 0s, 0.5s, 1s, 1.5s, 2s log at 1s and 2s
	if n := bytes.Count(logs.Bytes(), []byte(`"message":"Capturing"`)); n != 2 {
		t.Fatalf("expected 2 progress lines, got %d: %s", n, logs.String())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !bytes.Contains(logs.Bytes(), []byte(`"bytes":5120`)) {
		t.Fatalf("expected final byte count, got %s", logs.String())
	}
}
