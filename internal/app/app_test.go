package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/pulsetap/internal/audio"
	"github.com/petems/pulsetap/internal/config"
)

// Mock implementations for testing
type mockServer struct {
	connectErr  error
	streams     []audio.StreamInfo
	disconnects int
}

func (m *mockServer) Connect(ctx context.Context) error {
	return m.connectErr
}

func (m *mockServer) SinkInputs(ctx context.Context) ([]audio.StreamInfo, error) {
	return m.streams, nil
}

func (m *mockServer) Disconnect() {
	m.disconnects++
}

// mockSource serves limit chunks filled with fill, then blocks until closed.
type mockSource struct {
	mu     sync.Mutex
	fill   byte
	limit  int
	reads  int
	closed chan struct{}
	once   sync.Once
}

func newMockSource(fill byte, limit int) *mockSource {
	return &mockSource{fill: fill, limit: limit, closed: make(chan struct{})}
}

func (m *mockSource) Read(p []byte) error {
	m.mu.Lock()
	m.reads++
	n := m.reads
	m.mu.Unlock()

	if n > m.limit {
		<-m.closed
		return audio.ErrClosed
	}
	for i := range p {
		p[i] = m.fill
	}
	return nil
}

func (m *mockSource) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockSource) waitReads(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		reads := m.reads
		m.mu.Unlock()
		if reads > n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("source never reached %d reads", n)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Record.ChunkSize = 8
	return cfg
}

func TestStreamsPrintsApplicationNames(t *testing.T) {
	var out bytes.Buffer
	server := &mockServer{streams: []audio.StreamInfo{
		{Index: 1, Properties: map[string]string{"application.name": "Music Player"}},
		{Index: 2, Properties: map[string]string{}},
		{Index: 3, Properties: map[string]string{"application.name": "Browser"}},
	}}

	a := New(Config{Config: testConfig(), Logger: zerolog.Nop(), Stdout: &out, Server: server})
	if err := a.Streams(context.Background()); err != nil {
		t.Fatalf("Streams failed: %v", err)
	}

	expected := "Stream Name: Music Player\nStream Name: Browser\n"
	if out.String() != expected {
		t.Fatalf("expected %q, got %q", expected, out.String())
	}
	if server.disconnects != 1 {
		t.Fatalf("expected one disconnect, got %d", server.disconnects)
	}
}

func TestStreamsConnectionFailureIsReported(t *testing.T) {
	server := &mockServer{connectErr: errors.New("Connection refused")}
	a := New(Config{Config: testConfig(), Logger: zerolog.Nop(), Stdout: io.Discard, Server: server})

	err := a.Streams(context.Background())
	if !errors.Is(err, audio.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if !Reported(err) {
		t.Fatal("connection failure should already be reported")
	}
	if ExitCode(err) != 1 {
		t.Fatalf("expected exit code 1, got %d", ExitCode(err))
	}
}

func TestRecordForwardsChunksToStdout(t *testing.T) {
	var out bytes.Buffer
	src := newMockSource(0x7f, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got audio.OpenOptions
	a := New(Config{
		Config: testConfig(),
		Logger: zerolog.Nop(),
		Stdout: &out,
		Open: func(opts audio.OpenOptions) (audio.Source, error) {
			got = opts
			return src, nil
		},
	})

	errCh := make(chan error, 1)
	go func() { errCh <- a.Record(ctx) }()

	src.waitReads(t, 3)
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if out.Len() != 3*8 || !bytes.Equal(out.Bytes(), bytes.Repeat([]byte{0x7f}, 24)) {
		t.Fatalf("unexpected output %v", out.Bytes())
	}
	if got.Spec != audio.DefaultSpec() || got.ChunkSize != 8 || got.StreamName != "Record" {
		t.Fatalf("unexpected open options %+v", got)
	}
	if got.Latency != 0 {
		t.Fatalf("expected no latency without the raw feature, got %v", got.Latency)
	}
}

func TestRecordOpenFailure(t *testing.T) {
	var out bytes.Buffer
	a := New(Config{
		Config: testConfig(),
		Logger: zerolog.Nop(),
		Stdout: &out,
		Open: func(audio.OpenOptions) (audio.Source, error) {
			return nil, audio.Wrap(audio.KindConnection, "connect to pulseaudio", errors.New("Connection refused"))
		},
	})

	err := a.Record(context.Background())
	if !errors.Is(err, audio.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if !Reported(err) || ExitCode(err) != 1 {
		t.Fatalf("expected reported error with exit 1, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %d bytes", out.Len())
	}
}

func TestRecordRefusesTerminal(t *testing.T) {
	opened := false
	cfg := testConfig()
	a := New(Config{
		Config:     cfg,
		Logger:     zerolog.Nop(),
		Stdout:     io.Discard,
		IsTerminal: func(io.Writer) bool { return true },
		Open: func(audio.OpenOptions) (audio.Source, error) {
			opened = true
			return nil, errors.New("unexpected open")
		},
	})

	err := a.Record(context.Background())
	if err == nil || Reported(err) {
		t.Fatalf("expected an unreported refusal, got %v", err)
	}
	if opened {
		t.Fatal("capture should not be opened")
	}

	cfg.Record.Force = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Record(ctx); err != nil {
		t.Fatalf("expected --force to allow a terminal, got %v", err)
	}
}

func TestRecordWAVWithMovingAverage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	cfg := testConfig()
	cfg.Record.Output = path
	cfg.Record.Container = config.ContainerWAV
	cfg.Record.Features = []string{"moving_average"}
	cfg.Record.AverageWindow = 2

	src := newMockSource(0x10, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logs bytes.Buffer
	var got audio.OpenOptions
	a := New(Config{
		Config: cfg,
		Logger: zerolog.New(&logs).Level(zerolog.DebugLevel),
		Stdout: io.Discard,
		Open: func(opts audio.OpenOptions) (audio.Source, error) {
			got = opts
			return src, nil
		},
	})

	errCh := make(chan error, 1)
	go func() { errCh <- a.Record(ctx) }()
	src.waitReads(t, 4)
	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if got.Latency != 5*time.Millisecond {
		t.Fatalf("expected raw feature latency of 5ms, got %v", got.Latency)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output failed: %v", err)
	}
	if info.Size() != 44+4*8 {
		t.Fatalf("expected header plus 32 bytes, got %d", info.Size())
	}
	if !bytes.Contains(logs.Bytes(), []byte("Moving average")) {
		t.Fatalf("expected moving average reports, got %s", logs.String())
	}
}

func TestRecordBufferLatencyOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Record.Features = []string{"raw"}
	cfg.Record.BufferLatencyUS = 20000

	var got audio.OpenOptions
	a := New(Config{
		Config: cfg,
		Logger: zerolog.Nop(),
		Stdout: io.Discard,
		Open: func(opts audio.OpenOptions) (audio.Source, error) {
			got = opts
			return nil, audio.Wrap(audio.KindConnection, "connect", errors.New("stop"))
		},
	})
	a.Record(context.Background())

	if got.Latency != 20*time.Millisecond {
		t.Fatalf("expected 20ms latency, got %v", got.Latency)
	}
}

func TestRecordRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Record.ChunkSize = 7
	a := New(Config{Config: cfg, Logger: zerolog.Nop(), Stdout: io.Discard})

	err := a.Record(context.Background())
	if !errors.Is(err, audio.ErrFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if Reported(err) {
		t.Fatal("config errors are printed by the caller")
	}
}

func TestListSources(t *testing.T) {
	var out bytes.Buffer
	a := New(Config{
		Config: testConfig(),
		Logger: zerolog.Nop(),
		Stdout: &out,
		Devices: func(context.Context) ([]audio.Device, error) {
			return []audio.Device{
				{ID: "alsa_input.pci", Name: "alsa_input.pci", Default: true},
				{ID: "alsa_output.pci.monitor", Name: "alsa_output.pci.monitor"},
			}, nil
		},
	})

	if err := a.ListSources(context.Background()); err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	expected := "* alsa_input.pci\n  alsa_output.pci.monitor\n"
	if out.String() != expected {
		t.Fatalf("expected %q, got %q", expected, out.String())
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{context.Canceled, 130},
		{fmt.Errorf("run: %w", context.Canceled), 130},
		{audio.Wrap(audio.KindRead, "read", errors.New("eof")), 1},
		{errors.New("flag"), 1},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
