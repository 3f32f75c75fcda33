package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
)

type portAudioSource struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	spec   Spec
	buf    interface{}
	chunk  int
	closed bool
}

// OpenPortAudio opens a blocking PortAudio capture stream.
func OpenPortAudio(opts OpenOptions) (Source, error) {
	spec := opts.Spec
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if opts.ChunkSize <= 0 || opts.ChunkSize%spec.FrameSize() != 0 {
		return nil, Wrap(KindFormat, "open portaudio stream", fmt.Errorf("chunk size %d is not a multiple of the %d byte frame", opts.ChunkSize, spec.FrameSize()))
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, Wrap(KindConnection, "initialize portaudio", err)
	}

	device, err := findInputDevice(opts.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, Wrap(KindConnection, "open portaudio stream", err)
	}

	frames := opts.ChunkSize / spec.FrameSize()
	buf := newSampleBuffer(spec.Format, frames*spec.Channels)

	latency := device.DefaultLowInputLatency
	if opts.Latency > 0 {
		latency = opts.Latency
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: spec.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(spec.Rate),
		FramesPerBuffer: frames,
	}, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, Wrap(KindConnection, fmt.Sprintf("open portaudio stream (%s)", spec), err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, Wrap(KindConnection, "start portaudio stream", err)
	}

	return &portAudioSource{stream: stream, spec: spec, buf: buf, chunk: opts.ChunkSize}, nil
}

func findInputDevice(id string) (*portaudio.DeviceInfo, error) {
	if id == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == id && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", id)
}

// PortAudio only produces native sample types; byte order is applied on encode.
func newSampleBuffer(f Format, n int) interface{} {
	switch f {
	case FormatU8:
		return make([]uint8, n)
	case FormatS16LE, FormatS16BE:
		return make([]int16, n)
	case FormatS32LE, FormatS32BE:
		return make([]int32, n)
	default:
		return make([]float32, n)
	}
}

func (p *portAudioSource) Read(dst []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(dst) != p.chunk {
		return fmt.Errorf("read of %d bytes on a %d byte stream", len(dst), p.chunk)
	}
	if err := p.stream.Read(); err != nil {
		return err
	}
	encodeSamples(p.spec.Format, p.buf, dst)
	return nil
}

func encodeSamples(f Format, buf interface{}, dst []byte) {
	var order binary.ByteOrder = binary.LittleEndian
	if f.BigEndian() {
		order = binary.BigEndian
	}
	switch b := buf.(type) {
	case []uint8:
		copy(dst, b)
	case []int16:
		for i, s := range b {
			order.PutUint16(dst[i*2:], uint16(s))
		}
	case []int32:
		for i, s := range b {
			order.PutUint32(dst[i*4:], uint32(s))
		}
	case []float32:
		for i, s := range b {
			order.PutUint32(dst[i*4:], math.Float32bits(s))
		}
	}
}

// Close waits for an in-flight Read, which returns within one chunk period.
func (p *portAudioSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	stopErr := p.stream.Stop()
	closeErr := p.stream.Close()
	portaudio.Terminate()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}

// ListPortAudioDevices returns the input-capable PortAudio devices.
func ListPortAudioDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, Wrap(KindConnection, "initialize portaudio", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

