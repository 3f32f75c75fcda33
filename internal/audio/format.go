package audio

import (
	"fmt"
	"strings"
	"time"
)

// Format is a raw sample encoding.
type Format int

const (
	FormatInvalid Format = iota
	FormatU8
	FormatS16LE
	FormatS16BE
	FormatS32LE
	FormatS32BE
	FormatF32LE
	FormatF32BE
)

var formatNames = map[Format]string{
	FormatU8:    "u8",
	FormatS16LE: "s16le",
	FormatS16BE: "s16be",
	FormatS32LE: "s32le",
	FormatS32BE: "s32be",
	FormatF32LE: "f32le",
	FormatF32BE: "f32be",
}

// PulseAudio wire codes (pa_sample_format_t).
var pulseCodes = map[Format]byte{
	FormatU8:    0,
	FormatS16LE: 3,
	FormatS16BE: 4,
	FormatF32LE: 5,
	FormatF32BE: 6,
	FormatS32LE: 7,
	FormatS32BE: 8,
}

// ParseFormat parses a format name such as "s16le". Matching is case-insensitive.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatInvalid, Wrap(KindFormat, "parse sample format", fmt.Errorf("unknown format %q", s))
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Valid reports whether f is a known encoding.
func (f Format) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

func (f Format) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16LE, FormatS16BE:
		return 2
	case FormatS32LE, FormatS32BE, FormatF32LE, FormatF32BE:
		return 4
	}
	return 0
}

func (f Format) BigEndian() bool {
	return f == FormatS16BE || f == FormatS32BE || f == FormatF32BE
}

func (f Format) Float() bool {
	return f == FormatF32LE || f == FormatF32BE
}

// PulseCode returns the PulseAudio sample format code for f.
func (f Format) PulseCode() byte {
	return pulseCodes[f]
}

// Spec describes the byte layout of captured audio.
type Spec struct {
	Format   Format
	Rate     int
	Channels int
}

// DefaultSpec is 16-bit little-endian stereo at 44.1 kHz.
func DefaultSpec() Spec {
	return Spec{Format: FormatS16LE, Rate: 44100, Channels: 2}
}

const (
	maxRate     = 384000
	maxChannels = 32
)

func (s Spec) Validate() error {
	switch {
	case !s.Format.Valid():
		return Wrap(KindFormat, "validate sample spec", fmt.Errorf("invalid format %s", s.Format))
	case s.Rate <= 0 || s.Rate > maxRate:
		return Wrap(KindFormat, "validate sample spec", fmt.Errorf("rate %d out of range 1..%d", s.Rate, maxRate))
	case s.Channels <= 0 || s.Channels > maxChannels:
		return Wrap(KindFormat, "validate sample spec", fmt.Errorf("channel count %d out of range 1..%d", s.Channels, maxChannels))
	}
	return nil
}

// FrameSize is the number of bytes holding one sample for every channel.
func (s Spec) FrameSize() int {
	return s.Format.BytesPerSample() * s.Channels
}

// Duration returns the playback time of n bytes.
func (s Spec) Duration(n int64) time.Duration {
	fs := s.FrameSize()
	if fs == 0 || s.Rate == 0 {
		return 0
	}
	frames := n / int64(fs)
	return time.Duration(frames) * time.Second / time.Duration(s.Rate)
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %dHz %dch", s.Format, s.Rate, s.Channels)
}
