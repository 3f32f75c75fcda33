package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Samples decodes interleaved raw samples into floats in [-1, 1].
func Samples(f Format, p []byte) ([]float32, error) {
	size := f.BytesPerSample()
	if size == 0 {
		return nil, Wrap(KindFormat, "decode samples", fmt.Errorf("invalid format %s", f))
	}
	if len(p)%size != 0 {
		return nil, Wrap(KindFormat, "decode samples", fmt.Errorf("%d bytes is not a whole number of %s samples", len(p), f))
	}

	var order binary.ByteOrder = binary.LittleEndian
	if f.BigEndian() {
		order = binary.BigEndian
	}

	out := make([]float32, len(p)/size)
	for i := range out {
		b := p[i*size : (i+1)*size]
		switch f {
		case FormatU8:
			out[i] = (float32(b[0]) - 128) / 128
		case FormatS16LE, FormatS16BE:
			out[i] = float32(int16(order.Uint16(b))) / 32768
		case FormatS32LE, FormatS32BE:
			out[i] = float32(float64(int32(order.Uint32(b))) / 2147483648)
		case FormatF32LE, FormatF32BE:
			out[i] = math.Float32frombits(order.Uint32(b))
		}
	}
	return out, nil
}

// Mono decodes p and averages its channels into one sample per frame.
func Mono(spec Spec, p []byte) ([]float32, error) {
	samples, err := Samples(spec.Format, p)
	if err != nil {
		return nil, err
	}
	if len(samples)%spec.Channels != 0 {
		return nil, Wrap(KindFormat, "downmix", fmt.Errorf("%d samples do not fill %d-channel frames", len(samples), spec.Channels))
	}
	return downmixInterleaved(samples, spec.Channels, len(samples)/spec.Channels), nil
}

func downmixInterleaved(input []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels <= 1 {
		copy(out, input)
		return out
	}
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += input[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
