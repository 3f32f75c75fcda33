package sink

import (
	"math"

	"github.com/petems/pulsetap/internal/audio"
)

// DefaultAverageWindow is 100ms at 48kHz.
const DefaultAverageWindow = 4800

type meterSink struct {
	spec   audio.Spec
	window int
	report func(avg float32)

	sum   float64
	count int
}

// NewMeter computes the mean absolute amplitude of the downmixed signal over
// consecutive windows of frames and passes each result to report.
func NewMeter(spec audio.Spec, window int, report func(avg float32)) Sink {
	if window <= 0 {
		window = DefaultAverageWindow
	}
	return &meterSink{spec: spec, window: window, report: report}
}

func (m *meterSink) Write(p []byte) (int, error) {
	frames, err := audio.Mono(m.spec, p)
	if err != nil {
		return 0, err
	}
	for _, v := range frames {
		m.sum += math.Abs(float64(v))
		m.count++
		if m.count == m.window {
			m.report(float32(m.sum / float64(m.count)))
			m.sum, m.count = 0, 0
		}
	}
	return len(p), nil
}

// Close drops a partial window.
func (m *meterSink) Close() error { return nil }
