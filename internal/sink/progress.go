package sink

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/pulsetap/internal/audio"
)

// DefaultProgressInterval is how often capture progress is logged.
const DefaultProgressInterval = 2 * time.Second

// progressSink logs how much audio has been captured, at most once per
// interval and again on Close.
type progressSink struct {
	spec     audio.Spec
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	bytes   int64
	lastLog time.Time
}

func NewProgress(spec audio.Spec, interval time.Duration, log zerolog.Logger) Sink {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &progressSink{spec: spec, interval: interval, log: log, now: time.Now}
}

func (p *progressSink) Write(b []byte) (int, error) {
	p.bytes += int64(len(b))

	now := p.now()
	if p.lastLog.IsZero() {
		p.lastLog = now
		return len(b), nil
	}
	if now.Sub(p.lastLog) >= p.interval {
		p.lastLog = now
		p.emit("Capturing")
	}
	return len(b), nil
}

func (p *progressSink) Close() error {
	if p.bytes > 0 {
		p.emit("Capture finished")
	}
	return nil
}

func (p *progressSink) emit(msg string) {
	p.log.Debug().
		Int64("bytes", p.bytes).
		Float64("captured_mb", float64(p.bytes)/1024/1024).
		Dur("audio", p.spec.Duration(p.bytes)).
		Msg(msg)
}
