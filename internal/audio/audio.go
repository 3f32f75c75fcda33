package audio

import "time"

// Source is a blocking capture stream.
type Source interface {
	// Read fills p completely or returns an error. A short read is an error.
	Read(p []byte) error
	// Close releases the stream and its connection. It is safe to call more
	// than once and from another goroutine while Read is blocked.
	Close() error
}

// Device represents an audio input device
type Device struct {
	ID      string
	Name    string
	Default bool
}

// StreamInfo describes one playback stream (a sink input) reported by the server.
type StreamInfo struct {
	Index      uint32
	MediaName  string
	Properties map[string]string
}

// Property returns the named property, or "" when it is not set.
func (s *StreamInfo) Property(key string) string {
	if s == nil || s.Properties == nil {
		return ""
	}
	return s.Properties[key]
}

// OpenOptions configures a capture stream.
type OpenOptions struct {
	Spec       Spec
	Device     string // empty selects the default source
	StreamName string
	ChunkSize  int           // bytes per Read
	Latency    time.Duration // 0 leaves buffering to the server
}
