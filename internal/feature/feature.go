// Package feature resolves the optional capture features a run enables.
// Enabling a feature also enables the features it depends on, with default
// settings unless they were configured explicitly.
package feature

import (
	"fmt"
	"math/bits"
	"strings"
)

type Flag uint32

const (
	None Flag = 0
	Raw  Flag = 1 << 0
	// 1 << 1 is reserved for default device change notifications.
	MovingAverage Flag = 1 << 2
)

// DefaultBufferLatency is the raw feature's target latency in microseconds.
const DefaultBufferLatency = 5000

type Feature struct {
	Flag Flag
	// BufferLatency applies to Raw only, in microseconds.
	BufferLatency uint32
}

// Default returns flag with its default settings.
func Default(flag Flag) (Feature, error) {
	switch flag {
	case Raw:
		return Feature{Flag: Raw, BufferLatency: DefaultBufferLatency}, nil
	case MovingAverage:
		return Feature{Flag: MovingAverage}, nil
	}
	return Feature{}, fmt.Errorf("feature flag %d has no default", flag)
}

// Parse maps a feature name to its defaults.
func Parse(name string) (Feature, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "raw":
		return Default(Raw)
	case "moving_average", "moving-average":
		return Default(MovingAverage)
	}
	return Feature{}, fmt.Errorf("unknown feature %q", name)
}

func (f Feature) Dependencies() Flag {
	if f.Flag == MovingAverage {
		return Raw
	}
	return None
}

func (f Feature) String() string {
	return f.Flag.String()
}

func (f Flag) String() string {
	switch f {
	case None:
		return "none"
	case Raw:
		return "raw"
	case MovingAverage:
		return "moving_average"
	}
	return fmt.Sprintf("flag(%d)", uint32(f))
}

type Store struct {
	features map[Flag]Feature
	enabled  Flag
}

func NewStore() *Store {
	return &Store{features: make(map[Flag]Feature)}
}

// Set replaces the enabled features.
func (s *Store) Set(features []Feature) error {
	s.features = make(map[Flag]Feature, len(features))
	s.enabled = None

	for _, f := range features {
		s.enabled |= f.Flag | f.Dependencies()
		s.features[f.Flag] = f
	}

	for rest := s.enabled; rest != 0; rest &= rest - 1 {
		flag := Flag(1) << bits.TrailingZeros32(uint32(rest))
		if _, ok := s.features[flag]; ok {
			continue
		}
		f, err := Default(flag)
		if err != nil {
			return err
		}
		s.features[flag] = f
	}
	return nil
}

// Get returns the settings of an enabled feature.
func (s *Store) Get(flag Flag) (Feature, bool) {
	f, ok := s.features[flag]
	return f, ok
}

func (s *Store) Contains(flag Flag) bool {
	return s.enabled&flag != 0
}

// Enabled lists enabled features in flag order.
func (s *Store) Enabled() []Feature {
	var out []Feature
	for rest := s.enabled; rest != 0; rest &= rest - 1 {
		flag := Flag(1) << bits.TrailingZeros32(uint32(rest))
		out = append(out, s.features[flag])
	}
	return out
}

// ParseList parses names and resolves them into a store.
func ParseList(names []string) (*Store, error) {
	features := make([]Feature, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		f, err := Parse(n)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	s := NewStore()
	if err := s.Set(features); err != nil {
		return nil, err
	}
	return s, nil
}
