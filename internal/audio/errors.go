package audio

import "errors"

// Kind classifies audio errors.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindEnumeration
	KindRead
	KindFormat
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindEnumeration:
		return "enumeration error"
	case KindRead:
		return "read error"
	case KindFormat:
		return "format error"
	}
	return "audio error"
}

// Error carries the failing operation and the library diagnostic.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels for errors.Is.
var (
	ErrConnection  = &Error{Kind: KindConnection}
	ErrEnumeration = &Error{Kind: KindEnumeration}
	ErrRead        = &Error{Kind: KindRead}
	ErrFormat      = &Error{Kind: KindFormat}
)

// ErrClosed is returned by reads on a released source.
var ErrClosed = errors.New("audio source closed")

// Wrap returns err classified as kind. A nil err still yields an error.
func Wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	var msg string
	if e.Err != nil {
		msg = e.Err.Error()
	} else {
		msg = e.Kind.String()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
