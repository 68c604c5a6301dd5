package origin

import (
	"errors"
	"fmt"
)

// ErrFetchFailed is wrapped by every error a fetch reports, so callers can
// tell a failed download apart from a valid but empty translation set.
var ErrFetchFailed = errors.New("translation fetch failed")

// Kind classifies why a fetch failed.
type Kind int

const (
	// NetworkTransient covers transport problems: open and read timeouts
	// (retried up to the configured bounds), refused connections, broken reads.
	NetworkTransient Kind = iota
	// OriginRejected is any status other than 200 and 304. Never retried.
	OriginRejected
	// MalformedPayload means the body could not be parsed. Never retried.
	MalformedPayload
)

func (k Kind) String() string {
	switch k {
	case NetworkTransient:
		return "network"
	case OriginRejected:
		return "rejected"
	case MalformedPayload:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FetchError describes a failed origin request.
type FetchError struct {
	Kind   Kind
	Path   string
	Status int // zero when no response was received
	Cause  error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s failed (%s", e.Path, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(", status %d", e.Status)
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Cause}
}

// IsKind reports whether err is a FetchError of kind k.
func IsKind(err error, k Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == k
}
