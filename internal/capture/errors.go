package capture

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory represents the classification of GStreamer errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates network-related failures (connection, timeout, DNS)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec indicates codec/stream failures (decode errors, format issues)
	ErrCategoryCodec
	// ErrCategoryResource indicates local resource failures (missing file, permissions)
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Retryable reports whether reconnecting may clear the error. Only network
// failures of live sources qualify.
func (e ErrorCategory) Retryable() bool {
	return e == ErrCategoryNetwork
}

var (
	resourceKeywords = []string{
		"no such file",
		"could not open",
		"resource not found",
		"permission denied",
		"not a valid uri",
		"no uri handler",
	}

	codecKeywords = []string{
		"codec",
		"decode",
		"format",
		"negotiation",
		"not negotiated",
		"caps",
		"h264",
		"h265",
		"no decoder",
		"missing plugin",
	}

	networkKeywords = []string{
		"connection",
		"timeout",
		"unreachable",
		"network",
		"dns",
		"resolve",
		"socket",
		"tcp",
		"udp",
		"rtsp",
		"could not connect",
		"failed to connect",
	}
)

// ClassifyGStreamerError categorizes a bus error for telemetry.
//
// go-gst's GError does not expose its domain, so classification relies on
// the message and debug strings.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return Classify(gerr.Error(), gerr.DebugString())
}

// Classify categorizes an error from its message and debug text. Resource
// errors are checked first (most specific), network last (most generic).
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
