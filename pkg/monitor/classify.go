package monitor

import (
	"context"
	"errors"
	"strings"

	"github.com/apptwatch/apptwatch/pkg/automation"
)

// ErrorKind classifies a navigation failure for recovery purposes.
type ErrorKind string

const (
	// KindTransientBrowser means the browser's current context or process
	// is unusable. Recovery is a browser restart before the next attempt.
	KindTransientBrowser ErrorKind = "transient-browser"

	// KindTransientNetwork means the page or network misbehaved while the
	// browser itself is fine. Recovery is a plain backoff retry.
	KindTransientNetwork ErrorKind = "transient-network"

	// KindFatal means retrying cannot help; the error propagates
	// immediately.
	KindFatal ErrorKind = "fatal"
)

// ClassifiedError carries an explicit kind through wrapping. Code that
// already knows how an error should be treated wraps it once; Classify
// honors it ahead of text matching.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Fatal marks an error as non-retryable.
func Fatal(err error) error {
	return &ClassifiedError{Kind: KindFatal, Err: err}
}

// browserFaultMarkers match driver errors that indicate a dead or corrupted
// browser context. Matching is deliberately on error text: the driver
// library reports protocol-level failures as opaque strings.
var browserFaultMarkers = []string{
	"target closed",
	"target crashed",
	"browser has been closed",
	"context was destroyed",
	"execution context was destroyed",
	"protocol error",
	"connection closed",
	"browser closed",
	"websocket",
}

var fatalMarkers = []string{
	"invalid url",
	"malformed url",
}

// Classify maps a failure to its recovery category. Unrecognized errors
// are treated as transient network failures: a plain retry is the safest
// default against a flaky external site.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTransientNetwork
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientNetwork
	}
	if errors.Is(err, automation.ErrNotRunning) {
		return KindTransientBrowser
	}

	text := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(text, marker) {
			return KindFatal
		}
	}
	for _, marker := range browserFaultMarkers {
		if strings.Contains(text, marker) {
			return KindTransientBrowser
		}
	}
	return KindTransientNetwork
}
