// Package failure holds the error taxonomy shared by the scraping pipeline.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type Kind string

const (
	KindDiscoveryFailed  Kind = "discovery_failed"
	KindExtractionFailed Kind = "extraction_failed"
	KindTimeout          Kind = "timeout"
	KindBotDetected      Kind = "bot_detected"
	KindNotFound         Kind = "not_found"
	KindRetriesExhausted Kind = "retries_exhausted"
	KindNavigation       Kind = "navigation_error"
	KindCancelled        Kind = "cancelled"
	KindUnknownPortal    Kind = "unknown_portal"
	KindUnknown          Kind = "unknown"
)

// Error is a classified pipeline failure. Permanent marks failures that must
// not be retried even though their kind usually is (explicit bans, malformed
// URLs).
type Error struct {
	Kind       Kind
	URL        string
	Status     int
	Permanent  bool
	Attempts   int
	Strategies []string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	if len(e.Strategies) > 0 {
		fmt.Fprintf(&b, " [tried %s]", strings.Join(e.Strategies, ", "))
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

// Timeout wraps err as a retryable timeout.
func Timeout(url string, err error) *Error {
	return &Error{Kind: KindTimeout, URL: url, Err: err}
}

// BotDetected reports a challenge page. A permanent challenge is an explicit
// ban and is not retried.
func BotDetected(url, reason string, permanent bool) *Error {
	return &Error{Kind: KindBotDetected, URL: url, Permanent: permanent, Err: errors.New(reason)}
}

// FromStatus classifies an HTTP status returned by a navigation. It returns
// nil for 2xx/3xx.
func FromStatus(url string, status int) error {
	switch {
	case status == 0 || status < 400:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return &Error{Kind: KindNotFound, URL: url, Status: status, Permanent: true}
	case status == http.StatusForbidden:
		return &Error{Kind: KindBotDetected, URL: url, Status: status, Err: errors.New("forbidden")}
	case status == http.StatusTooManyRequests, status >= 500:
		return &Error{Kind: KindNavigation, URL: url, Status: status}
	default:
		return &Error{Kind: KindNavigation, URL: url, Status: status, Permanent: true}
	}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnknown
}

// CauseOf returns the kind of the innermost classified error, which for
// retries_exhausted is the failure of the last attempt.
func CauseOf(err error) Kind {
	if fe := CauseError(err); fe != nil {
		return fe.Kind
	}
	return KindOf(err)
}

// CauseError returns the innermost *Error in err's chain, or nil.
func CauseError(err error) *Error {
	var cause *Error
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			break
		}
		cause = fe
		err = fe.Err
	}
	return cause
}

// Retryable reports whether another attempt could succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Permanent {
			return false
		}
		switch fe.Kind {
		case KindTimeout, KindBotDetected, KindNavigation:
			return true
		}
		return false
	}
	return KindOf(err) == KindTimeout
}

// Throttling reports whether err means the target is pushing back on our
// request rate.
func Throttling(err error) bool {
	fe := CauseError(err)
	if fe == nil {
		return false
	}
	if fe.Kind == KindBotDetected {
		return true
	}
	return fe.Status == http.StatusTooManyRequests || fe.Status == http.StatusServiceUnavailable
}

// IsBotDetected is true when err or its cause is a bot challenge.
func IsBotDetected(err error) bool {
	return KindOf(err) == KindBotDetected || CauseOf(err) == KindBotDetected
}
