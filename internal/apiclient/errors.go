package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindRateLimited
	KindServer
	KindClient
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by every Client call that did not produce a decoded 2xx body.
type Error struct {
	Kind       Kind
	Method     string
	Path       string
	StatusCode int
	RetryAfter time.Duration // only set for KindRateLimited
	Body       string        // truncated response body, if any
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimited, KindServer:
		return true
	}
	return false
}

// KindOf returns the classification of err, or KindUnknown if it did not
// come from a Client.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindClient
	}
	return KindUnknown
}

// parseRetryAfter understands the delta-seconds form only; HTTP dates are rare
// from API gateways and fall back to zero.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
