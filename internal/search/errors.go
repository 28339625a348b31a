package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/shanehull/prospector/internal/apiclient"
)

type Kind int

const (
	KindGeneric Kind = iota
	KindValidation
	KindRateLimited
	KindServer
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindRejected:
		return "rejected"
	default:
		return "generic"
	}
}

const (
	MsgGeneric     = "The search failed. Check your connection and try again."
	MsgRateLimited = "Too many requests. Please wait a moment before searching again."
	MsgServer      = "The search service is temporarily unavailable. Please try again in a few seconds."
	MsgRejected    = "The search request was rejected by the server."
	MsgNoCriteria  = "Enter a search term or pick at least one filter."
)

// Error is what the orchestrator surfaces: a user-facing message plus
// whether trying again can help.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func queryTooShort(min int) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("Enter at least %d characters to search.", min),
	}
}

func classify(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	var ae *apiclient.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apiclient.KindRateLimited:
			msg := MsgRateLimited
			if ae.RetryAfter > 0 {
				msg = fmt.Sprintf("Too many requests. Please wait %s before searching again.", ae.RetryAfter)
			}
			return &Error{Kind: KindRateLimited, Message: msg, Retryable: true, Err: err}
		case apiclient.KindServer:
			return &Error{Kind: KindServer, Message: MsgServer, Retryable: true, Err: err}
		case apiclient.KindClient:
			return &Error{Kind: KindRejected, Message: MsgRejected, Err: err}
		}
	}

	retryable := !errors.Is(err, context.Canceled)
	return &Error{Kind: KindGeneric, Message: MsgGeneric, Retryable: retryable, Err: err}
}
