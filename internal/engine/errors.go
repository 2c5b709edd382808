package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an expected, user-facing command rejection. Every rejected
// command surfaces its kind so the client can explain why.
type Kind string

const (
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindOutOfSequence       Kind = "OUT_OF_SEQUENCE"
	KindBidTooLow           Kind = "BID_TOO_LOW"
	KindInsufficientBudget  Kind = "INSUFFICIENT_BUDGET"
	KindSelfBid             Kind = "SELF_BID"
	KindAuctionClosed       Kind = "AUCTION_CLOSED"
	KindAlreadyClosed       Kind = "ALREADY_CLOSED"
	KindAppealAlreadyActive Kind = "APPEAL_ALREADY_ACTIVE"
	KindNotAuthorized       Kind = "NOT_AUTHORIZED"
	KindAtStart             Kind = "AT_START"
	KindNotFound            Kind = "NOT_FOUND"
)

// Error is a structured rejection returned to callers. Rejections are
// complete no-ops: engine state is untouched when one is returned.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches errors by kind so callers can use errors.Is with the exported
// sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinel values for errors.Is checks.
var (
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrOutOfSequence       = &Error{Kind: KindOutOfSequence}
	ErrBidTooLow           = &Error{Kind: KindBidTooLow}
	ErrInsufficientBudget  = &Error{Kind: KindInsufficientBudget}
	ErrSelfBid             = &Error{Kind: KindSelfBid}
	ErrAuctionClosed       = &Error{Kind: KindAuctionClosed}
	ErrAlreadyClosed       = &Error{Kind: KindAlreadyClosed}
	ErrAppealAlreadyActive = &Error{Kind: KindAppealAlreadyActive}
	ErrNotAuthorized       = &Error{Kind: KindNotAuthorized}
	ErrAtStart             = &Error{Kind: KindAtStart}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

// KindOf extracts the rejection kind from an error, or "" for
// infrastructure failures that carry no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
