// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gov

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies every rejected operation. Each error produced by the
// engine is attributable to exactly one kind, so audit consumers never see
// an unclassified failure.
type Kind uint8

const (
	// KindEligibility - rejected before mutation, caller not eligible or
	// the entity not in a state accepting the operation.
	KindEligibility Kind = iota + 1
	// KindBounds - value outside configured bounds, or unknown parameter.
	KindBounds
	// KindTiming - operation attempted outside its time window.
	KindTiming
	// KindExecution - an action batch failed and rolled back. The only kind
	// with a retry affordance; retries are caller-initiated.
	KindExecution
	// KindAuthorization - caller lacks the required role or signatures.
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindEligibility:
		return "eligibility"
	case KindBounds:
		return "bounds"
	case KindTiming:
		return "timing"
	case KindExecution:
		return "execution"
	case KindAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// Error is a classified governance error.
type Error struct {
	kind Kind
	code string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.code)
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns the stable error code, e.g. "BelowThreshold".
func (e *Error) Code() string {
	return e.code
}

// Sentinel errors of the engine. Call sites attach detail via
// errors.WithMessage, keeping the sentinel as the cause.
var (
	ErrBelowThreshold    = &Error{KindEligibility, "BelowThreshold"}
	ErrEmptyProposal     = &Error{KindEligibility, "EmptyProposal"}
	ErrTooManyActions    = &Error{KindEligibility, "TooManyActions"}
	ErrNotActive         = &Error{KindEligibility, "NotActive"}
	ErrAlreadyVoted      = &Error{KindEligibility, "AlreadyVoted"}
	ErrInvalidDelegate   = &Error{KindEligibility, "InvalidDelegate"}
	ErrUnknownProposal   = &Error{KindEligibility, "UnknownProposal"}
	ErrAlreadyQueued     = &Error{KindEligibility, "AlreadyQueued"}
	ErrNotQueued         = &Error{KindEligibility, "NotQueued"}
	ErrNotSucceeded      = &Error{KindEligibility, "NotSucceeded"}
	ErrNotCancelable     = &Error{KindEligibility, "NotCancelable"}
	ErrIllegalTransition = &Error{KindEligibility, "IllegalTransition"}
	ErrUnknownEmergency  = &Error{KindEligibility, "UnknownEmergencyAction"}
	ErrInvalidSupport    = &Error{KindEligibility, "InvalidSupport"}
	ErrPaused            = &Error{KindEligibility, "Paused"}

	ErrUnderflow        = &Error{KindBounds, "Underflow"}
	ErrOutOfBounds      = &Error{KindBounds, "OutOfBounds"}
	ErrUnknownParameter = &Error{KindBounds, "UnknownParameter"}

	ErrTooEarly = &Error{KindTiming, "TooEarly"}
	ErrExpired  = &Error{KindTiming, "Expired"}

	ErrActionFailed = &Error{KindExecution, "ActionFailed"}

	ErrNotAuthorized          = &Error{KindAuthorization, "NotAuthorized"}
	ErrInsufficientSignatures = &Error{KindAuthorization, "InsufficientSignatures"}
	ErrNotEmergencyEligible   = &Error{KindAuthorization, "NotEmergencyEligible"}
)

// KindOf returns the classification of err, or 0 if err carries none.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.kind
	}
	return 0
}

// CodeOf returns the stable code of err, or "" if err carries none.
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.code
	}
	return ""
}

// Is reports whether err is (or wraps) the given sentinel.
func Is(err error, sentinel *Error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge == sentinel
	}
	return false
}
