// Package errs defines the rejection taxonomy shared by every vault
// operation. Reasons are stable strings that clients pattern-match on.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation was rejected.
type Kind string

const (
	KindAuthorization       Kind = "AuthorizationError"
	KindInsufficientBalance Kind = "InsufficientBalanceError"
	KindStaleOracle         Kind = "StaleOracleError"
	KindInvalidProof        Kind = "InvalidProofError"
	KindConfiguration       Kind = "ConfigurationError"
	KindNotFound            Kind = "NotFoundError"
	KindInvalidArgument     Kind = "InvalidArgumentError"
	KindOracle              Kind = "OracleError"
	KindInternal            Kind = "InternalError"
)

// Stable reasons.
const (
	ReasonNotOwner                  = "not owner"
	ReasonNotParentOrOwner          = "not parent/owner"
	ReasonNotPermitted              = "not permitted"
	ReasonNotAllowed                = "not allowed"
	ReasonInsurerBalanceLow         = "insurer balance low"
	ReasonInsufficientPayment       = "insufficient payment"
	ReasonPaymentTooSmall           = "payment too small"
	ReasonInsufficientContractFunds = "insufficient contract balance"
	ReasonStaleOracle               = "stale oracle"
	ReasonZeroPrice                 = "zero price"
	ReasonOracleUnavailable         = "oracle unavailable"
	ReasonProofInvalid              = "proof invalid"
	ReasonProofReplayed             = "proof replayed"
	ReasonReceiptMismatch           = "receipt mismatch"
	ReasonNativeDisabled            = "native payments not configured"
	ReasonNoInsurer                 = "no insurer bound"
	ReasonRecordNotFound            = "record not found"
	ReasonFDCNotSet                 = "FDC not set"
	ReasonFTSONotSet                = "FTSO not set"
	ReasonCollectorNotSet           = "fee collector not set"
	ReasonTransferFailed            = "transfer failed"
	ReasonZeroAmount                = "zero amount"
	ReasonZeroAddress               = "zero address"
	ReasonInvalidPointer            = "invalid pointer uri"
	ReasonInvalidKind               = "invalid document kind"
	ReasonNotInitialized            = "vault not initialized"
	ReasonAlreadyInitialized        = "vault already initialized"
)

// Error is a rejected operation. Err, when set, is the infrastructure cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Reason when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Kind-only sentinels for errors.Is.
var (
	ErrAuthorization       = &Error{Kind: KindAuthorization}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrStaleOracle         = &Error{Kind: KindStaleOracle}
	ErrInvalidProof        = &Error{Kind: KindInvalidProof}
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrOracle              = &Error{Kind: KindOracle}
	ErrInternal            = &Error{Kind: KindInternal}
)

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Authorization(reason string) *Error       { return New(KindAuthorization, reason) }
func InsufficientBalance(reason string) *Error { return New(KindInsufficientBalance, reason) }
func InvalidProof(reason string) *Error        { return New(KindInvalidProof, reason) }
func Configuration(reason string) *Error       { return New(KindConfiguration, reason) }
func NotFound(reason string) *Error            { return New(KindNotFound, reason) }
func InvalidArgument(reason string) *Error     { return New(KindInvalidArgument, reason) }

// Internal wraps an infrastructure failure (storage, encoding).
func Internal(reason string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, Err: err}
}

// Oracle wraps a failed oracle read.
func Oracle(reason string, err error) *Error {
	return &Error{Kind: KindOracle, Reason: reason, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the stable reason of err, or err.Error() for foreign errors.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
