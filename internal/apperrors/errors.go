package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport/consumer boundary.
type Kind int

const (
	// KindBadRequest is a caller mistake. Surfaced as 4xx, never retried.
	KindBadRequest Kind = iota
	// KindConflict is a benign idempotency collision. Logged and swallowed
	// at the consumer boundary so duplicate deliveries don't poison the queue.
	KindConflict
	// KindRetryable signals the caller to redeliver with backoff
	// (confirmations not reached yet, hash not visible on chain).
	KindRetryable
	// KindInternal is an invariant violation or downstream failure.
	// Surfaced as 5xx and alerted, never silently recovered.
	KindInternal
)

// Stable machine-readable codes.
const (
	CodeMismatchAmount                  = "MISMATCH_AMOUNT"
	CodeMismatchTokenHolder             = "MISMATCH_TOKEN_HOLDER"
	CodeAmountOutOfBounds               = "AMOUNT_OUT_OF_BOUNDS"
	CodeInvalidAddress                  = "INVALID_ADDRESS"
	CodeInvalidSignature                = "INVALID_SIGNATURE"
	CodeSignatureExpired                = "SIGNATURE_EXPIRED"
	CodeInsufficientLiquidity           = "INSUFFICIENT_LIQUIDITY"
	CodeClaimNotAllowed                 = "CLAIM_NOT_ALLOWED"
	CodeUnsupportedChainPair            = "UNSUPPORTED_CHAIN_PAIR"
	CodeUnexpectedEvent                 = "UNEXPECTED_EVENT"
	CodeInvalidPayload                  = "INVALID_PAYLOAD"
	CodeTransactionAlreadyProcessed     = "TRANSACTION_ALREADY_PROCESSED"
	CodeActivityEventNotMatching        = "ACTIVITY_EVENT_NOT_MATCHING"
	CodeExistingTransactionNotSucceeded = "EXISTING_TRANSACTION_NOT_SUCCEEDED"
	CodeBlockConfirmationNotEnough      = "BLOCK_CONFIRMATION_NOT_ENOUGH"
	CodeTransactionNotFound             = "TRANSACTION_NOT_FOUND"
	CodeTransactionWronglyCreated       = "TRANSACTION_WRONGLY_CREATED"
	CodeWalletPairNotExists             = "WALLET_PAIR_NOT_EXISTS"
	CodeConversionNotFound              = "CONVERSION_NOT_FOUND"
	CodeMissingReferenceData            = "MISSING_REFERENCE_DATA"
	CodeChainUnavailable                = "CHAIN_UNAVAILABLE"
	CodeQueuePublishFailed              = "QUEUE_PUBLISH_FAILED"
)

// Error is the typed error carried across service boundaries.
type Error struct {
	Kind Kind   `json:"-"`
	Code string `json:"code"`
	Msg  string `json:"message"`
	Err  error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func BadRequest(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Retryable(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindRetryable, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Internal(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an internal error.
func Wrap(err error, code, msg string) *Error {
	return &Error{Kind: KindInternal, Code: code, Msg: msg, Err: err}
}

// KindOf reports the classification of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code, or empty for untyped errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsRetryable(err error) bool { return err != nil && KindOf(err) == KindRetryable }

func IsConflict(err error) bool { return err != nil && KindOf(err) == KindConflict }

func IsBadRequest(err error) bool { return err != nil && KindOf(err) == KindBadRequest }
