// Package errkind provides the closed error taxonomy of trustcore. The
// credential, kms, resolver, revocation, statuslist, audit, trustscore
// and configuration packages return errors wrapping one of the
// sentinels declared here, recoverable with errors.Is. The canon,
// cryptoutil and multicodec packages return plain fmt errors that
// carry no sentinel.
package errkind

import (
	"errors"
	"fmt"
)

// Sentinels. These are the only error kinds a public trustcore
// operation may surface; see spec §7.
var (
	ErrInvalidInput         = errors.New("invalid_input")
	ErrInvalidDID           = errors.New("invalid_did")
	ErrNotFound             = errors.New("not_found")
	ErrMethodNotSupported   = errors.New("method_not_supported")
	ErrNetwork              = errors.New("network_error")
	ErrTimeout              = errors.New("timeout")
	ErrCanonicalization     = errors.New("canonicalization_error")
	ErrBadSignature         = errors.New("bad_signature")
	ErrExpired              = errors.New("expired")
	ErrRevoked              = errors.New("revoked")
	ErrIssuerDeactivated    = errors.New("issuer_deactivated")
	ErrKeyNotFound          = errors.New("key_not_found")
	ErrKeyDisabled          = errors.New("key_disabled")
	ErrKMSUnavailable       = errors.New("kms_unavailable")
	ErrListExhausted        = errors.New("list_exhausted")
	ErrChainBroken          = errors.New("chain_broken")
	ErrInternal             = errors.New("internal_error")
	ErrNotSupported         = errors.New("not_supported")
)

// CoreError is the stable {code, message, cause} envelope required of
// every public operation (spec §6.6). Code() always returns one of the
// sentinel strings above.
type CoreError struct {
	kind    error
	message string
	cause   error
}

// New builds a CoreError wrapping kind with a formatted message.
func New(kind error, format string, args ...any) *CoreError {
	return &CoreError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap builds a CoreError wrapping kind, carrying cause as the nested
// error chain.
func Wrap(kind error, cause error, format string, args ...any) *CoreError {
	return &CoreError{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

// Code returns the stable error-kind string, e.g. "not_found".
func (e *CoreError) Code() string {
	if e == nil || e.kind == nil {
		return ""
	}
	return e.kind.Error()
}

func (e *CoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code(), e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code(), e.message)
}

// Unwrap exposes only the sentinel kind to errors.Is/errors.As; the
// wrapped cause is not in the chain and is reached through Cause().
func (e *CoreError) Unwrap() error {
	return e.kind
}

// Cause returns the nested error that triggered this one, if any.
func (e *CoreError) Cause() error {
	return e.cause
}

// Is reports whether target matches this error's kind sentinel, so
// errors.Is(err, errkind.ErrNotFound) succeeds against a *CoreError.
func (e *CoreError) Is(target error) bool {
	return errors.Is(e.kind, target)
}

// Recoverable reports whether the error kind permits a caller retry,
// per the propagation policy in spec §7: network/timeout errors are
// recoverable, everything else is terminal.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// Terminal reports whether the error kind marks a credential as
// untrustworthy with no retry path.
func Terminal(err error) bool {
	return errors.Is(err, ErrBadSignature) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrIssuerDeactivated)
}
