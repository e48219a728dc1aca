package auth

import "errors"

// Kind classifies an Error for translation at the transport boundary.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindAuthentication
	KindForbidden
	KindNotFound
)

// Error is a domain error with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and message, so wrapped copies of a
// sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

var (
	ErrEmailTaken          = &Error{Kind: KindConflict, Message: "email already in use"}
	ErrUsernameTaken       = &Error{Kind: KindConflict, Message: "username already in use"}
	ErrEmailNotRegistered  = &Error{Kind: KindConflict, Message: "email is not registered"}
	ErrBadCredentials      = &Error{Kind: KindAuthentication, Message: "invalid email or password"}
	ErrInvalidOTP          = &Error{Kind: KindAuthentication, Message: "OTP is invalid or expired"}
	ErrInvalidRefreshToken = &Error{Kind: KindAuthentication, Message: "refresh token is invalid"}
	ErrDeviceMismatch      = &Error{Kind: KindAuthentication, Message: "device does not match refresh token"}
	ErrTokenInvalid        = &Error{Kind: KindAuthentication, Message: "token invalid"}
	ErrTokenExpired        = &Error{Kind: KindAuthentication, Message: "token expired"}
	ErrIdentityRejected    = &Error{Kind: KindAuthentication, Message: "external identity could not be verified"}
	ErrWrongPassword       = &Error{Kind: KindForbidden, Message: "old password is incorrect"}
	ErrAccountNotFound     = &Error{Kind: KindNotFound, Message: "account not found"}
	ErrMalformedAuthHeader = &Error{Kind: KindValidation, Message: "authorization header must be a bearer token"}
	ErrUnknownOtpPurpose   = &Error{Kind: KindValidation, Message: "unknown OTP purpose"}
)

// ValidationError builds a KindValidation error with msg.
func ValidationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// KindOf reports the Kind of err, or 0 when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}
