package service

import "errors"

// Expected, user-facing conditions. Store and channel faults are wrapped
// with operation context instead and surface as plain errors.
var (
	// ErrRateLimited: the identifier exhausted its issuance allowance
	// for the current window.
	ErrRateLimited = errors.New("too many code requests")

	// ErrOTPNotFound: no live code for the identifier — never issued,
	// already used, or expired.
	ErrOTPNotFound = errors.New("otp expired or not found")

	// ErrTooManyAttempts: the code record was discarded after the
	// attempt limit was reached.
	ErrTooManyAttempts = errors.New("maximum verification attempts exceeded")

	// ErrInvalidOTP: submitted code did not match; the attempt was
	// counted.
	ErrInvalidOTP = errors.New("invalid otp")
)
