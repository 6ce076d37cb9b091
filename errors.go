package hyperlane

import "errors"

var (
	ErrMalformedMessage       = errors.New("malformed message")
	ErrWrongDestination       = errors.New("wrong destination")
	ErrAlreadyProcessed       = errors.New("message already processed")
	ErrUntrustedVerifier      = errors.New("untrusted verifier")
	ErrThresholdNotMet        = errors.New("signature threshold not met")
	ErrBindingMismatch        = errors.New("verification not bound to message")
	ErrRecipientNotExercised  = errors.New("recipient not exercised")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrCustomVerifierDisabled = errors.New("custom verifier is disabled")

	ErrRecordNotFound        = errors.New("record not found")
	ErrRecordAlreadyConsumed = errors.New("record already consumed")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrStuck                 = errors.New("message stuck")
)

// IsRetryable reports whether err is a transient discovery or contention
// failure. Authenticity and validation failures are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrRecordAlreadyConsumed)
}

// IsSecurityRelevant reports whether err is a rejection operators must see.
func IsSecurityRelevant(err error) bool {
	return errors.Is(err, ErrUntrustedVerifier) ||
		errors.Is(err, ErrThresholdNotMet) ||
		errors.Is(err, ErrBindingMismatch) ||
		errors.Is(err, ErrWrongDestination) ||
		errors.Is(err, ErrMalformedMessage)
}
