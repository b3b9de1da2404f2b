package qobuz

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by API calls made before InitializeClient succeeded.
var ErrNotAuthenticated = errors.New("qobuz client is not authenticated")

// InvalidURLError is returned when a URL does not point at a Qobuz album, artist,
// track, playlist or label.
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid qobuz url %q", e.URL)
}

// AuthenticationError represents a rejected login (HTTP 401).
type AuthenticationError struct {
	Operation string // The operation that required authentication
	Err       error  // Underlying error, if any
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// InvalidAppIDError is returned when the API refuses the app id (HTTP 400 on login).
type InvalidAppIDError struct {
	AppID string
	Err   error
}

func (e *InvalidAppIDError) Error() string {
	return fmt.Sprintf("invalid app id %q", e.AppID)
}

func (e *InvalidAppIDError) Unwrap() error {
	return e.Err
}

// InvalidAppSecretError is returned when the API refuses a request signature (HTTP 400
// on track/getFileUrl), or when none of the known secrets signs requests.
type InvalidAppSecretError struct {
	Err error
}

func (e *InvalidAppSecretError) Error() string {
	return "invalid app secret"
}

func (e *InvalidAppSecretError) Unwrap() error {
	return e.Err
}

// IneligibleError is returned for accounts that are not allowed to stream (free accounts).
type IneligibleError struct {
	Email string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("account %s is not eligible to download tracks", e.Email)
}

// InvalidQualityError is returned for a quality id outside 5, 6, 7 and 27.
type InvalidQualityError struct {
	Quality Quality
}

func (e *InvalidQualityError) Error() string {
	return fmt.Sprintf("invalid quality id %d: choose between 5, 6, 7 or 27", int(e.Quality))
}

// NotStreamableError is returned for releases Qobuz does not allow to stream.
type NotStreamableError struct {
	ID    string
	Title string
}

func (e *NotStreamableError) Error() string {
	return fmt.Sprintf("release %s (%s) is not available for streaming", e.ID, e.Title)
}

// BundleError is returned when the web player bundle does not contain the expected tokens.
type BundleError struct {
	Reason string
	Err    error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("unable to read web player bundle: %s", e.Reason)
}

func (e *BundleError) Unwrap() error {
	return e.Err
}

// NetworkError represents network failures and API errors. StatusCode is 0 when
// the request never got a response.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "album/get", "download_track")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the API or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}
	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// skippable reports whether err only affects the current release, so a
// collection download can log it and move on.
func skippable(err error) bool {
	var (
		netErr        *NetworkError
		streamableErr *NotStreamableError
	)
	return errors.As(err, &netErr) || errors.As(err, &streamableErr)
}

// PanicError wraps a value recovered from a panic while handling a URL.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("qobuz client panicked: %v", e.Value)
}
