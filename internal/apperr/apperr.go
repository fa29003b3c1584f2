// Package apperr defines the uniform error shape shared by every layer:
// a human-readable message plus a machine-checkable code. Failures are
// converted into these values at service boundaries instead of propagating
// as raw errors or panics.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error codes for transport and HTTP failures.
const (
	CodeTimeout           = "TIMEOUT"
	CodeNetwork           = "NETWORK_ERROR"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeUnknown           = "UNKNOWN_ERROR"
)

// Domain-specific error codes.
const (
	CodeCityAlreadyFavorited = "CITY_ALREADY_FAVORITED"
	CodeAddFavorite          = "ADD_FAVORITE_ERROR"
	CodeRemoveFavorite       = "REMOVE_FAVORITE_ERROR"
	CodeFetchFavorites       = "FETCH_FAVORITES_ERROR"
	CodeCheckFavorite        = "CHECK_FAVORITE_ERROR"
	CodeSignIn               = "SIGNIN_ERROR"
	CodeSignUp               = "SIGNUP_ERROR"
	CodeSignOut              = "SIGNOUT_ERROR"
)

// Error carries a user-renderable message and a stable code. HTTP-mapped
// failures use the status number as their code ("401", "429", ...).
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// New builds an Error with an explicit code.
func New(message, code string) *Error {
	return &Error{Message: message, Code: code}
}

// FromStatus maps an HTTP response status to a typed Error.
func FromStatus(status int) *Error {
	var message string
	switch status {
	case http.StatusUnauthorized:
		message = "Invalid API key. Please check your configuration."
	case http.StatusForbidden:
		message = "API access forbidden. Please check your permissions."
	case http.StatusNotFound:
		message = "Weather data not found for this location."
	case http.StatusTooManyRequests:
		message = "Too many requests. Please try again later."
	case http.StatusInternalServerError:
		message = "Weather service is temporarily unavailable."
	default:
		message = fmt.Sprintf("Weather API error: %d", status)
	}
	return &Error{Message: message, Code: fmt.Sprintf("%d", status)}
}

// FromTransport classifies a transport-level failure as a timeout or a
// generic network error.
func FromTransport(err error) *Error {
	if isTimeout(err) {
		return &Error{
			Message: "Request timed out. Please check your connection.",
			Code:    CodeTimeout,
		}
	}
	return &Error{
		Message: "Network error. Please check your internet connection.",
		Code:    CodeNetwork,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Malformed reports a provider payload that failed schema validation.
func Malformed(detail string) *Error {
	message := "Weather service returned an unexpected response."
	if detail != "" {
		message = fmt.Sprintf("%s (%s)", message, detail)
	}
	return &Error{Message: message, Code: CodeMalformedResponse}
}

// Unexpected is the catch-all for failures not otherwise classified.
func Unexpected() *Error {
	return &Error{Message: "An unexpected error occurred", Code: CodeUnknown}
}

// Status returns the HTTP status an Error should surface as, for handlers
// that translate typed errors back onto the wire.
func Status(e *Error) int {
	if e == nil {
		return http.StatusOK
	}
	switch e.Code {
	case "401":
		return http.StatusUnauthorized
	case "403":
		return http.StatusForbidden
	case "404":
		return http.StatusNotFound
	case "429":
		return http.StatusTooManyRequests
	case "500", CodeTimeout, CodeNetwork:
		return http.StatusBadGateway
	case CodeCityAlreadyFavorited:
		return http.StatusConflict
	case CodeSignIn, CodeSignUp:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
