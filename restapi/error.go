/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

// Error is the "error" member of the response envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes shared by every HTTP surface of the gateway.
// We are using "var" here because deployments may want to use different error codes.
var (
	ErrCodeInternal               = "INTERNAL_ERROR"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeMethodNotAllowed       = "METHOD_NOT_ALLOWED"
	ErrCodeServiceUnavailable     = "SERVICE_UNAVAILABLE"
	ErrCodeRequestTooLarge        = "REQUEST_TOO_LARGE"
	ErrCodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	ErrCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrCodeTokenExpired           = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid           = "TOKEN_INVALID"
	ErrCodeClientClosedRequest    = "CLIENT_CLOSED_REQUEST"
)

// Error messages.
var (
	ErrMessageInternal               = "Internal server error"
	ErrMessageNotFound               = "Not found"
	ErrMessageMethodNotAllowed       = "Method not allowed"
	ErrMessageServiceUnavailable     = "Service temporarily unavailable"
	ErrMessageRequestTooLarge        = "Request body too large"
	ErrMessageRateLimitExceeded      = "Too many requests"
	ErrMessageAuthenticationRequired = "Authentication required"
	ErrMessageTokenExpired           = "Token expired"
	ErrMessageTokenInvalid           = "Invalid token"
	ErrMessageClientClosedRequest    = "Client closed request"
)

// NewError creates a new Error with specified params.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewInternalError creates a new internal error.
func NewInternalError() *Error {
	return NewError(ErrCodeInternal, ErrMessageInternal)
}

// String returns a short form of the error suitable for logs.
func (e *Error) String() string {
	return e.Code + ": " + e.Message
}
