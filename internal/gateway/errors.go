/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/task-gateway/httpserver"
	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/restapi"
)

// ErrorKind classifies gateway-local failures.
type ErrorKind int

// Error kinds.
const (
	KindRateLimitExceeded ErrorKind = iota + 1
	KindAuthenticationRequired
	KindTokenExpired
	KindTokenInvalid
	KindRouteNotFound
	KindMethodNotAllowed
	KindRequestTooLarge
	KindUpstreamUnavailable
	KindUpstreamFault
	KindClientClosedRequest
)

var errorKindNames = map[ErrorKind]string{
	KindRateLimitExceeded:      "RateLimitExceeded",
	KindAuthenticationRequired: "AuthenticationRequired",
	KindTokenExpired:           "TokenExpired",
	KindTokenInvalid:           "TokenInvalid",
	KindRouteNotFound:          "RouteNotFound",
	KindMethodNotAllowed:       "MethodNotAllowed",
	KindRequestTooLarge:        "RequestTooLarge",
	KindUpstreamUnavailable:    "UpstreamUnavailable",
	KindUpstreamFault:          "UpstreamFault",
	KindClientClosedRequest:    "ClientClosedRequest",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "ErrorKind(" + strconv.Itoa(int(k)) + ")"
}

// Error is a failure detected by the gateway itself. Upstream business failures are never wrapped into it.
type Error struct {
	Kind ErrorKind
	// RetryAfter is set for KindRateLimitExceeded.
	RetryAfter time.Duration
	// Allowed lists methods of the matched route for KindMethodNotAllowed.
	Allowed []string
	Err     error
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Translator writes the standard error envelope for every failure that leaves the pipeline.
type Translator struct {
	// NotFoundPolicy defines the answer for RouteNotFound, NotFoundPolicyNotFound by default.
	NotFoundPolicy string
}

// Translate writes the error envelope. Errors other than *Error become 500 INTERNAL_ERROR.
func (t Translator) Translate(rw http.ResponseWriter, err error, logger log.FieldLogger) {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		if logger != nil {
			logger.Error("unexpected gateway error", log.Error(err))
		}
		restapi.RespondInternalError(rw, logger)
		return
	}

	status, apiErr := t.statusAndError(gwErr)
	switch gwErr.Kind {
	case KindRateLimitExceeded:
		rw.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(gwErr.RetryAfter)))
	case KindAuthenticationRequired, KindTokenExpired, KindTokenInvalid:
		rw.Header().Set("WWW-Authenticate", "Bearer")
	case KindMethodNotAllowed:
		if len(gwErr.Allowed) != 0 {
			rw.Header().Set("Allow", strings.Join(gwErr.Allowed, ", "))
		}
	}
	restapi.RespondError(rw, status, apiErr, logger)
}

func (t Translator) statusAndError(e *Error) (int, *restapi.Error) {
	switch e.Kind {
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests,
			restapi.NewError(restapi.ErrCodeRateLimitExceeded, restapi.ErrMessageRateLimitExceeded)
	case KindAuthenticationRequired:
		return http.StatusUnauthorized,
			restapi.NewError(restapi.ErrCodeAuthenticationRequired, restapi.ErrMessageAuthenticationRequired)
	case KindTokenExpired:
		return http.StatusUnauthorized, restapi.NewError(restapi.ErrCodeTokenExpired, restapi.ErrMessageTokenExpired)
	case KindTokenInvalid:
		return http.StatusUnauthorized, restapi.NewError(restapi.ErrCodeTokenInvalid, restapi.ErrMessageTokenInvalid)
	case KindRouteNotFound:
		if t.NotFoundPolicy == NotFoundPolicyServiceUnavailable {
			return http.StatusServiceUnavailable,
				restapi.NewError(restapi.ErrCodeServiceUnavailable, restapi.ErrMessageServiceUnavailable)
		}
		return http.StatusNotFound, restapi.NewError(restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed,
			restapi.NewError(restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
	case KindRequestTooLarge:
		return http.StatusRequestEntityTooLarge,
			restapi.NewError(restapi.ErrCodeRequestTooLarge, restapi.ErrMessageRequestTooLarge)
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable,
			restapi.NewError(restapi.ErrCodeServiceUnavailable, restapi.ErrMessageServiceUnavailable)
	case KindClientClosedRequest:
		return httpserver.StatusClientClosedRequest,
			restapi.NewError(restapi.ErrCodeClientClosedRequest, restapi.ErrMessageClientClosedRequest)
	default:
		return http.StatusInternalServerError, restapi.NewInternalError()
	}
}

// retryAfterSeconds rounds up to whole seconds, at least 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

