/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/acronis/task-gateway/httpserver/middleware"
	"github.com/acronis/task-gateway/log"
	"github.com/acronis/task-gateway/restapi"
)

// StatusClientClosedRequest is a special HTTP status code used by Nginx to show that the client
// closed the request before the server could send a response
const StatusClientClosedRequest = 499

// HealthStatusHealthy is reported in the "status" field when every component is OK.
const HealthStatusHealthy = "healthy"

// HealthCheckComponentName is a type alias for component names. It's used for better readability.
type HealthCheckComponentName = string

// HealthCheckStatus is a resulting status of the health-check.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult is a type alias for result of health-check operation. It's used for better readability.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck is a type alias for context-aware health-check operation.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

// HealthCheckResponseData is the "data" member of a successful health-check response.
type HealthCheckResponseData struct {
	Status     string          `json:"status"`
	Service    string          `json:"service"`
	Components map[string]bool `json:"components,omitempty"`
}

// HealthCheckHandler implements http.Handler and does health-check of a service.
type HealthCheckHandler struct {
	serviceName   string
	healthCheckFn HealthCheck
}

// NewHealthCheckHandler creates a new http.Handler for doing health-check.
// fn may be nil, then the service is always reported as healthy.
func NewHealthCheckHandler(serviceName string, fn HealthCheck) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) {
			return nil, ctx.Err()
		}
	}
	return &HealthCheckHandler{serviceName: serviceName, healthCheckFn: fn}
}

// ServeHTTP serves heath-check HTTP request.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	hcResult, err := h.healthCheckFn(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		if logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		restapi.RespondInternalError(rw, logger)
		return
	}

	respData := HealthCheckResponseData{Status: HealthStatusHealthy, Service: h.serviceName}
	var failed []string
	for name, status := range hcResult {
		if respData.Components == nil {
			respData.Components = make(map[string]bool, len(hcResult))
		}
		respData.Components[name] = status == HealthCheckStatusOK
		if status == HealthCheckStatusFail {
			failed = append(failed, name)
		}
	}

	if len(failed) != 0 {
		sort.Strings(failed)
		apiErr := restapi.NewError(restapi.ErrCodeServiceUnavailable,
			fmt.Sprintf("%s (unhealthy: %s)", restapi.ErrMessageServiceUnavailable, strings.Join(failed, ", ")))
		restapi.RespondError(rw, http.StatusServiceUnavailable, apiErr, logger)
		return
	}
	restapi.RespondData(rw, http.StatusOK, respData, logger)
}
