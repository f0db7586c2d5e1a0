/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const ctxKeyRequestType ctxKey = iota

// NewContextWithRequestType creates a new context with request type.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts request type from the context.
func GetRequestTypeFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestType).(string); ok {
		return s
	}
	return ""
}

func requestTypeOf(ctx context.Context, fallback string) string {
	if reqType := GetRequestTypeFromContext(ctx); reqType != "" {
		return reqType
	}
	if fallback != "" {
		return fallback
	}
	return DefaultRequestType
}
