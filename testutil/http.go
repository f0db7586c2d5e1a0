/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertions shared by the gateway tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type tHelper interface {
	Helper()
}

// Envelope is a decoded gateway response body.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *EnvelopeError  `json:"error"`
}

// EnvelopeError is the "error" member of Envelope.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequireErrorEnvelopeInRecorder asserts that the recorded response is a failed envelope with the given code.
func RequireErrorEnvelopeInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorEnvelope(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrCode)
}

// RequireErrorEnvelopeInResponse asserts that the response is a failed envelope with the given code.
func RequireErrorEnvelopeInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorEnvelope(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrCode)
}

func requireErrorEnvelope(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	env := decodeEnvelope(t, header, body)
	require.False(t, env.Success)
	require.Equal(t, "null", string(env.Data))
	require.NotNil(t, env.Error)
	require.Equal(t, wantErrCode, env.Error.Code)
	require.NotEmpty(t, env.Error.Message)
}

// RequireDataEnvelopeInRecorder asserts that the recorded response is a successful envelope and
// decodes its data into dest.
func RequireDataEnvelopeInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireDataEnvelope(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, dest)
}

// RequireDataEnvelopeInResponse asserts that the response is a successful envelope and decodes its data into dest.
func RequireDataEnvelopeInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireDataEnvelope(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, dest)
}

func requireDataEnvelope(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, dest interface{},
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	env := decodeEnvelope(t, header, body)
	require.True(t, env.Success)
	require.Nil(t, env.Error)
	if dest != nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
}

func decodeEnvelope(t require.TestingT, header http.Header, body io.Reader) Envelope {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var env Envelope
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}
