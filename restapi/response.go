/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package restapi writes responses in the uniform gateway envelope:
//
//	{"success": bool, "data": object|null, "error": {"code": string, "message": string}|null}
package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/acronis/task-gateway/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// Response is the envelope every gateway-generated response is wrapped into.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *Error      `json:"error"`
}

// Does JSON marshaling with disabled HTML escaping
func jsonMarshal(v interface{}) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes()[:buffer.Len()-1], nil
}

// RespondCodeAndJSON sends a response with the passed status code and sets the "Content-Type"
// to "application/json" if it's not already set. It performs JSON marshaling of the data and
// writes the result to the response's body.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	respJSON, err := jsonMarshal(respData)
	if err != nil {
		if logger != nil {
			logger.Error("error while marshaling json for response body", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err = rw.Write(respJSON); err != nil && logger != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

// RespondData sends a successful envelope with the passed status code and data.
func RespondData(rw http.ResponseWriter, statusCode int, data interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, statusCode, Response{Success: true, Data: data}, logger)
}

// RespondError sends a failed envelope with the passed status code and error.
// Also, it logs info (code and message) about error and counts it in metrics.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	logAndCollectMetricsForError(httpStatusCode, err, logger)
	RespondCodeAndJSON(rw, httpStatusCode, Response{Success: false, Error: err}, logger)
}

// RespondInternalError sends response with 500 HTTP status code and internal error in the envelope.
func RespondInternalError(rw http.ResponseWriter, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(), logger)
}

func logAndCollectMetricsForError(httpStatusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		fields := []log.Field{
			log.Int("status", httpStatusCode),
			log.String("error_code", err.Code),
			log.String("error_message", err.Message),
		}
		if httpStatusCode >= http.StatusInternalServerError {
			logger.Error("error in response", fields...)
		} else {
			logger.Warn("error in response", fields...)
		}
	}
	countResponseError(err.Code)
}
