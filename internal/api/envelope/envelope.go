package envelope

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in Messages.ErrorCode.
const (
	CodeInvalidRequest    = "InvalidRequest"
	CodeInvalidTransition = "InvalidTransition"
	CodeNotFound          = "NotFound"
	CodeNoDevicesFound    = "NoDevicesFound"
	CodePartialFailure    = "PartialFailure"
	CodeUnauthorized      = "Unauthorized"
	CodeForbidden         = "Forbidden"
	CodeInternalError     = "InternalError"
)

// Messages carries the outcome of a call. An empty ErrorCode means success.
type Messages struct {
	ErrorCode         string `json:"ErrorCode,omitempty"`
	ErrorDetails      string `json:"ErrorDetails,omitempty"`
	StatusDescription string `json:"StatusDescription,omitempty"`
}

// Response is the body of every JSON response.
type Response struct {
	Data     any      `json:"data"`
	Messages Messages `json:"messages"`
}

// Write encodes a response with the given HTTP status.
func Write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteData writes a successful response.
func WriteData(w http.ResponseWriter, data any) {
	Write(w, http.StatusOK, Response{Data: data})
}

// WriteDataStatus writes a successful response with a status description.
func WriteDataStatus(w http.ResponseWriter, data any, description string) {
	Write(w, http.StatusOK, Response{Data: data, Messages: Messages{StatusDescription: description}})
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, details string) {
	Write(w, status, Response{Messages: Messages{ErrorCode: code, ErrorDetails: details}})
}

// StatusFor returns the HTTP status used for an error code.
func StatusFor(code string) int {
	switch code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeNotFound, CodeNoDevicesFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodePartialFailure, "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// WriteCode writes an error response using the status mapped from code.
func WriteCode(w http.ResponseWriter, code, details string) {
	WriteError(w, StatusFor(code), code, details)
}
