package httpx

import (
	"net/http"
)

// Error is an HTTP error reply.
type Error struct {
	Description string `json:"description"`
	StatusCode  int    `json:"http_status_code"`
}

type errorRsp struct {
	Result int    `json:"result"`
	Error  string `json:"error"`
}

// Failure is the result code of every error reply.
const Failure int = 0

// Send writes the error reply. A nil writer is ignored.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rspJson, err := json.Marshal(&errorRsp{Result: Failure, Error: e.Description})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Unable to parse error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	w.Write(rspJson)
}

func (e *Error) Error() string {
	return e.Description
}

func newError(status int, def string, msg []string) *Error {
	if len(msg) > 0 && msg[0] != "" {
		def = msg[0]
	}
	return &Error{Description: def, StatusCode: status}
}

// ErrReqMethodNotSupported returns an error for unsupported HTTP methods.
func ErrReqMethodNotSupported() *Error {
	return newError(http.StatusMethodNotAllowed, "request method not supported", nil)
}

// ErrUnableToParseReqData returns an error when request data cannot be parsed.
func ErrUnableToParseReqData() *Error {
	return newError(http.StatusBadRequest, "unable to parse request data", nil)
}

// ErrApplicationError returns an error for application-level failures.
func ErrApplicationError(msg ...string) *Error {
	return newError(http.StatusInternalServerError, "unable to process request", msg)
}

// ErrUnAuthorized returns an error for unauthenticated requests.
func ErrUnAuthorized(msg ...string) *Error {
	return newError(http.StatusUnauthorized, "unable to authenticate request", msg)
}

// ErrInvalidRequest returns an error for invalid request data.
func ErrInvalidRequest(msg ...string) *Error {
	return newError(http.StatusBadRequest, "invalid request data or empty request values", msg)
}

// ErrNotFound returns an error for a missing resource.
func ErrNotFound(msg ...string) *Error {
	return newError(http.StatusNotFound, "resource not found", msg)
}

// ErrConflict returns an error for a resource that already exists.
func ErrConflict(msg ...string) *Error {
	return newError(http.StatusConflict, "resource already exists", msg)
}

// ErrRequestTimeout returns an error for request timeout.
func ErrRequestTimeout() *Error {
	return newError(http.StatusRequestTimeout, "request timed out", nil)
}
