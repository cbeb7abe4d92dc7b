// Package httpx provides request parsing, JSON responses and error replies
// for the development server's handlers.
package httpx

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/neekly/neekly/internal/common/apperrors"
	"github.com/neekly/neekly/internal/common/logtrace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRequestBody is the largest request body GetRequestData accepts.
const MaxRequestBody = 1 << 20

// GetRequestData parses a JSON request body into data. Only POST and PUT
// carry bodies.
func GetRequestData(r *http.Request, data any) error {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return ErrReqMethodNotSupported()
	}
	if r.Body == nil || r.Body == http.NoBody {
		log.Ctx(r.Context()).Debug().Msg("empty request body")
		return ErrUnableToParseReqData()
	}
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxRequestBody)).Decode(data); err != nil {
		return ErrUnableToParseReqData()
	}
	return nil
}

// Response is a handler result.
type Response struct {
	StatusCode int
	Location   string
	Response   any
	Cookies    []*http.Cookie
}

// RequestHandler handles a request and returns a response or an error.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp adapts a RequestHandler to http.HandlerFunc. Errors are sent
// as {"result":0,"error":"..."} with the status code they carry.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			SendError(w, err)
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		for _, c := range rsp.Cookies {
			http.SetCookie(w, c)
		}
		if rsp.Response == nil {
			w.WriteHeader(rsp.StatusCode)
			return
		}
		var location []string
		if rsp.Location != "" {
			location = append(location, rsp.Location)
		}
		SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response, location...)
	}
}

// SendJsonRsp sends a JSON response. Pre-encoded JSON may be passed as a
// string or []byte. The Location header is set for 201 responses.
func SendJsonRsp(ctx context.Context, w http.ResponseWriter, statusCode int, msg any, location ...string) {
	var msgJson []byte
	switch v := msg.(type) {
	case []byte:
		if json.Valid(v) {
			msgJson = v
		}
	case string:
		if json.Valid([]byte(v)) {
			msgJson = []byte(v)
		}
	}
	if msgJson == nil {
		var err error
		msgJson, err = json.Marshal(msg)
		if err != nil {
			log.Ctx(ctx).Err(err).Msg("unable to marshal json")
			ErrApplicationError("Id: " + logtrace.RequestIdFromContext(ctx)).Send(w)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if statusCode == http.StatusCreated && len(location) > 0 {
		w.Header().Set("Location", location[0])
	}
	w.WriteHeader(statusCode)
	w.Write(msgJson)
}

// SendError sends err as an error response. *Error values keep their own
// status; apperrors.Error values use their status code or 500.
func SendError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *Error:
		e.Send(w)
	case apperrors.Error:
		statusCode := e.StatusCode()
		if statusCode == 0 {
			statusCode = http.StatusInternalServerError
		}
		(&Error{StatusCode: statusCode, Description: e.ErrorAll()}).Send(w)
	default:
		ErrApplicationError(err.Error()).Send(w)
	}
}
