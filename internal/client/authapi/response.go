package authapi

import (
	"github.com/tidwall/gjson"

	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/client/session"
)

// tokenShape identifies which server response variant carried the token.
type tokenShape int

const (
	shapeToken       tokenShape = iota + 1 // {"token": "..."}, login only
	shapeAccessToken                       // {"accessToken": "..."}
)

func (s tokenShape) String() string {
	switch s {
	case shapeToken:
		return "token"
	case shapeAccessToken:
		return "accessToken"
	default:
		return "unknown"
	}
}

// tokenResponse is the normalized form of a login or refresh response body.
type tokenResponse struct {
	shape       tokenShape
	token       string
	identity    session.Identity
	hasIdentity bool
}

// parseTokenResponse normalizes a JSON response body into a tokenResponse.
// The body must be a JSON object with a non-empty accessToken or token field.
func parseTokenResponse(body []byte) (tokenResponse, error) {
	if !gjson.ValidBytes(body) {
		return tokenResponse{}, clienterrors.ErrInvalidResponse.Msg("response body is not JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return tokenResponse{}, clienterrors.ErrInvalidResponse.Msg("response body is not a JSON object")
	}

	var rsp tokenResponse
	if v := root.Get("accessToken"); v.Type == gjson.String && v.Str != "" {
		rsp.shape = shapeAccessToken
		rsp.token = v.Str
	} else if v := root.Get("token"); v.Type == gjson.String && v.Str != "" {
		rsp.shape = shapeToken
		rsp.token = v.Str
	} else {
		return tokenResponse{}, clienterrors.ErrInvalidResponse.Msg("response carries no access token")
	}

	if email := root.Get("email").String(); email != "" {
		rsp.identity = session.Identity{
			Email:    email,
			UserName: root.Get("userName").String(),
		}
		rsp.hasIdentity = true
	}
	return rsp, nil
}

// serverMessage extracts a human readable message from an error body.
func serverMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, key := range []string{"message", "error"} {
		if v := gjson.GetBytes(body, key); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
