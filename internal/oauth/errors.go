package oauth

import (
	"fmt"
	"net/http"
)

// Error codes carried in the "error" member of an error response.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeInvalidToken         = "invalid_token"
	CodeServerError          = "server_error"
)

// Error is a protocol failure that is serialized verbatim to the caller.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	Status      int    `json:"-"`
}

// NewError builds an Error with the default status for code.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description, Status: defaultStatus(code)}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return "oauth2: " + e.Code
	}
	return fmt.Sprintf("oauth2: %s: %s", e.Code, e.Description)
}

// StatusCode returns the HTTP status, defaulting to 400.
func (e *Error) StatusCode() int {
	if e.Status == 0 {
		return http.StatusBadRequest
	}
	return e.Status
}

func defaultStatus(code string) int {
	switch code {
	case CodeInvalidClient, CodeInvalidToken:
		return http.StatusUnauthorized
	case CodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
