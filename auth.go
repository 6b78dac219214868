package apifetch

import (
	"encoding/base64"
	"strings"
)

// AuthorizationHeader is the value of an Authorization header, e.g. "Bearer ...".
type AuthorizationHeader string

// Bearer builds a bearer authorization with the base64-encoded token.
func Bearer(token string) AuthorizationHeader {
	return AuthorizationHeader("Bearer " + base64.StdEncoding.EncodeToString([]byte(token)))
}

// Basic builds a basic authorization from user and password.
func Basic(user, password string) AuthorizationHeader {
	return AuthorizationHeader("Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password)))
}

// StaticAuthorization returns an authorization supplier that always yields h.
// An empty h yields no header.
func StaticAuthorization(h AuthorizationHeader) func() (AuthorizationHeader, bool) {
	return func() (AuthorizationHeader, bool) {
		return h, strings.TrimSpace(string(h)) != ""
	}
}
