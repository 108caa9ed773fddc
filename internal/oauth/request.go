package oauth

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

const maxRequestBody = 64 << 10

// TokenRequest carries the token endpoint parameters. Optional parameters
// are pointers so that presence can be told apart from an empty value.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret *string
	Username     string
	Password     string
	RefreshToken *string
}

// RevokeRequest carries the revocation endpoint parameters.
type RevokeRequest struct {
	ClientID      string
	ClientSecret  *string
	Token         string
	TokenTypeHint string
}

// params is a read view over query, form or JSON parameters.
type params interface {
	lookup(key string) (string, bool)
}

type valuesParams url.Values

func (v valuesParams) lookup(key string) (string, bool) {
	vs, ok := v[key]
	if !ok || len(vs) == 0 {
		return "", ok
	}
	return vs[0], true
}

type jsonParams []byte

func (j jsonParams) lookup(key string) (string, bool) {
	r := gjson.GetBytes(j, gjson.Escape(key))
	if !r.Exists() {
		return "", false
	}
	return r.String(), true
}

// layered looks keys up in order; the first hit wins.
type layered []params

func (l layered) lookup(key string) (string, bool) {
	for _, p := range l {
		if v, ok := p.lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

func (l layered) str(key string) string {
	v, _ := l.lookup(key)
	return v
}

func (l layered) opt(key string) *string {
	if v, ok := l.lookup(key); ok {
		return &v
	}
	return nil
}

// TokenRequestFromValues builds a request from decoded form or query values.
func TokenRequestFromValues(v url.Values) TokenRequest {
	return tokenRequest(layered{valuesParams(v)})
}

// TokenRequestFromJSON builds a request from a JSON object body.
func TokenRequestFromJSON(body []byte) (TokenRequest, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return TokenRequest{}, NewError(CodeInvalidRequest, "malformed JSON body")
	}
	return tokenRequest(layered{jsonParams(body)}), nil
}

// ReadTokenRequest extracts token parameters from the body (form or JSON)
// and the query string; body parameters take precedence.
func ReadTokenRequest(r *http.Request) (TokenRequest, error) {
	p, err := readParams(r)
	if err != nil {
		return TokenRequest{}, err
	}
	return tokenRequest(p), nil
}

// ReadRevokeRequest extracts revocation parameters like ReadTokenRequest.
func ReadRevokeRequest(r *http.Request) (RevokeRequest, error) {
	p, err := readParams(r)
	if err != nil {
		return RevokeRequest{}, err
	}
	return RevokeRequest{
		ClientID:      p.str("client_id"),
		ClientSecret:  p.opt("client_secret"),
		Token:         p.str("token"),
		TokenTypeHint: p.str("token_type_hint"),
	}, nil
}

func tokenRequest(p layered) TokenRequest {
	return TokenRequest{
		GrantType:    p.str("grant_type"),
		ClientID:     p.str("client_id"),
		ClientSecret: p.opt("client_secret"),
		Username:     p.str("username"),
		Password:     p.str("password"),
		RefreshToken: p.opt("refresh_token"),
	}
}

func readParams(r *http.Request) (layered, error) {
	query := valuesParams(r.URL.Query())
	if r.Body == nil || r.Method == http.MethodGet {
		return layered{query}, nil
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			return nil, NewError(CodeInvalidRequest, fmt.Sprintf("reading body: %v", err))
		}
		if len(body) == 0 {
			return layered{query}, nil
		}
		if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
			return nil, NewError(CodeInvalidRequest, "malformed JSON body")
		}
		return layered{jsonParams(body), query}, nil
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBody)
		if err := r.ParseForm(); err != nil {
			return nil, NewError(CodeInvalidRequest, "malformed form body")
		}
		return layered{valuesParams(r.PostForm), query}, nil
	default:
		return layered{query}, nil
	}
}
