package httpserver

import (
	"errors"
	"net/http"

	"github.com/and161185/goph-auth/internal/gateway"
	"github.com/and161185/goph-auth/internal/metrics"
	"github.com/and161185/goph-auth/internal/oauth"
	"go.uber.org/zap"
)

type oauthHandlers struct {
	core    *oauth.Core
	limits  *clientRateLimiter
	metrics *metrics.Metrics
	log     *zap.Logger
}

// token serves POST /v1/oauth2/token.
func (h *oauthHandlers) token(w http.ResponseWriter, r *http.Request) {
	req, err := oauth.ReadTokenRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.ClientID != "" && !h.limits.Allow(req.ClientID) {
		h.writeError(w, &oauth.Error{Code: oauth.CodeInvalidRequest, Description: "rate limit exceeded", Status: http.StatusTooManyRequests})
		return
	}
	resp, err := h.core.GetTokenFromRequestData(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.TokenIssued(req.GrantType)
	gateway.WriteJSON(w, http.StatusOK, resp)
}

// revoke serves POST /v1/oauth2/revoke.
func (h *oauthHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	req, err := oauth.ReadRevokeRequest(r)
	if err == nil {
		err = h.core.Revoke(r.Context(), req)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// tokenInfo serves GET /v1/oauth2/tokeninfo for the presented bearer token.
func (h *oauthHandlers) tokenInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := gateway.BearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		h.writeError(w, &oauth.Error{Code: oauth.CodeInvalidRequest, Description: "missing or malformed bearer token", Status: http.StatusUnauthorized})
		return
	}
	info, err := h.core.TokenInfo(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	gateway.WriteJSON(w, http.StatusOK, info)
}

func (h *oauthHandlers) writeError(w http.ResponseWriter, err error) {
	var oe *oauth.Error
	if !errors.As(err, &oe) {
		h.log.Error("token endpoint failure", zap.Error(err))
		oe = oauth.NewError(oauth.CodeServerError, "")
	}
	h.metrics.OAuthError(oe.Code)
	if oe.Code == oauth.CodeInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	gateway.WriteJSON(w, oe.StatusCode(), oe)
}
