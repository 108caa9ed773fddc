package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/and161185/goph-auth/internal/config"
	"github.com/and161185/goph-auth/internal/metrics"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/repository/memory"
	"github.com/and161185/goph-auth/internal/service"
	"github.com/and161185/goph-auth/internal/svcctx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type env struct {
	srv      *httptest.Server
	sc       *svcctx.ServiceContext
	clientID string
	secret   string
}

func newEnv(t *testing.T, mutate func(*config.Config)) *env {
	t.Helper()
	cfg := &config.Config{
		TokenLength:    40,
		TokenExpiresIn: time.Hour,
		LoginMaxFails:  5,
		LoginWindow:    time.Minute,
		LoginBlockFor:  time.Minute,
	}
	if mutate != nil {
		mutate(cfg)
	}
	sc := svcctx.NewMemory(memory.NewStore(), cfg, zaptest.NewLogger(t))
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	ctx := context.Background()
	users := service.NewUserService(sc)
	_, err = users.Create(ctx, service.NewUser{Email: "root@example.com", Username: "root", Password: "rootpw", Role: model.RoleAdmin})
	require.NoError(t, err)
	c, secret, err := service.NewClientService(sc).CreateClient(ctx, service.NewClient{
		Name: "cli", GrantTypes: []model.GrantType{model.GrantPassword, model.GrantRefreshToken},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(sc, m))
	t.Cleanup(srv.Close)
	return &env{srv: srv, sc: sc, clientID: c.ID.String(), secret: secret}
}

func (e *env) postForm(t *testing.T, path string, v url.Values) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.PostForm(e.srv.URL+path, v)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func (e *env) login(t *testing.T, username, password string) map[string]any {
	t.Helper()
	resp, body := e.postForm(t, "/v1/oauth2/token", url.Values{
		"grant_type": {"password"}, "client_id": {e.clientID}, "username": {username}, "password": {password},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return body
}

func (e *env) do(t *testing.T, method, path, token, body string, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf strings.Builder
	_, _ = drainBody(&buf, resp)
	return resp, []byte(buf.String())
}

func TestTokenEndpoint_PasswordGrant(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	resp, first := e.postForm(t, "/v1/oauth2/token", url.Values{
		"grant_type": {"password"}, "client_id": {e.clientID}, "username": {"root"}, "password": {"rootpw"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	require.Len(t, first, 4)
	require.Equal(t, "Bearer", first["token_type"])
	require.EqualValues(t, 3600, first["expires_in"])

	second := e.login(t, "root@example.com", "rootpw")
	require.NotEqual(t, first["access_token"], second["access_token"])

	resp, _ = e.do(t, http.MethodGet, "/v1/oauth2/tokeninfo", first["access_token"].(string), "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "the first token was evicted")
}

func TestTokenEndpoint_Errors(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	resp, body := e.postForm(t, "/v1/oauth2/token", url.Values{"client_id": {e.clientID}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", body["error"])
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	resp, body = e.postForm(t, "/v1/oauth2/token", url.Values{"grant_type": {"client_credentials"}, "client_id": {e.clientID}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "unsupported_grant_type", body["error"])

	resp, body = e.postForm(t, "/v1/oauth2/token", url.Values{
		"grant_type": {"password"}, "client_id": {e.clientID}, "client_secret": {"wrong"}, "username": {"root"}, "password": {"rootpw"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_client", body["error"])

	resp, body = e.postForm(t, "/v1/oauth2/token", url.Values{
		"grant_type": {"password"}, "client_id": {e.clientID}, "client_secret": {e.secret}, "username": {"root"}, "password": {"nope"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_grant", body["error"])
}

func TestTokenEndpoint_JSONBodyAndRefresh(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	payload := `{"grant_type":"password","client_id":"` + e.clientID + `","username":"root","password":"rootpw"}`
	resp, raw := e.do(t, http.MethodPost, "/v1/oauth2/token", "", payload, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var issued map[string]any
	require.NoError(t, json.Unmarshal(raw, &issued))

	refresh := url.Values{"grant_type": {"refresh_token"}, "client_id": {e.clientID}, "refresh_token": {issued["refresh_token"].(string)}}
	resp, refreshed := e.postForm(t, "/v1/oauth2/token", refresh)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEqual(t, issued["access_token"], refreshed["access_token"])

	resp, body := e.postForm(t, "/v1/oauth2/token", refresh)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_grant", body["error"])
}

func TestRevokeAndTokenInfo(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	tok := e.login(t, "root", "rootpw")
	access := tok["access_token"].(string)

	resp, raw := e.do(t, http.MethodGet, "/v1/oauth2/tokeninfo", access, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info map[string]any
	require.NoError(t, json.Unmarshal(raw, &info))
	require.Equal(t, "root", info["username"])
	require.Equal(t, []any{"admin"}, info["roles"])

	resp, _ = e.do(t, http.MethodGet, "/v1/oauth2/tokeninfo", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.postForm(t, "/v1/oauth2/revoke", url.Values{"client_id": {e.clientID}, "token": {access}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.postForm(t, "/v1/oauth2/revoke", url.Values{"client_id": {e.clientID}, "token": {access}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/v1/oauth2/tokeninfo", access, "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
}

func TestLoginLockout(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(c *config.Config) { c.LoginMaxFails = 2 })
	bad := url.Values{"grant_type": {"password"}, "client_id": {e.clientID}, "username": {"root"}, "password": {"bad"}}

	resp, _ := e.postForm(t, "/v1/oauth2/token", bad)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, body := e.postForm(t, "/v1/oauth2/token", bad)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "invalid_grant", body["error"])

	good := url.Values{"grant_type": {"password"}, "client_id": {e.clientID}, "username": {"root"}, "password": {"rootpw"}}
	resp, _ = e.postForm(t, "/v1/oauth2/token", good)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "blocked pairs stay blocked even with the right password")
}

func TestLoginLockoutIgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(c *config.Config) { c.LoginMaxFails = 2 })
	form := url.Values{"grant_type": {"password"}, "client_id": {e.clientID}, "username": {"root"}, "password": {"bad"}}.Encode()

	for i, want := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusTooManyRequests} {
		resp, raw := e.do(t, http.MethodPost, "/v1/oauth2/token", "", form, map[string]string{
			"Content-Type":    "application/x-www-form-urlencoded",
			"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1),
			"X-Real-IP":       fmt.Sprintf("198.51.100.%d", i+1),
		})
		require.Equal(t, want, resp.StatusCode, string(raw))
	}
}

func TestUserResourceHidesOthersBeforePreconditions(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	admin := e.login(t, "root", "rootpw")["access_token"].(string)
	resp, raw := e.do(t, http.MethodPost, "/v1/user/", admin,
		`{"email":"bob@example.com","username":"bob","password":"bobpw"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	bob := e.login(t, "bob", "bobpw")["access_token"].(string)

	resp, _ = e.do(t, http.MethodGet, "/v1/user/root/", admin, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rootTag := resp.Header.Get("ETag")

	resp, _ = e.do(t, http.MethodGet, "/v1/user/root/", bob, "", map[string]string{"If-None-Match": "*"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, resp.Header.Get("ETag"))
	resp, _ = e.do(t, http.MethodGet, "/v1/user/root/", bob, "", map[string]string{"If-None-Match": rootTag})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, resp.Header.Get("ETag"))

	resp, _ = e.do(t, http.MethodGet, "/v1/user/ghost/", bob, "", map[string]string{"If-None-Match": "*"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode, "missing and foreign users look the same")

	resp, _ = e.do(t, http.MethodPut, "/v1/user/root/", bob, `{"bio":"x"}`, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.do(t, http.MethodPut, "/v1/user/root/", bob, `{"bio":"x"}`, map[string]string{"If-Match": `"stale"`})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, resp.Header.Get("ETag"))

	resp, _ = e.do(t, http.MethodGet, "/v1/user/root/", admin, "", map[string]string{"If-None-Match": rootTag})
	require.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestClientRateLimit(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(c *config.Config) { c.TokenRatePerMinute = 1 })
	v := url.Values{"grant_type": {"password"}, "client_id": {e.clientID}, "username": {"root"}, "password": {"rootpw"}}

	resp, _ := e.postForm(t, "/v1/oauth2/token", v)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.postForm(t, "/v1/oauth2/token", v)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestUserResource(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	admin := e.login(t, "root", "rootpw")["access_token"].(string)

	resp, raw := e.do(t, http.MethodGet, "/v1/user/root/", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, string(raw), "invalid_request")

	resp, raw = e.do(t, http.MethodPost, "/v1/user/", admin,
		`{"email":"bob@example.com","username":"bob","password":"bobpw","name":"Bob"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	createdTag := resp.Header.Get("ETag")
	require.NotEmpty(t, createdTag)

	bob := e.login(t, "bob", "bobpw")["access_token"].(string)

	resp, _ = e.do(t, http.MethodGet, "/v1/user/", bob, "", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/v1/user/root/", bob, "", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw = e.do(t, http.MethodGet, "/v1/user/bob/", bob, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, createdTag, resp.Header.Get("ETag"))
	var view map[string]any
	require.NoError(t, json.Unmarshal(raw, &view))
	require.Equal(t, "bob", view["id"])
	require.NotContains(t, view, "bio")

	resp, _ = e.do(t, http.MethodGet, "/v1/user/bob/", bob, "", map[string]string{"If-None-Match": createdTag})
	require.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPut, "/v1/user/bob/", bob, `{"bio":"hi"}`, nil)
	require.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
	resp, _ = e.do(t, http.MethodPut, "/v1/user/bob/", bob, `{"bio":"hi"}`, map[string]string{"If-Match": `"stale"`})
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	resp, raw = e.do(t, http.MethodPut, "/v1/user/bob/", bob, `{"bio":"hi"}`, map[string]string{"If-Match": createdTag})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(raw))
	updatedTag := resp.Header.Get("ETag")
	require.NotEqual(t, createdTag, updatedTag)

	resp, _ = e.do(t, http.MethodPut, "/v1/user/bob/", bob, `{"role":"admin"}`, map[string]string{"If-Match": updatedTag})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = e.do(t, http.MethodGet, "/v1/user/", admin, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listTag := resp.Header.Get("ETag")
	require.Contains(t, string(raw), `"objects"`)
	resp, _ = e.do(t, http.MethodGet, "/v1/user/", admin, "", map[string]string{"If-None-Match": listTag})
	require.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/v1/user/ghost/", admin, "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodDelete, "/v1/user/bob/", bob, "", map[string]string{"If-Match": updatedTag})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.do(t, http.MethodDelete, "/v1/user/bob/", admin, "", map[string]string{"If-Match": updatedTag})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/v1/oauth2/tokeninfo", bob, "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "deleting a user drops its tokens")
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	resp, raw := e.do(t, http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(raw))

	e.login(t, "root", "rootpw")
	resp, raw = e.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), `oauth_tokens_issued_total{grant_type="password"} 1`)
}
