package httpserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/and161185/goph-auth/internal/limiter"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// drainBody reads a response body into a builder.
func drainBody(dst *strings.Builder, resp *http.Response) (int64, error) {
	return io.Copy(dst, resp.Body)
}

func TestRecover(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.ErrorLevel)
	h := Recover(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "server_error")
	require.Equal(t, 1, logs.FilterMessage("panic").Len())
}

func TestLoggingOmitsPayload(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/oauth2/token", strings.NewReader("password=secret"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.EqualValues(t, http.StatusAccepted, fields["status"])
	require.Equal(t, "/v1/oauth2/token", fields["route"])
	for _, v := range fields {
		if s, ok := v.(string); ok {
			require.NotContains(t, s, "secret")
		}
	}
}

func TestClientIPStripsPort(t *testing.T) {
	t.Parallel()
	require.Equal(t, "198.51.100.4", clientIPOf(t, nil, "198.51.100.4:5555", nil))
}

func TestClientIPForwardingHeaders(t *testing.T) {
	t.Parallel()
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	cases := []struct {
		name    string
		trusted []netip.Prefix
		remote  string
		hdr     map[string]string
		want    string
	}{
		{"untrusted peer spoofing xff", nil, "203.0.113.9:1", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.9"},
		{"untrusted peer spoofing x-real-ip", proxies, "203.0.113.9:1", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9"},
		{"trusted proxy", proxies, "10.0.0.2:1", map[string]string{"X-Forwarded-For": "198.51.100.7"}, "198.51.100.7"},
		{"client-prepended hops are ignored", proxies, "10.0.0.2:1", map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.7, 10.0.0.3"}, "198.51.100.7"},
		{"trusted proxy with x-real-ip", proxies, "10.0.0.2:1", map[string]string{"X-Real-IP": "198.51.100.8"}, "198.51.100.8"},
		{"trusted proxy without headers", proxies, "10.0.0.2:1", nil, "10.0.0.2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, clientIPOf(t, tc.trusted, tc.remote, tc.hdr))
		})
	}
}

func clientIPOf(t *testing.T, trusted []netip.Prefix, remote string, hdr map[string]string) string {
	t.Helper()
	var got string
	h := ClientIP(trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = limiter.ClientIPFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestClientRateLimiter(t *testing.T) {
	t.Parallel()
	require.Nil(t, newClientRateLimiter(0))
	var disabled *clientRateLimiter
	require.True(t, disabled.Allow("c"))

	l := newClientRateLimiter(2)
	require.True(t, l.Allow("c"))
	require.True(t, l.Allow("c"))
	require.False(t, l.Allow("c"))
	require.True(t, l.Allow("other"))
}
