// Package httpserver exposes the OAuth endpoints and the user resource over HTTP.
package httpserver

import (
	"net/http"
	"time"

	"github.com/and161185/goph-auth/internal/gateway"
	"github.com/and161185/goph-auth/internal/metrics"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/oauth"
	"github.com/and161185/goph-auth/internal/service"
	"github.com/and161185/goph-auth/internal/svcctx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var adminOnly = gateway.Meta{Roles: []model.Role{model.RoleAdmin}}

// NewRouter wires every endpoint. m may be nil to disable metrics.
func NewRouter(sc *svcctx.ServiceContext, m *metrics.Metrics) http.Handler {
	provider := service.NewAuthProvider(sc)
	core := oauth.New(provider, oauth.Config{
		TokenLength: sc.Config.TokenLength,
		ExpiresIn:   sc.Config.TokenTTLSeconds(),
		Rand:        sc.Rand,
	}, sc.Log.Named("oauth"))
	gw := gateway.New(provider, sc.Etags, sc.Log.Named("gateway"))

	oh := &oauthHandlers{
		core:    core,
		limits:  newClientRateLimiter(sc.Config.TokenRatePerMinute),
		metrics: m,
		log:     sc.Log,
	}
	uh := &userHandlers{users: service.NewUserService(sc), roles: service.NewRoleService(sc)}
	selfOrAdmin := gateway.Meta{
		Roles:     []model.Role{model.RoleAdmin, model.RoleUser},
		Authorize: uh.authorizeSubject,
	}

	trusted, err := sc.Config.TrustedProxyPrefixes()
	if err != nil {
		sc.Log.Warn("ignoring trusted proxies", zap.Error(err))
		trusted = nil
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, ClientIP(trusted), Logging(sc.Log), Recover(sc.Log), m.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		gateway.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Route("/v1/oauth2", func(r chi.Router) {
		r.Use(NoStore)
		r.Post("/token", oh.token)
		r.Post("/revoke", oh.revoke)
		r.Get("/tokeninfo", oh.tokenInfo)
	})

	r.Route("/v1/user", func(r chi.Router) {
		r.Get("/", gw.Wrap(gateway.OpList, adminOnly, uh.list))
		r.Post("/", gw.Wrap(gateway.OpCreate, adminOnly, uh.create))
		r.Get("/{id}/", gw.Wrap(gateway.OpDetail, selfOrAdmin, uh.detail))
		r.Put("/{id}/", gw.Wrap(gateway.OpUpdate, selfOrAdmin, uh.update))
		r.Delete("/{id}/", gw.Wrap(gateway.OpDelete, adminOnly, uh.remove))
	})
	return r
}

// NewServer builds an http.Server with conservative timeouts.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
