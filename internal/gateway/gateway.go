// Package gateway wraps resource operations with bearer authentication,
// role authorization and ETag based conditional requests.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/oauth"
	"github.com/and161185/goph-auth/internal/repository"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Operation is a resource verb.
type Operation string

// Resource operations.
const (
	OpList   Operation = "list"
	OpDetail Operation = "detail"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Meta declares who may call an operation. Public skips authentication;
// otherwise an empty Roles admits any authenticated principal. Authorize,
// when set, runs after the role check and before any precondition so that
// callers without access learn nothing about the resource.
type Meta struct {
	Public    bool
	Roles     []model.Role
	Authorize func(r *http.Request) error
}

// Response is what an operation returns; Body is serialized as JSON.
type Response struct {
	Status int
	Body   any
}

// Handler executes a resource operation.
type Handler func(r *http.Request) (*Response, error)

// Authenticator resolves bearer tokens and role requirements.
type Authenticator interface {
	FindByAccessToken(ctx context.Context, access string) (*oauth.AccessInfo, error)
	AuthorizeRoles(ctx context.Context, user model.UserIdentity, roles []model.Role) (bool, error)
}

// Principal is the authenticated caller of a request.
type Principal struct {
	User      model.UserIdentity
	Client    model.Client
	ExpiresIn int64
}

type ctxKey string

const principalKey ctxKey = "ga.principal"

// WithPrincipal stores the authenticated caller in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

var bearerRe = regexp.MustCompile(`^Bearer *([^ ]+) *$`)

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	m := bearerRe.FindStringSubmatch(r.Header.Get("Authorization"))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Gateway wraps handlers with the request state machine.
type Gateway struct {
	auth  Authenticator
	etags repository.EtagStore
	log   *zap.Logger
}

// New constructs a Gateway.
func New(auth Authenticator, etags repository.EtagStore, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{auth: auth, etags: etags, log: log}
}

// Authenticate resolves the bearer token of r and checks roles.
func (g *Gateway) Authenticate(r *http.Request, roles []model.Role) (*Principal, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, errMissingAuth()
	}
	info, err := g.auth.FindByAccessToken(r.Context(), token)
	if err != nil {
		return nil, fmt.Errorf("find access token: %w", err)
	}
	if info == nil {
		return nil, errInvalidToken()
	}
	allowed, err := g.auth.AuthorizeRoles(r.Context(), info.User, roles)
	if err != nil {
		return nil, fmt.Errorf("authorize roles: %w", err)
	}
	if !allowed {
		return nil, errs.ErrForbidden
	}
	return &Principal{User: info.User, Client: info.Client, ExpiresIn: info.ExpiresIn}, nil
}

// Wrap returns an http.HandlerFunc running op through authentication,
// authorization, preconditions, execution and etag maintenance.
func (g *Gateway) Wrap(op Operation, meta Meta, h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.serve(w, r, op, meta, h); err != nil {
			WriteError(w, r, err, g.log)
		}
	}
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, op Operation, meta Meta, h Handler) error {
	ctx := r.Context()
	if !meta.Public {
		p, err := g.Authenticate(r, meta.Roles)
		if err != nil {
			return err
		}
		r = r.WithContext(WithPrincipal(ctx, p))
	}
	if meta.Authorize != nil {
		if err := meta.Authorize(r); err != nil {
			return err
		}
	}
	key := resourceKey(r.URL.Path)

	if op == OpUpdate || op == OpDelete {
		unlock, err := g.etags.Lock(ctx, key)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		defer unlock()
		if err := g.checkIfMatch(r, key); err != nil {
			return err
		}
	}

	// Reads remember the stored etag they started from; it gates both the
	// 304 answers and the lazy refresh below.
	var (
		before    string
		hadBefore bool
	)
	if op == OpList || op == OpDetail {
		var err error
		if before, hadBefore, err = g.etags.Get(ctx, key); err != nil {
			return fmt.Errorf("get etag: %w", err)
		}
		inm := r.Header.Get("If-None-Match")
		if op == OpDetail && r.Method == http.MethodGet && inm != "" && hadBefore && matchETag(inm, before, true) {
			notModified(w, before)
			return nil
		}
	}

	resp, err := h(r)
	if err != nil {
		return err
	}

	if op == OpDelete {
		if err := g.etags.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete etag: %w", err)
		}
		w.WriteHeader(statusOr(resp.Status, http.StatusNoContent))
		return nil
	}

	body, err := json.Marshal(resp.Body)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	etag := ComputeETag(body)

	switch op {
	case OpList, OpDetail:
		if op == OpList {
			inm := r.Header.Get("If-None-Match")
			if inm != "" && hadBefore && matchETag(inm, before, true) && matchETag(inm, etag, true) {
				notModified(w, etag)
				return nil
			}
		}
		if !hadBefore || before != etag {
			if err := g.refreshETag(ctx, key, before, hadBefore, etag); err != nil {
				return err
			}
		}
	case OpCreate:
		if id := gjson.GetBytes(body, "id").String(); id != "" {
			if err := g.etags.Set(ctx, key+id+"/", etag); err != nil {
				return fmt.Errorf("set etag: %w", err)
			}
		}
	case OpUpdate:
		if err := g.etags.Set(ctx, key, etag); err != nil {
			return fmt.Errorf("set etag: %w", err)
		}
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOr(resp.Status, http.StatusOK))
	_, _ = w.Write(body)
	return nil
}

// refreshETag stores etag for key under the resource lock, but only while
// the stored value is still the one the read started from. A writer that
// committed in between keeps its own etag.
func (g *Gateway) refreshETag(ctx context.Context, key, before string, hadBefore bool, etag string) error {
	unlock, err := g.etags.Lock(ctx, key)
	if errors.Is(err, errs.ErrVersionConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	cur, ok, err := g.etags.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get etag: %w", err)
	}
	if ok != hadBefore || cur != before {
		return nil
	}
	if err := g.etags.Set(ctx, key, etag); err != nil {
		return fmt.Errorf("set etag: %w", err)
	}
	return nil
}

func (g *Gateway) checkIfMatch(r *http.Request, key string) error {
	im := r.Header.Get("If-Match")
	if im == "" {
		return errs.ErrPreconditionRequired
	}
	stored, ok, err := g.etags.Get(r.Context(), key)
	if err != nil {
		return fmt.Errorf("get etag: %w", err)
	}
	if !matchETag(im, stored, ok) {
		return errs.ErrPreconditionFailed
	}
	return nil
}

func notModified(w http.ResponseWriter, etag string) {
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusNotModified)
}

func statusOr(status, def int) int {
	if status == 0 {
		return def
	}
	return status
}
