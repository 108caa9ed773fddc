package httpserver

import (
	"fmt"
	"io"
	"net/http"

	"github.com/and161185/goph-auth/internal/convert"
	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/gateway"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxUserBody = 64 << 10

type userHandlers struct {
	users *service.UserService
	roles *service.RoleService
}

func (h *userHandlers) list(r *http.Request) (*gateway.Response, error) {
	users, err := h.users.List(r.Context())
	if err != nil {
		return nil, err
	}
	return &gateway.Response{Body: convert.ToUserList(users)}, nil
}

func (h *userHandlers) detail(r *http.Request) (*gateway.Response, error) {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	return &gateway.Response{Body: convert.ToUserView(*u)}, nil
}

func (h *userHandlers) create(r *http.Request) (*gateway.Response, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	in, err := convert.NewUserFromJSON(body)
	if err != nil {
		return nil, err
	}
	u, err := h.users.Create(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return &gateway.Response{Status: http.StatusCreated, Body: convert.ToUserView(*u)}, nil
}

func (h *userHandlers) update(r *http.Request) (*gateway.Response, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	patch, err := convert.UserPatchFromJSON(body)
	if err != nil {
		return nil, err
	}
	u, err := h.users.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		return nil, err
	}
	return &gateway.Response{Status: http.StatusAccepted, Body: convert.ToUserView(*u)}, nil
}

func (h *userHandlers) remove(r *http.Request) (*gateway.Response, error) {
	if err := h.users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		return nil, err
	}
	return &gateway.Response{Status: http.StatusNoContent}, nil
}

// authorizeSubject admits the addressed user and admins. It runs before
// the etag preconditions, so other callers get 403 whether or not the
// user exists.
func (h *userHandlers) authorizeSubject(r *http.Request) error {
	p, ok := gateway.PrincipalFromContext(r.Context())
	if !ok {
		return errs.ErrUnauthorized
	}
	if p.User.Username == chi.URLParam(r, "id") {
		return nil
	}
	admin, err := h.roles.CheckGrant(r.Context(), p.User.ID, model.RoleAdmin)
	if err != nil {
		return err
	}
	if !admin {
		return errs.ErrForbidden
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUserBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxUserBody {
		return nil, fmt.Errorf("body exceeds %d bytes: %w", maxUserBody, errs.ErrBadRequest)
	}
	return body, nil
}
