// Package memory contains in-process implementations of repository interfaces.
// They back DB_ADAPTER=memory and are safe for concurrent use.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/and161185/goph-auth/internal/errs"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Store holds every entity behind a single lock so cross-entity cascades stay atomic.
type Store struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]model.User
	apps    map[uuid.UUID]model.Application
	clients map[uuid.UUID]model.Client
	tokens  map[uuid.UUID]model.Token
	grants  []model.Grant
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:   map[uuid.UUID]model.User{},
		apps:    map[uuid.UUID]model.Application{},
		clients: map[uuid.UUID]model.Client{},
		tokens:  map[uuid.UUID]model.Token{},
	}
}

// UserRepo implements UserRepository.
type UserRepo struct{ s *Store }

// ApplicationRepo implements ApplicationRepository.
type ApplicationRepo struct{ s *Store }

// ClientRepo implements ClientRepository.
type ClientRepo struct{ s *Store }

// TokenRepo implements TokenRepository.
type TokenRepo struct{ s *Store }

// GrantRepo implements GrantRepository.
type GrantRepo struct{ s *Store }

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Applications returns the application repository view of the store.
func (s *Store) Applications() *ApplicationRepo { return &ApplicationRepo{s: s} }

// Clients returns the client repository view of the store.
func (s *Store) Clients() *ClientRepo { return &ClientRepo{s: s} }

// Tokens returns the token repository view of the store.
func (s *Store) Tokens() *TokenRepo { return &TokenRepo{s: s} }

// Grants returns the grant repository view of the store.
func (s *Store) Grants() *GrantRepo { return &GrantRepo{s: s} }

// --- users ---

func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.users {
		if other.ID == u.ID || other.Username == u.Username || other.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	r.s.users[u.ID] = cloneUser(*u)
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Username == username })
}

func (r *UserRepo) GetByLogin(_ context.Context, login string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Email == login || u.Username == login })
}

func (r *UserRepo) List(_ context.Context) ([]model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, cloneUser(u))
	}
	slices.SortFunc(out, func(a, b model.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (r *UserRepo) Update(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.users[u.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.PwdHash, cur.SaltAuth = u.PwdHash, u.SaltAuth
	cur.Name, cur.URL, cur.Bio, cur.Born, cur.Gender = u.Name, u.URL, u.Bio, u.Born, u.Gender
	cur.ModifiedAt = u.ModifiedAt
	r.s.users[u.ID] = cloneUser(cur)
	return nil
}

// Delete removes the user and cascades to its tokens, grants and application.
func (r *UserRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return errs.ErrNotFound
	}
	delete(r.s.users, id)
	for k, t := range r.s.tokens {
		if t.UserID == id {
			delete(r.s.tokens, k)
		}
	}
	r.s.grants = slices.DeleteFunc(r.s.grants, func(g model.Grant) bool { return g.UserID == id })
	for k, a := range r.s.apps {
		if a.OwnerID == id {
			delete(r.s.apps, k)
		}
	}
	return nil
}

func (r *UserRepo) find(match func(model.User) bool) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func cloneUser(u model.User) model.User {
	u.PwdHash = slices.Clone(u.PwdHash)
	u.SaltAuth = slices.Clone(u.SaltAuth)
	if u.Born != nil {
		b := *u.Born
		u.Born = &b
	}
	return u
}

// --- applications & clients ---

func (r *ApplicationRepo) Create(_ context.Context, a *model.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.apps {
		if other.ID == a.ID || other.OwnerID == a.OwnerID {
			return errs.ErrAlreadyExists
		}
	}
	r.s.apps[a.ID] = *a
	return nil
}

func (r *ApplicationRepo) Update(_ context.Context, a *model.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.apps[a.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Name, cur.Description, cur.URL, cur.ModifiedAt = a.Name, a.Description, a.URL, a.ModifiedAt
	r.s.apps[a.ID] = cur
	return nil
}

func (r *ApplicationRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.apps[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (r *ApplicationRepo) GetByOwner(_ context.Context, ownerID uuid.UUID) (*model.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.apps {
		if a.OwnerID == ownerID {
			return &a, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *ClientRepo) Create(_ context.Context, c *model.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clients[c.ID]; ok {
		return errs.ErrAlreadyExists
	}
	cp := *c
	cp.SecretHash = slices.Clone(c.SecretHash)
	cp.AllowedGrantTypes = slices.Clone(c.AllowedGrantTypes)
	r.s.clients[c.ID] = cp
	return nil
}

func (r *ClientRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Client, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.clients[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c.AllowedGrantTypes = slices.Clone(c.AllowedGrantTypes)
	return &c, nil
}

// --- tokens ---

// Replace drops the pair's previous tokens and stores t under one lock.
func (r *TokenRepo) Replace(_ context.Context, t *model.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.tokens {
		if other.ClientID == t.ClientID && other.UserID == t.UserID {
			continue
		}
		if other.AccessToken == t.AccessToken || (t.RefreshToken != "" && other.RefreshToken == t.RefreshToken) {
			return errs.ErrAlreadyExists
		}
	}
	for k, other := range r.s.tokens {
		if other.ClientID == t.ClientID && other.UserID == t.UserID {
			delete(r.s.tokens, k)
		}
	}
	r.s.tokens[t.ID] = *t
	return nil
}

func (r *TokenRepo) GetByAccessToken(_ context.Context, access string) (*model.Token, error) {
	return r.find(func(t model.Token) bool { return t.AccessToken == access })
}

func (r *TokenRepo) GetByRefreshToken(_ context.Context, clientID uuid.UUID, refresh string) (*model.Token, error) {
	if refresh == "" {
		return nil, errs.ErrNotFound
	}
	return r.find(func(t model.Token) bool { return t.ClientID == clientID && t.RefreshToken == refresh })
}

func (r *TokenRepo) DeleteByRefreshToken(_ context.Context, clientID uuid.UUID, refresh string) error {
	r.deleteWhere(func(t model.Token) bool {
		return refresh != "" && t.ClientID == clientID && t.RefreshToken == refresh
	})
	return nil
}

func (r *TokenRepo) DeleteByAccessToken(_ context.Context, clientID uuid.UUID, access string) error {
	r.deleteWhere(func(t model.Token) bool { return t.ClientID == clientID && t.AccessToken == access })
	return nil
}

func (r *TokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(t model.Token) bool { return t.ExpiresAt().Before(now) }), nil
}

func (r *TokenRepo) find(match func(model.Token) bool) (*model.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tokens {
		if match(t) {
			return &t, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *TokenRepo) deleteWhere(match func(model.Token) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, t := range r.s.tokens {
		if match(t) {
			delete(r.s.tokens, k)
			n++
		}
	}
	return n
}

// --- grants ---

func (r *GrantRepo) Add(_ context.Context, userID uuid.UUID, role model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		if g.UserID == userID && g.Role == role {
			return nil
		}
	}
	r.s.grants = append(r.s.grants, model.Grant{UserID: userID, Role: role, CreatedAt: time.Now()})
	return nil
}

func (r *GrantRepo) Remove(_ context.Context, userID uuid.UUID, role model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.grants = slices.DeleteFunc(r.s.grants, func(g model.Grant) bool { return g.UserID == userID && g.Role == role })
	return nil
}

func (r *GrantRepo) HasAny(_ context.Context, userID uuid.UUID, roles []model.Role) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, g := range r.s.grants {
		if g.UserID == userID && slices.Contains(roles, g.Role) {
			return true, nil
		}
	}
	return false, nil
}

func (r *GrantRepo) ListRoles(_ context.Context, userID uuid.UUID) ([]model.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Role
	for _, g := range r.s.grants {
		if g.UserID == userID && !slices.Contains(out, g.Role) {
			out = append(out, g.Role)
		}
	}
	slices.Sort(out)
	return out, nil
}
