package service

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/and161185/goph-auth/internal/config"
	"github.com/and161185/goph-auth/internal/limiter"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/repository/memory"
	"github.com/and161185/goph-auth/internal/svcctx"
	"go.uber.org/zap/zaptest"
)

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
	lastIPHash   []byte
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, _ string, ipHash []byte) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastIPHash = ipHash
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// testClock is a settable clock shared by a test's ServiceContext.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestContext(t *testing.T) (*svcctx.ServiceContext, *fakeLimiter, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	lim := &fakeLimiter{allowOK: true}
	sc := svcctx.NewMemory(memory.NewStore(), &config.Config{}, zaptest.NewLogger(t))
	sc.Limiter = lim
	sc.Clock = clock.Now
	sc.Rand = rand.Reader
	return sc, lim, clock
}

func mustCreateUser(t *testing.T, sc *svcctx.ServiceContext, email, username, password string, role model.Role) *model.User {
	t.Helper()
	u, err := NewUserService(sc).Create(context.Background(), NewUser{
		Email: email, Username: username, Password: password, Role: role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func mustCreateClient(t *testing.T, sc *svcctx.ServiceContext, grants ...model.GrantType) (*model.Client, string) {
	t.Helper()
	c, secret, err := NewClientService(sc).CreateClient(context.Background(), NewClient{Name: "cli", GrantTypes: grants})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return c, secret
}
