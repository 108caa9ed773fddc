package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/and161185/goph-auth/internal/repository"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var _ repository.EtagStore = (*EtagStore)(nil)

// fakeRedis emulates the handful of commands EtagStore issues.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	failGet error
	evals   int
}

func newFake() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) *rdb.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return rdb.NewStringResult("", f.failGet)
	}
	v, ok := f.data[key]
	if !ok {
		return rdb.NewStringResult("", rdb.Nil)
	}
	return rdb.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *rdb.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return rdb.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *rdb.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return rdb.NewIntResult(n, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *rdb.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return rdb.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return rdb.NewBoolResult(true, nil)
}

// compareAndDelete mirrors releaseScript.
func (f *fakeRedis) compareAndDelete(keys []string, args []any) *rdb.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	if f.data[keys[0]] == args[0].(string) {
		delete(f.data, keys[0])
		return rdb.NewCmdResult(int64(1), nil)
	}
	return rdb.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *rdb.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...any) *rdb.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeRedis) EvalRO(context.Context, string, []string, ...any) *rdb.Cmd {
	return rdb.NewCmdResult(nil, errors.New("unexpected EVAL_RO"))
}

func (f *fakeRedis) EvalShaRO(context.Context, string, []string, ...any) *rdb.Cmd {
	return rdb.NewCmdResult(nil, errors.New("unexpected EVALSHA_RO"))
}

func (f *fakeRedis) ScriptExists(context.Context, ...string) *rdb.BoolSliceCmd {
	return rdb.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeRedis) ScriptLoad(context.Context, string) *rdb.StringCmd {
	return rdb.NewStringResult("sha", nil)
}

func TestEtagStore_PrefixedGetSetDelete(t *testing.T) {
	t.Parallel()
	f := newFake()
	s := NewWithClient(f, "ga:")
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "/v1/user/")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "/v1/user/", `"e1"`))
	require.Equal(t, `"e1"`, f.data["ga:/v1/user/"])

	v, ok, err := s.Get(ctx, "/v1/user/")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `"e1"`, v)

	require.NoError(t, s.Delete(ctx, "/v1/user/"))
	require.Empty(t, f.data)
}

func TestEtagStore_GetError(t *testing.T) {
	t.Parallel()
	f := newFake()
	f.failGet = errors.New("READONLY")
	_, _, err := NewWithClient(f, "").Get(context.Background(), "k")
	require.Error(t, err)
}

func TestEtagStore_LockReleasesOnlyOwnLock(t *testing.T) {
	t.Parallel()
	f := newFake()
	s := NewWithClient(f, "ga:")

	unlock, err := s.Lock(context.Background(), "/v1/user/bob/")
	require.NoError(t, err)
	require.Contains(t, f.data, "ga:/v1/user/bob/:lock")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, "/v1/user/bob/")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// a foreign owner took over after expiry; our release must not delete it
	f.data["ga:/v1/user/bob/:lock"] = "someone-else"
	unlock()
	require.Equal(t, "someone-else", f.data["ga:/v1/user/bob/:lock"])
	require.Equal(t, 1, f.evals)

	delete(f.data, "ga:/v1/user/bob/:lock")
	unlock2, err := s.Lock(context.Background(), "/v1/user/bob/")
	require.NoError(t, err)
	unlock2()
	require.NotContains(t, f.data, "ga:/v1/user/bob/:lock")
}
