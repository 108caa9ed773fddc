package svcctx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/goph-auth/internal/config"
	"github.com/and161185/goph-auth/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func memoryConfig() *config.Config {
	return &config.Config{
		DBAdapter:     config.AdapterMemory,
		EtagStore:     config.AdapterMemory,
		LoginMaxFails: 3,
		LoginWindow:   time.Minute,
		LoginBlockFor: time.Minute,
	}
}

func TestOpen_Memory(t *testing.T) {
	t.Parallel()
	sc, err := Open(context.Background(), memoryConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Close() })

	require.NotNil(t, sc.Users)
	require.NotNil(t, sc.Tokens)
	require.IsType(t, &memory.EtagStore{}, sc.Etags)
	require.False(t, sc.Now().IsZero())
}

func TestOpen_UnknownAdapter(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig()
	cfg.DBAdapter = "sqlite"
	_, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestClose_ReverseOrderFirstError(t *testing.T) {
	t.Parallel()
	var order []int
	sc := &ServiceContext{closers: []func() error{
		func() error { order = append(order, 1); return errors.New("first") },
		func() error { order = append(order, 2); return errors.New("second") },
	}}
	err := sc.Close()
	require.EqualError(t, err, "second")
	require.Equal(t, []int{2, 1}, order)
	require.NoError(t, sc.Close())
}

func TestNow_UsesClock(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sc := &ServiceContext{Clock: func() time.Time { return fixed }}
	require.Equal(t, fixed, sc.Now())
}
