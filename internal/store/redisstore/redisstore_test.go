package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestIdempotencyKey(t *testing.T) {
	require.Equal(t, "deckd:idem:generate:abc", IdempotencyKey("generate", "abc"))
}

func TestNew_FailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(addr, "", 0)
	require.Error(t, err)
}

func TestReserve_SecondCallerSeesInProgress(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	reserved, body, err := s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)
	require.Nil(t, body)

	reserved, body, err = s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	require.False(t, reserved)
	require.Nil(t, body)

	// other ops do not share the key space
	reserved, _, err = s.Reserve(ctx, "add-asset", "k1", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)
}

func TestSaveResult_ReplacesReservation(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.SaveResult(ctx, "generate", "k1", []byte(`{"url":"a"}`), time.Hour))

	reserved, body, err := s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	require.False(t, reserved)
	require.JSONEq(t, `{"url":"a"}`, string(body))

	// the result TTL applies, not the reservation TTL
	mr.FastForward(2 * time.Minute)
	_, body, err = s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"a"}`, string(body))
}

func TestRelease_AllowsRetry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "generate", "k1"))

	reserved, _, err := s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)
}

func TestReserve_ExpiresAbandonedReservation(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	mr.FastForward(61 * time.Second)

	reserved, _, err := s.Reserve(ctx, "generate", "k1", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)
}
