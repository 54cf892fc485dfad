package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) GetDel(ctx context.Context, key string) (string, error) {
	val, err := m.Get(ctx, key)
	if err == nil {
		_ = m.Del(ctx, key)
	}
	return val, err
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func newTestManager() (*Manager, *mockStore) {
	store := newMockStore()
	return &Manager{store: store, keyer: store, ttl: time.Hour}, store
}

func TestManagerRotateIssuesFreshPair(t *testing.T) {
	manager, store := newTestManager()
	ctx := context.Background()
	userID := uuid.New()

	token, err := manager.Generate(ctx, "access-123", userID)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(store.data[store.AccessSessionKey("access-123")], "|"+token))

	accessID, refresh, err := manager.Rotate(ctx, "access-123", userID, token)
	require.NoError(t, err)
	require.NotEqual(t, "access-123", accessID)
	require.NotEqual(t, token, refresh)
	require.NotContains(t, store.data, store.AccessSessionKey("access-123"))
	require.Equal(t, userID.String()+"|"+refresh, store.data[store.AccessSessionKey(accessID)])

	_, _, err = manager.Rotate(ctx, "access-123", userID, token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken, "a refresh token works once")
}

func TestManagerRotateRejectionEndsSession(t *testing.T) {
	cases := map[string]func(token string, owner uuid.UUID) (string, uuid.UUID){
		"wrong token":  func(_ string, owner uuid.UUID) (string, uuid.UUID) { return "wrong", owner },
		"foreign user": func(token string, _ uuid.UUID) (string, uuid.UUID) { return token, uuid.New() },
	}
	for name, present := range cases {
		t.Run(name, func(t *testing.T) {
			manager, _ := newTestManager()
			ctx := context.Background()
			owner := uuid.New()
			token, err := manager.Generate(ctx, "access-1", owner)
			require.NoError(t, err)

			provided, userID := present(token, owner)
			_, _, err = manager.Rotate(ctx, "access-1", userID, provided)
			require.ErrorIs(t, err, ErrInvalidRefreshToken)

			live, err := manager.HasSession(ctx, "access-1")
			require.NoError(t, err)
			require.False(t, live)
		})
	}
}

func TestManagerRotateRequiresInputs(t *testing.T) {
	manager, _ := newTestManager()
	_, _, err := manager.Rotate(context.Background(), " ", uuid.New(), "token")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, _, err = manager.Rotate(context.Background(), "access-1", uuid.Nil, "token")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestManagerRevokeAndHasSession(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	if _, err := manager.Generate(ctx, "access-9", uuid.New()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	ok, err := manager.HasSession(ctx, "access-9")
	if err != nil || !ok {
		t.Fatalf("expected live session, got %v %v", ok, err)
	}
	if err := manager.Revoke(ctx, "access-9"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = manager.HasSession(ctx, "access-9")
	if err != nil || ok {
		t.Fatalf("expected revoked session, got %v %v", ok, err)
	}
}

func TestManagerGenerateRequiresUser(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.Generate(context.Background(), "access-1", uuid.Nil); err == nil {
		t.Fatal("expected error for missing user id")
	}
}
