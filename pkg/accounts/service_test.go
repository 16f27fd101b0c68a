package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/connectors"
	"github.com/Ramsey-B/willow/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type stubConnector struct {
	key     string
	authErr error
}

func (c *stubConnector) Descriptor() models.SourceDescriptor {
	return models.SourceDescriptor{
		Key:          c.key,
		Name:         "Stub " + c.key,
		AuthKind:     "oauth",
		ContentTypes: []string{models.ContentTypePhoto},
	}
}

func (c *stubConnector) Authenticate(ctx context.Context, credentials json.RawMessage) (*connectors.AccountInfo, error) {
	if c.authErr != nil {
		return nil, c.authErr
	}
	return &connectors.AccountInfo{
		ExternalAccountID: "ext-" + c.key,
		DisplayName:       "Stub Account",
	}, nil
}

func (c *stubConnector) Fetch(ctx context.Context, credentials json.RawMessage) (connectors.Sequence, error) {
	return nil, errors.New("not implemented")
}

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.ConnectedAccount
	nextID   int
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]*models.ConnectedAccount)}
}

func (f *fakeAccountStore) Upsert(ctx context.Context, userID, source, externalAccountID, displayName string, credentials json.RawMessage) (*models.ConnectedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, account := range f.accounts {
		if account.UserID == userID && account.Source == source {
			account.ExternalAccountID = externalAccountID
			account.DisplayName = displayName
			account.Credentials = credentials
			account.Status = models.AccountStatusActive
			account.DeletedAt = nil
			copied := *account
			return &copied, nil
		}
	}

	f.nextID++
	account := &models.ConnectedAccount{
		ID:                fmt.Sprintf("account-%d", f.nextID),
		UserID:            userID,
		Source:            source,
		ExternalAccountID: externalAccountID,
		DisplayName:       displayName,
		Status:            models.AccountStatusActive,
		Credentials:       credentials,
		CreatedAt:         time.Now(),
	}
	f.accounts[account.ID] = account
	copied := *account
	return &copied, nil
}

func (f *fakeAccountStore) Get(ctx context.Context, id string) (*models.ConnectedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccountStore) ListByUser(ctx context.Context, userID string) ([]models.ConnectedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var accounts []models.ConnectedAccount
	for _, account := range f.accounts {
		if account.UserID == userID && account.DeletedAt == nil {
			accounts = append(accounts, *account)
		}
	}
	return accounts, nil
}

func (f *fakeAccountStore) SetStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	account.Status = status
	return nil
}

func (f *fakeAccountStore) TouchLastSynced(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	now := time.Now()
	account.LastSyncedAt = &now
	return nil
}

func (f *fakeAccountStore) SoftDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	now := time.Now()
	account.Status = models.AccountStatusDisconnected
	account.DeletedAt = &now
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.entries[key]
	if !ok {
		return "", errors.New("cache miss")
	}
	return value, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, key := range keys {
		delete(f.entries, key)
	}
	return nil
}

func newTestService(store *fakeAccountStore, cache *fakeCache, conns ...connectors.Connector) *Service {
	registry := connectors.NewRegistry()
	for _, c := range conns {
		registry.Register(c)
	}
	return NewService(store, registry, cache, noopLogger())
}

func connectRequest(source string) models.ConnectAccountRequest {
	return models.ConnectAccountRequest{
		Source:      source,
		Credentials: map[string]any{"access_token": "token-1"},
	}
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the account and caches its credentials", func(t *testing.T) {
		store := newFakeAccountStore()
		cache := newFakeCache()
		service := newTestService(store, cache, &stubConnector{key: "facebook"})

		account, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
		require.NoError(t, err)
		assert.Equal(t, "user-1", account.UserID)
		assert.Equal(t, "facebook", account.Source)
		assert.Equal(t, "ext-facebook", account.ExternalAccountID)
		assert.Equal(t, models.AccountStatusActive, account.Status)

		cached, err := cache.Get(ctx, credentialCacheKey(account.ID))
		require.NoError(t, err)
		assert.JSONEq(t, `{"access_token":"token-1"}`, cached)
	})

	t.Run("re-connecting replaces credentials and re-activates", func(t *testing.T) {
		store := newFakeAccountStore()
		service := newTestService(store, newFakeCache(), &stubConnector{key: "facebook"})

		first, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
		require.NoError(t, err)
		require.NoError(t, service.MarkStale(ctx, first.ID))

		second, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, models.AccountStatusActive, second.Status)
	})

	t.Run("unknown source", func(t *testing.T) {
		service := newTestService(newFakeAccountStore(), newFakeCache())

		_, err := service.Connect(ctx, "user-1", connectRequest("myspace"))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("authentication failure is passed through", func(t *testing.T) {
		authErr := fmt.Errorf("%w: token expired", models.ErrAuth)
		service := newTestService(newFakeAccountStore(), newFakeCache(), &stubConnector{key: "facebook", authErr: authErr})

		_, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
		assert.ErrorIs(t, err, models.ErrAuth)
	})

	t.Run("cache failures do not fail the connect", func(t *testing.T) {
		cache := newFakeCache()
		cache.setErr = errors.New("redis down")
		service := newTestService(newFakeAccountStore(), cache, &stubConnector{key: "facebook"})

		_, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
		assert.NoError(t, err)
	})
}

func TestGetSyncable(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Service, *fakeAccountStore, *fakeCache, *models.ConnectedAccount) {
		t.Helper()
		store := newFakeAccountStore()
		cache := newFakeCache()
		service := newTestService(store, cache, &stubConnector{key: "facebook"})
		account, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
		require.NoError(t, err)
		return service, store, cache, account
	}

	t.Run("returns the account and its connector", func(t *testing.T) {
		service, _, _, account := setup(t)

		loaded, connector, err := service.GetSyncable(ctx, account.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, account.ID, loaded.ID)
		assert.Equal(t, "facebook", connector.Descriptor().Key)
	})

	t.Run("prefers cached credentials", func(t *testing.T) {
		service, _, cache, account := setup(t)
		require.NoError(t, cache.Set(ctx, credentialCacheKey(account.ID), `{"access_token":"rotated"}`, time.Hour))

		loaded, _, err := service.GetSyncable(ctx, account.ID, "user-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"access_token":"rotated"}`, string(loaded.Credentials))
	})

	t.Run("repopulates the cache on a miss", func(t *testing.T) {
		service, _, cache, account := setup(t)
		require.NoError(t, cache.Del(ctx, credentialCacheKey(account.ID)))

		_, _, err := service.GetSyncable(ctx, account.ID, "user-1")
		require.NoError(t, err)

		cached, err := cache.Get(ctx, credentialCacheKey(account.ID))
		require.NoError(t, err)
		assert.JSONEq(t, `{"access_token":"token-1"}`, cached)
	})

	t.Run("stale account", func(t *testing.T) {
		service, _, _, account := setup(t)
		require.NoError(t, service.MarkStale(ctx, account.ID))

		_, _, err := service.GetSyncable(ctx, account.ID, "user-1")
		assert.ErrorIs(t, err, models.ErrStaleCredentials)
	})

	t.Run("disconnected account", func(t *testing.T) {
		service, store, _, account := setup(t)
		require.NoError(t, store.SoftDelete(ctx, account.ID))

		_, _, err := service.GetSyncable(ctx, account.ID, "user-1")
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("another user's account", func(t *testing.T) {
		service, _, _, account := setup(t)

		_, _, err := service.GetSyncable(ctx, account.ID, "user-2")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("unknown account", func(t *testing.T) {
		service, _, _, _ := setup(t)

		_, _, err := service.GetSyncable(ctx, "account-404", "user-1")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	store := newFakeAccountStore()
	cache := newFakeCache()
	service := newTestService(store, cache, &stubConnector{key: "facebook"})

	account, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
	require.NoError(t, err)

	t.Run("another user's account", func(t *testing.T) {
		assert.ErrorIs(t, service.Disconnect(ctx, account.ID, "user-2"), models.ErrNotFound)
	})

	t.Run("owner disconnects", func(t *testing.T) {
		require.NoError(t, service.Disconnect(ctx, account.ID, "user-1"))

		stored, err := store.Get(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AccountStatusDisconnected, stored.Status)
		assert.NotNil(t, stored.DeletedAt)

		_, err = cache.Get(ctx, credentialCacheKey(account.ID))
		assert.Error(t, err)
	})

	t.Run("unknown account", func(t *testing.T) {
		assert.ErrorIs(t, service.Disconnect(ctx, "account-404", "user-1"), models.ErrNotFound)
	})
}

func TestMarkStale(t *testing.T) {
	ctx := context.Background()
	store := newFakeAccountStore()
	cache := newFakeCache()
	service := newTestService(store, cache, &stubConnector{key: "facebook"})

	account, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
	require.NoError(t, err)

	require.NoError(t, service.MarkStale(ctx, account.ID))

	stored, err := store.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusStale, stored.Status)

	_, err = cache.Get(ctx, credentialCacheKey(account.ID))
	assert.Error(t, err)
}

func TestListSources(t *testing.T) {
	service := newTestService(newFakeAccountStore(), newFakeCache(),
		&stubConnector{key: "facebook"},
		&stubConnector{key: "csv"},
	)

	descriptors := service.ListSources()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "csv", descriptors[0].Key)
	assert.Equal(t, "facebook", descriptors[1].Key)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	service := newTestService(newFakeAccountStore(), newFakeCache(),
		&stubConnector{key: "facebook"},
		&stubConnector{key: "csv"},
	)

	_, err := service.Connect(ctx, "user-1", connectRequest("facebook"))
	require.NoError(t, err)
	_, err = service.Connect(ctx, "user-1", connectRequest("csv"))
	require.NoError(t, err)
	_, err = service.Connect(ctx, "user-2", connectRequest("facebook"))
	require.NoError(t, err)

	accounts, err := service.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}
