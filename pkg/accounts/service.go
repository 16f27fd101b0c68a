// Package accounts manages the connected account lifecycle: connect, sync
// eligibility, and disconnect.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/connectors"
	"github.com/Ramsey-B/willow/pkg/models"
	"github.com/Ramsey-B/willow/pkg/tracing"
)

// AccountStore is the persistence surface the service needs
type AccountStore interface {
	Upsert(ctx context.Context, userID, source, externalAccountID, displayName string, credentials json.RawMessage) (*models.ConnectedAccount, error)
	Get(ctx context.Context, id string) (*models.ConnectedAccount, error)
	ListByUser(ctx context.Context, userID string) ([]models.ConnectedAccount, error)
	SetStatus(ctx context.Context, id, status string) error
	TouchLastSynced(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
}

// ConnectorSource resolves connectors by source key
type ConnectorSource interface {
	Get(key string) (connectors.Connector, bool)
	List() []models.SourceDescriptor
}

// CredentialCache keeps hot credentials out of the accounts table read path.
// A nil cache disables caching.
type CredentialCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

const credentialCacheTTL = time.Hour

// Service implements the connected account lifecycle
type Service struct {
	store    AccountStore
	registry ConnectorSource
	cache    CredentialCache
	logger   ectologger.Logger
}

// NewService creates the accounts service
func NewService(store AccountStore, registry ConnectorSource, cache CredentialCache, logger ectologger.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		cache:    cache,
		logger:   logger,
	}
}

func credentialCacheKey(accountID string) string {
	return "account-credentials:" + accountID
}

// ListSources returns descriptors for every registered connector
func (s *Service) ListSources() []models.SourceDescriptor {
	return s.registry.List()
}

// Connect validates credentials against the source and stores the account.
// Re-connecting an existing (user, source) pair replaces its credentials and
// re-activates the account.
func (s *Service) Connect(ctx context.Context, userID string, req models.ConnectAccountRequest) (*models.ConnectedAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "accounts.Service.Connect")
	defer span.End()

	connector, ok := s.registry.Get(req.Source)
	if !ok {
		return nil, fmt.Errorf("%w: unknown source %q", models.ErrNotFound, req.Source)
	}

	credentials, err := json.Marshal(req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid credentials payload", models.ErrAuth)
	}

	info, err := connector.Authenticate(ctx, credentials)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID, "source": req.Source}).Warn("Source authentication failed")
		return nil, err
	}

	account, err := s.store.Upsert(ctx, userID, req.Source, info.ExternalAccountID, info.DisplayName, credentials)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, credentialCacheKey(account.ID), string(credentials), credentialCacheTTL); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to cache account credentials")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{"account_id": account.ID, "source": req.Source}).Info("Account connected")
	return account, nil
}

// GetSyncable loads an account and verifies it can be synced. Disconnected
// accounts return ErrNotFound, stale ones ErrStaleCredentials.
func (s *Service) GetSyncable(ctx context.Context, accountID, userID string) (*models.ConnectedAccount, connectors.Connector, error) {
	ctx, span := tracing.StartSpan(ctx, "accounts.Service.GetSyncable")
	defer span.End()

	account, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account.UserID != userID {
		return nil, nil, models.ErrNotFound
	}
	if account.Status == models.AccountStatusStale {
		return nil, nil, models.ErrStaleCredentials
	}
	if !account.IsActive() {
		return nil, nil, models.ErrInvalidState
	}

	connector, ok := s.registry.Get(account.Source)
	if !ok {
		return nil, nil, fmt.Errorf("%w: source %q no longer registered", models.ErrNotFound, account.Source)
	}

	if s.cache != nil {
		key := credentialCacheKey(account.ID)
		if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
			account.Credentials = json.RawMessage(cached)
		} else if len(account.Credentials) > 0 {
			if err := s.cache.Set(ctx, key, string(account.Credentials), credentialCacheTTL); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Failed to cache account credentials")
			}
		}
	}

	return account, connector, nil
}

// List returns a user's connected accounts
func (s *Service) List(ctx context.Context, userID string) ([]models.ConnectedAccount, error) {
	ctx, span := tracing.StartSpan(ctx, "accounts.Service.List")
	defer span.End()

	return s.store.ListByUser(ctx, userID)
}

// TouchLastSynced records a successful fetch run against the account
func (s *Service) TouchLastSynced(ctx context.Context, accountID string) error {
	ctx, span := tracing.StartSpan(ctx, "accounts.Service.TouchLastSynced")
	defer span.End()

	return s.store.TouchLastSynced(ctx, accountID)
}

// MarkStale flags an account whose credentials stopped working. The next sync
// attempt reports ErrStaleCredentials until the user re-connects.
func (s *Service) MarkStale(ctx context.Context, accountID string) error {
	ctx, span := tracing.StartSpan(ctx, "accounts.Service.MarkStale")
	defer span.End()

	s.evictCredentials(ctx, accountID)
	return s.store.SetStatus(ctx, accountID, models.AccountStatusStale)
}

func (s *Service) evictCredentials(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, credentialCacheKey(accountID)); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("account_id", accountID).Warn("Failed to evict cached credentials")
	}
}

// Disconnect soft-deletes the account. Completed jobs and already imported
// content are untouched.
func (s *Service) Disconnect(ctx context.Context, accountID, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "accounts.Service.Disconnect")
	defer span.End()

	account, err := s.store.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if account.UserID != userID {
		return models.ErrNotFound
	}

	if err := s.store.SoftDelete(ctx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return err
	}

	s.evictCredentials(ctx, accountID)

	s.logger.WithContext(ctx).WithFields(map[string]any{"account_id": accountID}).Info("Account disconnected")
	return nil
}
