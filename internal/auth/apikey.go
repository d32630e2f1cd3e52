package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/htmlshot/htmlshot/internal/store"
	"github.com/htmlshot/htmlshot/pkg/models"
)

// KeyPrefix starts every raw API key, so incoming credentials can be
// routed by format without a lookup.
const KeyPrefix = "h2p_"

const displayPrefixLen = 8

// KeyStore is the persistence surface the API key service needs.
// *store.PostgresStore satisfies it.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// IssuedKey is the one-time response to key creation. RawKey is never
// stored and never shown again.
type IssuedKey struct {
	ID        uuid.UUID
	RawKey    string
	KeyPrefix string
}

// APIKeyService issues and verifies long-lived API keys.
type APIKeyService struct {
	store KeyStore
}

func NewAPIKeyService(s KeyStore) *APIKeyService {
	return &APIKeyService{store: s}
}

// Issue generates a random key, persists its sha256 digest plus a short
// display fragment, and returns the raw secret exactly once.
func (s *APIKeyService) Issue(ctx context.Context, userID int64, name *string) (*IssuedKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	rawKey := KeyPrefix + hex.EncodeToString(raw)
	prefix := rawKey[:displayPrefixLen] + "..."

	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		KeyHash:   HashKey(rawKey),
		KeyPrefix: prefix,
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("persist api key: %w", err)
	}

	return &IssuedKey{ID: key.ID, RawKey: rawKey, KeyPrefix: prefix}, nil
}

// Verify resolves a raw key to its owning principal. Keys without the
// format prefix are rejected before any hashing or lookup. On success the
// last-used timestamp is recorded best-effort in the background.
func (s *APIKeyService) Verify(ctx context.Context, rawKey string) (*models.Principal, error) {
	if len(rawKey) <= len(KeyPrefix) || rawKey[:len(KeyPrefix)] != KeyPrefix {
		return nil, ErrInvalidCredential
	}

	key, err := s.store.GetActiveAPIKeyByHash(ctx, HashKey(rawKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("look up api key: %w", err)
	}

	user, err := s.store.GetUserByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("look up key owner: %w", err)
	}

	go func() {
		if err := s.store.UpdateAPIKeyLastUsed(context.Background(), key.ID); err != nil {
			slog.Warn("update api key last used", "key_id", key.ID, "error", err)
		}
	}()

	p := user.Principal()
	return &p, nil
}

// HashKey returns the sha256 hex digest stored in place of the raw key.
// Deterministic so verification is a single hash-equality lookup.
func HashKey(rawKey string) string {
	return TokenHash(rawKey)
}
