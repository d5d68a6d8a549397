// Package credentials issues API keys and verifies presented secrets.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"glucolog/internal/engine/tiers"
	"glucolog/internal/platform/models"
	"glucolog/internal/platform/repositories"
)

type Store interface {
	Create(ctx context.Context, key *models.APICredential) error
	FindByPrefix(ctx context.Context, prefix string) ([]*models.APICredential, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]*models.APICredential, error)
	CountLive(ctx context.Context, principalID string, now time.Time) (int, error)
	Rename(ctx context.Context, id, principalID, name string) error
	Revoke(ctx context.Context, id, principalID string, at time.Time) error
	SoftDelete(ctx context.Context, id, principalID string, at time.Time) error
}

// Identity is what a verified secret resolves to.
type Identity struct {
	PrincipalID  string
	CredentialID string
	Tier         string
}

// Issued carries the raw secret; it is returned from Create and never again.
type Issued struct {
	Credential *models.APICredential
	Secret     string
}

type Options struct {
	Pepper       string
	SecretLength int
	PrefixLength int
	Now          func() time.Time
}

type Service struct {
	store        Store
	tiers        *tiers.Catalog
	hasher       *Hasher
	secretLength int
	prefixLength int
	now          func() time.Time

	// serializes count-then-create per principal
	issueLocks sync.Map // map[principalID]*sync.Mutex
}

func NewService(store Store, catalog *tiers.Catalog, opts Options) *Service {
	if opts.SecretLength < 24 {
		opts.SecretLength = 40
	}
	if opts.PrefixLength <= len(Marker) || opts.PrefixLength >= len(Marker)+opts.SecretLength {
		opts.PrefixLength = len(Marker) + 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:        store,
		tiers:        catalog,
		hasher:       NewHasher(opts.Pepper),
		secretLength: opts.SecretLength,
		prefixLength: opts.PrefixLength,
		now:          opts.Now,
	}
}

// Verify resolves a presented secret. It never mutates state.
func (s *Service) Verify(ctx context.Context, presented string) (Identity, error) {
	if !IsAPIKey(presented) || len(presented) <= s.prefixLength {
		return Identity{}, ErrInvalidCredential
	}

	candidates, err := s.store.FindByPrefix(ctx, presented[:s.prefixLength])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var match *models.APICredential
	for _, c := range candidates {
		if s.hasher.Matches(presented, c.KeyHash) {
			match = c
			break
		}
	}
	if match == nil {
		return Identity{}, ErrInvalidCredential
	}
	if match.Revoked() {
		return Identity{}, ErrCredentialRevoked
	}
	if match.Expired(s.now()) {
		return Identity{}, ErrCredentialExpired
	}

	return Identity{
		PrincipalID:  match.PrincipalID,
		CredentialID: match.ID,
		Tier:         match.Tier,
	}, nil
}

func (s *Service) Create(ctx context.Context, principalID, name, tier string, expiresAt *time.Time) (*Issued, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, ErrInvalidName
	}
	if !s.tiers.Issuable(tier) {
		return nil, ErrInvalidTier
	}
	now := s.now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, ErrInvalidExpiry
	}

	lock := s.issueLock(principalID)
	lock.Lock()
	defer lock.Unlock()

	live, err := s.store.CountLive(ctx, principalID, now)
	if err != nil {
		return nil, fmt.Errorf("count live credentials: %w", err)
	}
	if live >= s.tiers.MaxCredentials(tier) {
		return nil, ErrLimitExceeded
	}

	secret, err := GenerateSecret(s.secretLength)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	key := &models.APICredential{
		PrincipalID: principalID,
		Name:        name,
		Tier:        tier,
		KeyPrefix:   secret[:s.prefixLength],
		KeyHash:     s.hasher.Hash(secret),
		CreatedAt:   now.Unix(),
	}
	if expiresAt != nil {
		exp := expiresAt.Unix()
		key.ExpiresAt = &exp
	}

	if err := s.store.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	return &Issued{Credential: key, Secret: secret}, nil
}

func (s *Service) List(ctx context.Context, principalID string) ([]*models.APICredential, error) {
	return s.store.ListByPrincipal(ctx, principalID)
}

func (s *Service) Rename(ctx context.Context, id, principalID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return ErrInvalidName
	}
	return mapNotFound(s.store.Rename(ctx, id, principalID, name))
}

func (s *Service) Revoke(ctx context.Context, id, principalID string) error {
	return mapNotFound(s.store.Revoke(ctx, id, principalID, s.now()))
}

func (s *Service) Delete(ctx context.Context, id, principalID string) error {
	return mapNotFound(s.store.SoftDelete(ctx, id, principalID, s.now()))
}

func (s *Service) issueLock(principalID string) *sync.Mutex {
	v, _ := s.issueLocks.LoadOrStore(principalID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func mapNotFound(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
