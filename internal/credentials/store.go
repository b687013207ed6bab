// Package credentials keeps per-identity provider credentials sealed at rest
// and renews expired access secrets when they are read.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/models"
)

// Pair is a provider credential bundle in plaintext form.
type Pair struct {
	AccessSecret  string
	RefreshSecret string
	Expiry        *time.Time
}

// Expired reports whether the access secret is past its expiry. A pair with
// no expiry never expires.
func (p Pair) Expired(now time.Time) bool {
	return p.Expiry != nil && p.Expiry.Before(now)
}

// Cipher seals secrets before persistence.
type Cipher interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

// Refresher exchanges a refresh secret for a new access secret. The returned
// pair's RefreshSecret is the provider's current one, rotated or not.
type Refresher interface {
	Refresh(ctx context.Context, refreshSecret string) (Pair, error)
}

// Store persists and renews credential pairs keyed by identity.
type Store struct {
	repo      Repository
	cipher    Cipher
	refresher Refresher
	log       *logger.Logger
	now       func() time.Time
}

// NewStore creates a credential store
func NewStore(repo Repository, cipher Cipher, refresher Refresher, log *logger.Logger) *Store {
	return &Store{
		repo:      repo,
		cipher:    cipher,
		refresher: refresher,
		log:       log.With("component", "credentials"),
		now:       time.Now,
	}
}

// Store upserts the pair for identity. Last write wins. An empty refresh secret
// keeps the one already on file, since providers omit it on repeat consent.
func (s *Store) Store(ctx context.Context, identity string, pair Pair) error {
	if identity == "" {
		return fmt.Errorf("store credentials: empty identity")
	}

	if pair.RefreshSecret == "" {
		existing, err := s.repo.Get(ctx, identity)
		if errors.Is(err, errs.ErrIdentityNotFound) {
			// First sign-in without offline access: the grant is unusable.
			return fmt.Errorf("%w: provider granted no refresh secret for %s", errs.ErrIdentityAssertionInvalid, identity)
		}
		if err != nil {
			return fmt.Errorf("store credentials: %w", err)
		}
		pair.RefreshSecret, err = s.cipher.Open(existing.RefreshSecret)
		if err != nil {
			return fmt.Errorf("store credentials: %w", err)
		}
	}

	access, err := s.cipher.Seal(pair.AccessSecret)
	if err != nil {
		return fmt.Errorf("seal access secret: %w", err)
	}
	refresh, err := s.cipher.Seal(pair.RefreshSecret)
	if err != nil {
		return fmt.Errorf("seal refresh secret: %w", err)
	}

	rec := &models.Credential{
		Identity:        identity,
		AccessSecret:    access,
		RefreshSecret:   refresh,
		EncodingVersion: models.CredentialEncodingV1,
	}
	if pair.Expiry != nil {
		exp := pair.Expiry.UTC()
		rec.Expiry = &exp
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// Fetch loads the pair for identity, refreshing it first when the access
// secret has expired. A refreshed pair is stored before it is returned.
func (s *Store) Fetch(ctx context.Context, identity string) (Pair, error) {
	rec, err := s.repo.Get(ctx, identity)
	if err != nil {
		return Pair{}, err
	}
	if rec.EncodingVersion != models.CredentialEncodingV1 {
		return Pair{}, fmt.Errorf("credentials for %s: unsupported encoding version %d", identity, rec.EncodingVersion)
	}

	pair, err := s.open(rec)
	if err != nil {
		s.log.Error("Stored credentials cannot be decrypted", "identity", identity, "error", err)
		return Pair{}, err
	}

	if !pair.Expired(s.now()) {
		return pair, nil
	}

	s.log.Debug("Access secret expired, refreshing", "identity", identity, "expiry", pair.Expiry)
	refreshed, err := s.refresher.Refresh(ctx, pair.RefreshSecret)
	if err != nil {
		s.log.Warn("Credential refresh failed", "identity", identity, "error", err)
		return Pair{}, fmt.Errorf("refresh credentials for %s: %w", identity, err)
	}
	if refreshed.RefreshSecret == "" {
		refreshed.RefreshSecret = pair.RefreshSecret
	}
	if refreshed.RefreshSecret != pair.RefreshSecret {
		s.log.Info("Provider rotated refresh secret", "identity", identity)
	}

	if err := s.Store(ctx, identity, refreshed); err != nil {
		return Pair{}, err
	}
	return refreshed, nil
}

func (s *Store) open(rec *models.Credential) (Pair, error) {
	access, err := s.cipher.Open(rec.AccessSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("open access secret: %w", err)
	}
	refresh, err := s.cipher.Open(rec.RefreshSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("open refresh secret: %w", err)
	}
	pair := Pair{AccessSecret: access, RefreshSecret: refresh}
	if rec.Expiry != nil {
		exp := *rec.Expiry
		pair.Expiry = &exp
	}
	return pair, nil
}
