// Package oauth drives the authorization-code handshake with the identity
// provider and verifies the identity it asserts.
package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/fuomag9/paperdrive/internal/credentials"
	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/models"
)

// Provider is the identity provider as seen by the handshake.
type Provider interface {
	AuthorizationURL(state, codeVerifier, redirectURL, loginHint string) string
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURL string) (credentials.Pair, string, error)
}

// AssertionVerifier turns a raw identity assertion into a verified identity.
type AssertionVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (string, error)
}

// Authorization is what Begin hands back to the caller.
type Authorization struct {
	URL   string
	State string
}

// Result is a completed handshake.
type Result struct {
	Identity    string
	Credentials credentials.Pair
}

// Handshake issues single-use state tokens and completes the code exchange.
// State lives in the database because the callback may land on another instance.
type Handshake struct {
	sessions    SessionRepository
	provider    Provider
	verifier    AssertionVerifier
	redirectURL string
	ttl         time.Duration
	log         *logger.Logger
	now         func() time.Time
}

// NewHandshake creates a handshake
func NewHandshake(sessions SessionRepository, provider Provider, verifier AssertionVerifier, redirectURL string, ttl time.Duration, log *logger.Logger) *Handshake {
	return &Handshake{
		sessions:    sessions,
		provider:    provider,
		verifier:    verifier,
		redirectURL: redirectURL,
		ttl:         ttl,
		log:         log.With("component", "oauth"),
		now:         time.Now,
	}
}

// Begin issues a state token valid for the configured TTL and returns the
// provider authorization URL bound to it.
func (h *Handshake) Begin(ctx context.Context, ownerHint string) (Authorization, error) {
	state, err := GenerateState()
	if err != nil {
		return Authorization{}, err
	}
	verifier := oauth2.GenerateVerifier()

	now := h.now()
	session := &models.OAuthSession{
		State:        state,
		CodeVerifier: verifier,
		OwnerHint:    ownerHint,
		RedirectURI:  h.redirectURL,
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.ttl),
	}
	if err := h.sessions.Create(ctx, session); err != nil {
		return Authorization{}, err
	}

	h.log.Debug("Authorization started", "state", fingerprint(state), "expires_at", session.ExpiresAt)
	return Authorization{
		URL:   h.provider.AuthorizationURL(state, verifier, h.redirectURL, ownerHint),
		State: state,
	}, nil
}

// Complete consumes state, exchanges code and verifies the asserted identity.
// The state is consumed before the exchange, so a failed exchange still burns it.
func (h *Handshake) Complete(ctx context.Context, state, code, callbackURL string) (Result, error) {
	if state == "" {
		return Result{}, errs.ErrInvalidOrExpiredState
	}
	if code == "" {
		return Result{}, fmt.Errorf("%w: missing authorization code", errs.ErrValidation)
	}
	if callbackURL != "" {
		u, err := url.Parse(callbackURL)
		if err != nil {
			return Result{}, fmt.Errorf("%w: malformed callback url", errs.ErrValidation)
		}
		if got := u.Query().Get("state"); got != "" && got != state {
			return Result{}, fmt.Errorf("%w: callback state mismatch", errs.ErrInvalidOrExpiredState)
		}
	}

	session, err := h.sessions.Consume(ctx, state, h.now())
	if err != nil {
		h.log.Warn("Rejected handshake state", "state", fingerprint(state), "error", err)
		return Result{}, err
	}

	pair, idToken, err := h.provider.ExchangeCode(ctx, code, session.CodeVerifier, session.RedirectURI)
	if err != nil {
		h.log.Warn("Token exchange failed", "state", fingerprint(state), "error", err)
		return Result{}, err
	}

	identity, err := h.verifier.Verify(ctx, idToken)
	if err != nil {
		h.log.Warn("Identity assertion rejected", "state", fingerprint(state), "error", err)
		return Result{}, err
	}

	h.log.Info("Authorization completed", "identity", identity)
	return Result{Identity: identity, Credentials: pair}, nil
}

// fingerprint identifies a state token in logs without revealing it.
func fingerprint(state string) string {
	sum := sha256.Sum256([]byte(state))
	return hex.EncodeToString(sum[:4])
}
