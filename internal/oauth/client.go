package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/fuomag9/paperdrive/internal/config"
	"github.com/fuomag9/paperdrive/internal/credentials"
	"github.com/fuomag9/paperdrive/internal/errs"
)

// Client talks to the identity provider's authorization and token endpoints.
type Client struct {
	oauth      oauth2.Config
	httpClient *http.Client
}

// NewClient creates a provider client. httpClient bounds every token call.
func NewClient(cfg config.OAuthConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		httpClient: httpClient,
	}
}

// GenerateState generates a random state parameter for CSRF protection
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthorizationURL returns the consent URL for state. Offline access and a
// forced consent prompt make the provider issue a refresh secret every time.
func (c *Client) AuthorizationURL(state, codeVerifier, redirectURL, loginHint string) string {
	conf := c.oauth
	conf.RedirectURL = redirectURL
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.S256ChallengeOption(codeVerifier),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return conf.AuthCodeURL(state, opts...)
}

// ExchangeCode trades an authorization code for a credential pair and the raw
// id_token that asserts the caller's identity.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURL string) (credentials.Pair, string, error) {
	conf := c.oauth
	conf.RedirectURL = redirectURL

	tok, err := conf.Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return credentials.Pair{}, "", classify(err, errs.ErrInvalidOrExpiredState, "token exchange")
	}
	if tok.AccessToken == "" {
		return credentials.Pair{}, "", fmt.Errorf("%w: token response missing access_token", errs.ErrRemote)
	}

	idToken, _ := tok.Extra("id_token").(string)
	return pairFromToken(tok), idToken, nil
}

// Refresh exchanges a refresh secret for a new access secret.
func (c *Client) Refresh(ctx context.Context, refreshSecret string) (credentials.Pair, error) {
	if refreshSecret == "" {
		return credentials.Pair{}, fmt.Errorf("%w: no refresh secret on file", errs.ErrCredentialRefreshFailed)
	}
	tok, err := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshSecret}).Token()
	if err != nil {
		return credentials.Pair{}, classify(err, errs.ErrCredentialRefreshFailed, "token refresh")
	}
	return pairFromToken(tok), nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// rejectionCodes are the RFC 6749 token endpoint errors that mean the grant
// itself is unusable.
var rejectionCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
	"invalid_request":     true,
}

// classify maps a provider rejection to rejected. Throttling, timeouts, 5xx
// and transport failures are errs.ErrRemote and may be retried.
func classify(err error, rejected error, op string) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return fmt.Errorf("%w: %s: %w", errs.ErrRemote, op, err)
	}

	status := 0
	if rErr.Response != nil {
		status = rErr.Response.StatusCode
	}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: %s: provider status %d", errs.ErrRemote, op, status)
	case rejectionCodes[rErr.ErrorCode], status == http.StatusBadRequest, status == http.StatusUnauthorized:
		code := rErr.ErrorCode
		if code == "" {
			code = "rejected"
		}
		return fmt.Errorf("%w: %s: %s", rejected, op, code)
	default:
		return fmt.Errorf("%w: %s: provider status %d", errs.ErrRemote, op, status)
	}
}

func pairFromToken(tok *oauth2.Token) credentials.Pair {
	pair := credentials.Pair{
		AccessSecret:  tok.AccessToken,
		RefreshSecret: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		pair.Expiry = &exp
	}
	return pair
}
