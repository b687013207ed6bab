package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/paperdrive/internal/config"
	"github.com/fuomag9/paperdrive/internal/errs"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		Scopes:       []string{"openid", "email"},
		RedirectURL:  "https://api.example/oauth2callback",
	}, srv.Client())
}

func TestGenerateState_Unique(t *testing.T) {
	a, err := GenerateState()
	require.NoError(t, err)
	b, err := GenerateState()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}

func TestClient_AuthorizationURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	raw := c.AuthorizationURL("st", "verifier-verifier-verifier-verifier-verifier", "https://api.example/cb", "ada@example.org")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "https://api.example/cb", q.Get("redirect_uri"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "ada@example.org", q.Get("login_hint"))
	assert.Equal(t, "openid email", q.Get("scope"))
}

func TestClient_ExchangeCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "the-verifier", r.PostForm.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"acc","refresh_token":"ref","expires_in":3600,"token_type":"Bearer","id_token":"raw.id.token"}`))
	})

	pair, idToken, err := c.ExchangeCode(context.Background(), "the-code", "the-verifier", "https://api.example/oauth2callback")
	require.NoError(t, err)
	assert.Equal(t, "acc", pair.AccessSecret)
	assert.Equal(t, "ref", pair.RefreshSecret)
	require.NotNil(t, pair.Expiry)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *pair.Expiry, time.Minute)
	assert.Equal(t, "raw.id.token", idToken)
}

func TestClient_ExchangeCodeRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, _, err := c.ExchangeCode(context.Background(), "stale", "v", "https://api.example/oauth2callback")
	assert.ErrorIs(t, err, errs.ErrInvalidOrExpiredState)
	assert.NotErrorIs(t, err, errs.ErrRemote)
}

func TestClient_ExchangeCodeProviderDown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, err := c.ExchangeCode(context.Background(), "code", "v", "https://api.example/oauth2callback")
	assert.ErrorIs(t, err, errs.ErrRemote)
}

func TestClient_ExchangeCodeRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
	})

	_, _, err := c.ExchangeCode(context.Background(), "code", "v", "https://api.example/oauth2callback")
	assert.ErrorIs(t, err, errs.ErrRemote)
	assert.NotErrorIs(t, err, errs.ErrInvalidOrExpiredState)
}

func TestClient_Refresh(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600,"token_type":"Bearer"}`))
	})

	pair, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", pair.AccessSecret)
	// The provider did not rotate, so the old refresh secret carries over.
	assert.Equal(t, "old-refresh", pair.RefreshSecret)
	require.NotNil(t, pair.Expiry)
}

func TestClient_RefreshRevoked(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked."}`))
	})

	_, err := c.Refresh(context.Background(), "revoked")
	assert.ErrorIs(t, err, errs.ErrCredentialRefreshFailed)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestClient_RefreshServerError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unavailable", http.StatusServiceUnavailable, ""},
		{"rate limited", http.StatusTooManyRequests, `{"error":"rate_limit_exceeded"}`},
		{"timeout", http.StatusRequestTimeout, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Refresh(context.Background(), "r")
			assert.ErrorIs(t, err, errs.ErrRemote)
			assert.NotErrorIs(t, err, errs.ErrCredentialRefreshFailed)
		})
	}
}

func TestClient_RefreshUnauthorizedClient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	})

	_, err := c.Refresh(context.Background(), "r")
	assert.ErrorIs(t, err, errs.ErrCredentialRefreshFailed)
	assert.NotErrorIs(t, err, errs.ErrRemote)
}

func TestClient_RefreshWithoutSecret(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called")
	})

	_, err := c.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, errs.ErrCredentialRefreshFailed)
}
