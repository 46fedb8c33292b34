package service

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func encrypted(t *testing.T, plain string) string {
	t.Helper()
	out, err := utils.Encrypt([]byte(plain), []byte(testSecret))
	require.NoError(t, err)
	return out
}

func decrypted(t *testing.T, cipher string) string {
	t.Helper()
	out, err := utils.Decrypt(cipher, []byte(testSecret))
	require.NoError(t, err)
	return out
}

func credentialConfig(tokenURL string) *config.Config {
	client := config.OAuthClient{ClientID: "client", ClientSecret: "secret", TokenURL: tokenURL}
	return &config.Config{
		SecretKey: testSecret,
		Pinterest: client,
		Tiktok:    client,
		Instagram: client,
		Platforms: config.Platforms{RequestTimeout: 5 * time.Second},
	}
}

func account(t *testing.T, platform models.Platform, expiresAt *time.Time) *models.SocialAccount {
	return &models.SocialAccount{
		ID:             "acc-1",
		UserID:         "user-1",
		Platform:       platform,
		AccountID:      "ext-acc",
		AccessToken:    encrypted(t, "old-access"),
		RefreshToken:   encrypted(t, "old-refresh"),
		TokenExpiresAt: expiresAt,
		IsActive:       true,
		Metadata:       models.AccountMetadata{Boards: []models.Board{{ID: "board-1"}}},
	}
}

func TestGetAccessTokenDecrypts(t *testing.T) {
	accounts := repository.NewMemoryAccountStore()
	later := time.Now().Add(time.Hour)
	accounts.Put(account(t, models.PlatformPinterest, &later))
	svc := NewCredentialService(credentialConfig("http://127.0.0.1:1"), accounts)

	cred, err := svc.GetAccessToken(context.Background(), "user-1", models.PlatformPinterest, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "old-access", cred.AccessToken)
	assert.Equal(t, "ext-acc", cred.ExternalAccountID)
	assert.Equal(t, "board-1", cred.Metadata.Boards[0].ID)
}

func TestGetAccessTokenFailuresShareOneMessage(t *testing.T) {
	accounts := repository.NewMemoryAccountStore()
	accounts.Put(account(t, models.PlatformInstagram, nil))
	inactive := account(t, models.PlatformFacebook, nil)
	inactive.ID = "acc-2"
	inactive.IsActive = false
	accounts.Put(inactive)
	svc := NewCredentialService(credentialConfig("http://127.0.0.1:1"), accounts)

	cases := []struct {
		name      string
		userID    string
		platform  models.Platform
		accountID string
	}{
		{"other user", "user-2", models.PlatformInstagram, "acc-1"},
		{"wrong platform", "user-1", models.PlatformTiktok, "acc-1"},
		{"missing account", "user-1", models.PlatformInstagram, "nope"},
		{"inactive account", "user-1", models.PlatformFacebook, "acc-2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GetAccessToken(context.Background(), tc.userID, tc.platform, tc.accountID)
			require.Error(t, err)
			assert.Equal(t, models.FailureCredential, KindOf(err))
			assert.Equal(t, "credential unavailable", MessageOf(err))
		})
	}
}

func TestExpiredPinterestTokenIsRefreshed(t *testing.T) {
	gs, srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	})
	accounts := repository.NewMemoryAccountStore()
	past := time.Now().Add(-time.Minute)
	accounts.Put(account(t, models.PlatformPinterest, &past))
	svc := NewCredentialService(credentialConfig(srv.URL), accounts)

	cred, err := svc.GetAccessToken(context.Background(), "user-1", models.PlatformPinterest, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "new-access", cred.AccessToken)

	req := gs.request(0)
	assert.Equal(t, http.MethodPost, req.Method)
	form, err := url.ParseQuery(string(req.Body))
	require.NoError(t, err)
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "old-refresh", form.Get("refresh_token"))
	user, pass, ok := (&http.Request{Header: req.Header}).BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "client", user)
	assert.Equal(t, "secret", pass)

	stored, err := accounts.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", decrypted(t, stored.RefreshToken))
	assert.True(t, stored.TokenExpiresAt.After(time.Now()))
}

// racingAccounts lets another refresher store a token right after the first read.
type racingAccounts struct {
	*repository.MemoryAccountStore
	once   sync.Once
	winner func()
}

func (r *racingAccounts) GetByID(ctx context.Context, id string) (*models.SocialAccount, error) {
	acc, err := r.MemoryAccountStore.GetByID(ctx, id)
	r.once.Do(r.winner)
	return acc, err
}

func TestGetAccessTokenUsesTokenStoredByConcurrentRefresh(t *testing.T) {
	gs, srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "late-access",
			"refresh_token": "late-refresh",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	})
	store := repository.NewMemoryAccountStore()
	past := time.Now().Add(-time.Minute)
	acc := account(t, models.PlatformPinterest, &past)
	store.Put(acc)

	later := time.Now().Add(time.Hour)
	accounts := &racingAccounts{MemoryAccountStore: store}
	accounts.winner = func() {
		require.NoError(t, store.SetToken(context.Background(), "acc-1", acc.AccessToken, &models.SocialAccount{
			AccessToken:    encrypted(t, "winner-access"),
			RefreshToken:   encrypted(t, "winner-refresh"),
			TokenExpiresAt: &later,
		}))
	}
	svc := NewCredentialService(credentialConfig(srv.URL), accounts)

	cred, err := svc.GetAccessToken(context.Background(), "user-1", models.PlatformPinterest, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "winner-access", cred.AccessToken)
	assert.Len(t, gs.paths(), 1)

	stored, err := store.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "winner-refresh", decrypted(t, stored.RefreshToken))
}

func TestRefreshFailureIsCredentialError(t *testing.T) {
	_, srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
	})
	accounts := repository.NewMemoryAccountStore()
	past := time.Now().Add(-time.Minute)
	accounts.Put(account(t, models.PlatformPinterest, &past))
	svc := NewCredentialService(credentialConfig(srv.URL), accounts)

	_, err := svc.GetAccessToken(context.Background(), "user-1", models.PlatformPinterest, "acc-1")
	assert.Equal(t, models.FailureCredential, KindOf(err))

	stored, err := accounts.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "old-access", decrypted(t, stored.AccessToken))
}

func TestRefreshTiktokSendsClientKey(t *testing.T) {
	gs, srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "tt-access",
			"refresh_token": "tt-refresh",
			"expires_in":    86400,
		})
	})
	accounts := repository.NewMemoryAccountStore()
	acc := account(t, models.PlatformTiktok, nil)
	accounts.Put(acc)
	svc := NewCredentialService(credentialConfig(srv.URL), accounts)

	require.NoError(t, svc.Refresh(context.Background(), acc))

	form, err := url.ParseQuery(string(gs.request(0).Body))
	require.NoError(t, err)
	assert.Equal(t, "client", form.Get("client_key"))
	assert.Equal(t, "old-refresh", form.Get("refresh_token"))

	stored, err := accounts.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "tt-access", decrypted(t, stored.AccessToken))
	assert.Equal(t, "tt-refresh", decrypted(t, stored.RefreshToken))
}

func TestRefreshInstagramReusesAccessToken(t *testing.T) {
	gs, srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "ig-new", "expires_in": 5184000})
	})
	accounts := repository.NewMemoryAccountStore()
	acc := account(t, models.PlatformInstagram, nil)
	accounts.Put(acc)
	svc := NewCredentialService(credentialConfig(srv.URL), accounts)

	require.NoError(t, svc.Refresh(context.Background(), acc))
	assert.Equal(t, http.MethodGet, gs.request(0).Method)

	stored, err := accounts.GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "ig-new", decrypted(t, stored.AccessToken))
	assert.Equal(t, "ig-new", decrypted(t, stored.RefreshToken))
}

func TestRefreshRacesAndUnsupportedPlatforms(t *testing.T) {
	_, srv := newGraphServer(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "tt-access", "expires_in": 60})
	})
	accounts := repository.NewMemoryAccountStore()
	acc := account(t, models.PlatformTiktok, nil)
	accounts.Put(acc)
	svc := NewCredentialService(credentialConfig(srv.URL), accounts)

	require.NoError(t, svc.Refresh(context.Background(), acc))
	// acc still carries the token that was just replaced
	assert.ErrorIs(t, svc.Refresh(context.Background(), acc), repository.ErrTokenRaced)

	fb := account(t, models.PlatformFacebook, nil)
	assert.ErrorIs(t, svc.Refresh(context.Background(), fb), ErrNotRefreshable)
}
