package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
	"golang.org/x/oauth2"
)

var ErrNotRefreshable = errors.New("platform tokens are not refreshable")

// refreshSkew refreshes tokens slightly before they expire.
const refreshSkew = time.Minute

type CredentialStore interface {
	GetAccessToken(ctx context.Context, userID string, platform models.Platform, accountID string) (*models.Credential, error)
}

type CredentialService struct {
	cfg      *config.Config
	accounts repository.SocialAccountRepository
	http     *resty.Client
	now      func() time.Time
}

func NewCredentialService(cfg *config.Config, accounts repository.SocialAccountRepository) *CredentialService {
	return &CredentialService{
		cfg:      cfg,
		accounts: accounts,
		http:     resty.New().SetTimeout(cfg.Platforms.RequestTimeout),
		now:      time.Now,
	}
}

// GetAccessToken returns a live decrypted credential. Any failure to produce one is a
// credential error carrying the fixed message "credential unavailable".
func (s *CredentialService) GetAccessToken(ctx context.Context, userID string, platform models.Platform, accountID string) (*models.Credential, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, s.unavailable(platform, accountID, err)
	}
	if acc.UserID != userID || acc.Platform != platform || !acc.IsActive {
		return nil, s.unavailable(platform, accountID, errors.New("account does not belong to user or platform, or is inactive"))
	}

	if acc.TokenExpiresAt != nil && !s.now().Add(refreshSkew).Before(*acc.TokenExpiresAt) {
		// Losing the race means another refresher already stored a fresh token.
		if err := s.Refresh(ctx, acc); err != nil && !errors.Is(err, repository.ErrTokenRaced) {
			return nil, s.unavailable(platform, accountID, fmt.Errorf("token expired and refresh failed: %w", err))
		}
		if acc, err = s.accounts.GetByID(ctx, accountID); err != nil {
			return nil, s.unavailable(platform, accountID, err)
		}
	}

	token, err := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil || token == "" {
		return nil, s.unavailable(platform, accountID, errors.New("stored token cannot be decrypted"))
	}

	return &models.Credential{
		AccessToken:       token,
		ExternalAccountID: acc.AccountID,
		Metadata:          acc.Metadata,
	}, nil
}

func (s *CredentialService) unavailable(platform models.Platform, accountID string, cause error) error {
	slog.Info("credential unavailable", "platform", platform, "account_id", accountID, "error", cause)
	return Credential(platform, nil, "credential unavailable")
}

// Refresh exchanges the account's refresh token and stores the new encrypted tokens.
func (s *CredentialService) Refresh(ctx context.Context, acc *models.SocialAccount) error {
	key := []byte(s.cfg.SecretKey)

	refreshToken, err := utils.Decrypt(acc.RefreshToken, key)
	if err != nil {
		return err
	}

	var token *oauth2.Token
	switch acc.Platform {
	case models.PlatformPinterest:
		token, err = s.refreshOAuth2(ctx, s.cfg.Pinterest, refreshToken)
	case models.PlatformTiktok:
		token, err = s.refreshTiktok(ctx, refreshToken)
	case models.PlatformInstagram:
		token, err = s.refreshInstagram(ctx, refreshToken)
	default:
		err = fmt.Errorf("%s: %w", acc.Platform, ErrNotRefreshable)
	}
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), key)
	if err != nil {
		return err
	}
	updated := models.SocialAccount{AccessToken: encryptedAccessToken}
	if token.RefreshToken != "" {
		if updated.RefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), key); err != nil {
			return err
		}
	} else if acc.Platform == models.PlatformInstagram {
		// Instagram long-lived tokens refresh themselves.
		updated.RefreshToken = encryptedAccessToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		updated.TokenExpiresAt = &expiry
	}

	return s.accounts.SetToken(ctx, acc.ID, acc.AccessToken, &updated)
}

func (s *CredentialService) refreshOAuth2(ctx context.Context, client config.OAuthClient, refreshToken string) (*oauth2.Token, error) {
	conf := &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  client.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  client.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	// An already expired token forces the source to use the refresh grant.
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Now().Add(-time.Minute)}
	return conf.TokenSource(ctx, expired).Token()
}

// refreshTiktok posts the refresh grant with TikTok's client_key parameter name,
// which the generic oauth2 client cannot send.
func (s *CredentialService) refreshTiktok(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var result transfer.TiktokTokenResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_key":    s.cfg.Tiktok.ClientID,
			"client_secret": s.cfg.Tiktok.ClientSecret,
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		}).
		ForceContentType("application/json").
		SetResult(&result).
		Post(s.cfg.Tiktok.TokenURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() || result.AccessToken == "" {
		return nil, fmt.Errorf("tiktok token endpoint returned status %d", resp.StatusCode())
	}
	return &oauth2.Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		Expiry:       GetExpiresAt(result.ExpiresIn),
	}, nil
}

func (s *CredentialService) refreshInstagram(ctx context.Context, longLivedToken string) (*oauth2.Token, error) {
	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":   "ig_refresh_token",
			"access_token": longLivedToken,
		}).
		ForceContentType("application/json").
		SetResult(&result).
		Get(s.cfg.Instagram.TokenURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() || result.AccessToken == "" {
		return nil, fmt.Errorf("instagram refresh endpoint returned status %d", resp.StatusCode())
	}
	return &oauth2.Token{AccessToken: result.AccessToken, Expiry: GetExpiresAt(result.ExpiresIn)}, nil
}
