package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// ErrTokenRaced means the stored access token changed between read and refresh.
var ErrTokenRaced = errors.New("no rows affected; token was refreshed concurrently")

type SocialAccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.SocialAccount, error)
	ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error)
	SetToken(ctx context.Context, id, oldAccessToken string, sa *models.SocialAccount) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const accountColumns = `id, user_id, platform, account_id, account_name, account_username,
	access_token, refresh_token, token_expires_at, is_active, metadata, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	var metadata []byte
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountName, &sa.AccountUsername,
		&sa.AccessToken, &sa.RefreshToken, &sa.TokenExpiresAt, &sa.IsActive, &metadata, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &sa.Metadata); err != nil {
			return nil, err
		}
	}
	return &sa, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id string) (*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE id = $1`
	sa, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sa, nil
}

func (r *socialAccountRepository) ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + `
			FROM social_accounts
			WHERE is_active AND refresh_token <> ''
			AND ((token_expires_at BETWEEN $1 AND $2) OR (token_expires_at < $1))`
	rows, err := r.db.QueryContext(ctx, query, initialTime, finalTime)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var socialAccounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		socialAccounts = append(socialAccounts, sa)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return socialAccounts, nil
}

// SetToken swaps in a refreshed token only if the stored one is still oldAccessToken,
// so two concurrent refreshes cannot overwrite each other.
func (r *socialAccountRepository) SetToken(ctx context.Context, id, oldAccessToken string, sa *models.SocialAccount) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateTokenQuery := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2;
	`
	result, err := tx.ExecContext(ctx, updateTokenQuery, id, oldAccessToken, sa.AccessToken, sa.RefreshToken, sa.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info(ErrTokenRaced.Error(), "account_id", id)
		return ErrTokenRaced
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
