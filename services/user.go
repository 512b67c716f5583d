package services

import (
	"context"
	"errors"

	"orderkato/db"
	"orderkato/models"

	"github.com/jackc/pgx/v5"
)

// GetUserByTelegram resolves a registered user by Telegram username
// (case-sensitive, as registered). Returns nil, nil when not registered.
func GetUserByTelegram(ctx context.Context, telUsername string) (*models.User, error) {
	var u models.User
	err := db.Pool.QueryRow(ctx, `
		SELECT id, tel_username, name FROM users WHERE tel_username = $1`,
		telUsername,
	).Scan(&u.ID, &u.TelUsername, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
