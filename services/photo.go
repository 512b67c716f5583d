package services

import (
	"context"

	"orderkato/db"
	"orderkato/models"
)

// RecordShopPhoto persists the metadata row for an accepted shop photo.
// The file itself is written by the verifier; path uniqueness makes the
// insert safe under concurrent writers.
func RecordShopPhoto(ctx context.Context, p models.VerifiedPhoto) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO shop_photos (path, shop_id, user_id, taken_at, stored_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.Path, p.ShopID, p.UserID, p.TakenAt, p.StoredAt,
	)
	return err
}
