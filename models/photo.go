package models

import "time"

// VerifiedPhoto is an accepted shop photo: the stored file plus the
// capture timestamp extracted from its metadata. Immutable once created.
type VerifiedPhoto struct {
	Path     string // relative path under the shop image dir, e.g. "ShopImage/shop_3_user_7_....jpg"
	ShopID   int64
	UserID   int64
	TakenAt  time.Time
	StoredAt time.Time
}
