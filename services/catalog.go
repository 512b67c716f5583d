package services

import (
	"context"
	"errors"

	"orderkato/db"
	"orderkato/models"

	"github.com/jackc/pgx/v5"
)

func ListAreas(ctx context.Context) ([]models.Area, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name FROM areas
		ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []models.Area
	for rows.Next() {
		var a models.Area
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// GetArea returns nil, nil when the area does not exist.
func GetArea(ctx context.Context, id int64) (*models.Area, error) {
	var a models.Area
	err := db.Pool.QueryRow(ctx, `SELECT id, name FROM areas WHERE id = $1`, id).Scan(&a.ID, &a.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func ListShopsByArea(ctx context.Context, areaID int64) ([]models.Shop, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, area_id, name, address, owner_name, phone FROM shops
		WHERE area_id = $1
		ORDER BY name`,
		areaID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shops []models.Shop
	for rows.Next() {
		var s models.Shop
		if err := rows.Scan(&s.ID, &s.AreaID, &s.Name, &s.Address, &s.OwnerName, &s.Phone); err != nil {
			return nil, err
		}
		shops = append(shops, s)
	}
	return shops, rows.Err()
}

// GetShop returns nil, nil when the shop does not exist.
func GetShop(ctx context.Context, id int64) (*models.Shop, error) {
	var s models.Shop
	err := db.Pool.QueryRow(ctx, `
		SELECT id, area_id, name, address, owner_name, phone FROM shops WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.AreaID, &s.Name, &s.Address, &s.OwnerName, &s.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT p.id, p.name, COALESCE(b.name, ''), p.price, p.discount
		FROM products p
		LEFT JOIN brands b ON p.brand_id = b.id
		ORDER BY b.name, p.name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.BrandName, &p.Price, &p.Discount); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct returns nil, nil when the product does not exist.
func GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := db.Pool.QueryRow(ctx, `
		SELECT p.id, p.name, COALESCE(b.name, ''), p.price, p.discount
		FROM products p
		LEFT JOIN brands b ON p.brand_id = b.id
		WHERE p.id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.BrandName, &p.Price, &p.Discount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
