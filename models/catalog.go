package models

// Area is an immutable reference-data row: a geographic area shops belong to.
type Area struct {
	ID   int64
	Name string
}

type Shop struct {
	ID        int64
	AreaID    int64
	Name      string
	Address   string
	OwnerName string
	Phone     string
}

type Product struct {
	ID        int64
	Name      string
	BrandName string
	Price     int64
	Discount  int // percent, 0-100
}

// FinalPrice is the unit price after discount.
func (p Product) FinalPrice() int64 {
	return p.Price * int64(100-p.Discount) / 100
}
