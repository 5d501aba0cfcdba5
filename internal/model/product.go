package model

import "time"

// StockPolicy determines how a product's availability is tracked.
type StockPolicy string

const (
	StockUnlimited StockPolicy = "unlimited"
	StockCounted   StockPolicy = "counted"
)

// ProductStatus is the externally visible availability state.
type ProductStatus string

const (
	ProductActive  ProductStatus = "active"
	ProductSoldOut ProductStatus = "sold_out"
	ProductRetired ProductStatus = "retired"
)

// Product is a sellable item on a storefront. Counted products hold two
// counters: Available is total purchasable stock, Reserved is the portion
// currently held by open orders. Both are mutated only through the
// inventory engine; 0 <= Reserved <= Available at all times.
type Product struct {
	ID           string        `json:"id"`
	StorefrontID string        `json:"storefront_id"`
	Name         string        `json:"name"`
	Price        Cents         `json:"price"`
	StockPolicy  StockPolicy   `json:"stock_policy"`
	Available    int           `json:"available"`
	Reserved     int           `json:"reserved"`
	Status       ProductStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Sellable reports whether a reservation for qty units could succeed.
func (p *Product) Sellable(qty int) bool {
	if p.Status == ProductRetired {
		return false
	}
	if p.StockPolicy == StockUnlimited {
		return true
	}
	return p.Available-p.Reserved >= qty
}

// SoldOut reports whether a counted product has no unreserved stock left.
func (p *Product) SoldOut() bool {
	return p.StockPolicy == StockCounted && p.Available-p.Reserved <= 0
}

// ReservationStatus is the lifecycle of one stock hold.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is a hold of stock against a product for one order line.
// Commit converts the hold into a permanent deduction; release returns the
// stock. Both are idempotent: repeating either on a settled reservation is
// a no-op.
type Reservation struct {
	ID        string            `json:"id"`
	ProductID string            `json:"product_id"`
	OrderID   string            `json:"order_id"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
