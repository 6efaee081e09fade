package sales

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is a completed sale. It exists only when both the wallet debit
// and the stock decrement were observed to succeed, and it is never changed
// afterwards.
type Purchase struct {
	PurchaseID       int64           `json:"purchase_id"`
	CustomerUsername string          `json:"customer_username"`
	ItemName         string          `json:"item_name"`
	Quantity         int             `json:"quantity"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	PurchaseDate     time.Time       `json:"purchase_date"`
}

// MarshalJSON renders total_price as a JSON number, which is what clients of
// the sales API have always received.
func (p Purchase) MarshalJSON() ([]byte, error) {
	type alias Purchase
	return json.Marshal(struct {
		alias
		TotalPrice json.Number `json:"total_price"`
	}{
		alias:      alias(p),
		TotalPrice: json.Number(p.TotalPrice.String()),
	})
}

// SaleRequest asks for quantity units of an item to be sold to a customer.
type SaleRequest struct {
	CustomerUsername string
	ItemName         string
	Quantity         int
}

// Normalize trims surrounding whitespace from the names.
func (r SaleRequest) Normalize() SaleRequest {
	r.CustomerUsername = strings.TrimSpace(r.CustomerUsername)
	r.ItemName = strings.TrimSpace(r.ItemName)
	return r
}

// Receipt is returned for a successful sale.
type Receipt struct {
	PurchaseID int64           `json:"purchase_id"`
	SaleID     string          `json:"sale_id"`
	TotalPrice decimal.Decimal `json:"-"`
}

// Good is an item currently available for sale.
type Good struct {
	Name         string          `json:"name"`
	PricePerItem decimal.Decimal `json:"price_per_item"`
}

// MarshalJSON renders price_per_item as a JSON number.
func (g Good) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name         string      `json:"name"`
		PricePerItem json.Number `json:"price_per_item"`
	}{
		Name:         g.Name,
		PricePerItem: json.Number(g.PricePerItem.String()),
	})
}
