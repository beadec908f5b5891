package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const MaxLineQuantity = 99

// CartLine is one product in a customer's cart. UnitPrice is the catalog
// price captured when the line was first created.
type CartLine struct {
	ID          int64           `json:"line_id"`
	Customer    CustomerID      `json:"customer_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	AddedAt     time.Time       `json:"added_at"`
}

type CartSummary struct {
	Customer  CustomerID      `json:"customer_id"`
	Lines     []CartLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}
