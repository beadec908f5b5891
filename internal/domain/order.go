package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the permanent record written once payment is confirmed. Total is
// derived from the lines; ChargedTotal is what the processor was asked for.
type Order struct {
	ID               uuid.UUID       `json:"id"`
	Customer         CustomerID      `json:"customer_id"`
	Contact          Contact         `json:"contact"`
	Total            decimal.Decimal `json:"total"`
	ChargedTotal     decimal.Decimal `json:"charged_total"`
	Currency         string          `json:"currency"`
	PaymentReference string          `json:"payment_reference"`
	CreatedAt        time.Time       `json:"created_at"`
	Lines            []OrderLine     `json:"lines"`
}

type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}
