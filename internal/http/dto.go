package http

import (
	"time"

	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/pricing"
)

type CategoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ProductDTO struct {
	ID          int64  `json:"id"`
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
	Photo       string `json:"photo,omitempty"`
}

type CartLineDTO struct {
	LineID      int64  `json:"line_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type CartDTO struct {
	Lines     []CartLineDTO `json:"lines"`
	Total     string        `json:"total"`
	ItemCount int           `json:"item_count"`
}

type CheckoutDTO struct {
	State            string     `json:"state"`
	Total            string     `json:"total,omitempty"`
	Currency         string     `json:"currency,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	RedirectURL      string     `json:"redirect_url,omitempty"`
	OrderID          string     `json:"order_id,omitempty"`
}

type OrderLineDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
}

type OrderDTO struct {
	ID               string         `json:"id"`
	CustomerID       string         `json:"customer_id"`
	Contact          domain.Contact `json:"contact"`
	Total            string         `json:"total"`
	ChargedTotal     string         `json:"charged_total"`
	Currency         string         `json:"currency"`
	PaymentReference string         `json:"payment_reference"`
	Lines            []OrderLineDTO `json:"lines"`
	CreatedAt        time.Time      `json:"created_at"`
}

type CompletionDTO struct {
	Order     OrderDTO `json:"order"`
	Mismatch  bool     `json:"mismatch"`
	Duplicate bool     `json:"duplicate"`
}

func toProductDTO(p *domain.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Photo:       p.Photo,
	}
}

func toCartDTO(s *domain.CartSummary) CartDTO {
	lines := make([]CartLineDTO, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, CartLineDTO{
			LineID:      l.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			LineTotal:   pricing.LineTotal(l).StringFixed(2),
		})
	}
	return CartDTO{Lines: lines, Total: s.Total.StringFixed(2), ItemCount: s.ItemCount}
}

func toCheckoutDTO(s *domain.CheckoutSession) CheckoutDTO {
	dto := CheckoutDTO{
		State:            string(s.State),
		PaymentReference: s.PaymentReference,
		RedirectURL:      s.RedirectURL,
		OrderID:          s.OrderID,
	}
	if s.Pending != nil {
		expires := s.Pending.ExpiresAt
		dto.Total = s.Pending.Total.StringFixed(2)
		dto.Currency = s.Pending.Currency
		dto.ExpiresAt = &expires
	}
	return dto
}

func toOrderDTO(o *domain.Order) OrderDTO {
	lines := make([]OrderLineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineDTO{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.Price.StringFixed(2),
		})
	}
	return OrderDTO{
		ID:               o.ID.String(),
		CustomerID:       string(o.Customer),
		Contact:          o.Contact,
		Total:            o.Total.StringFixed(2),
		ChargedTotal:     o.ChargedTotal.StringFixed(2),
		Currency:         o.Currency,
		PaymentReference: o.PaymentReference,
		Lines:            lines,
		CreatedAt:        o.CreatedAt,
	}
}

func toCompletionDTO(c *checkout.Completion) CompletionDTO {
	return CompletionDTO{
		Order:     toOrderDTO(c.Order),
		Mismatch:  c.Mismatch,
		Duplicate: c.Duplicate,
	}
}
