// Package pricing derives cart and order totals. Totals are always computed
// from the lines passed in and are never stored.
package pricing

import (
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/shopspring/decimal"
)

func LineTotal(line domain.CartLine) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

func CartTotal(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line))
	}
	return total
}

func ItemCount(lines []domain.CartLine) int {
	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return count
}

func OrderTotal(lines []domain.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

func Summarize(customer domain.CustomerID, lines []domain.CartLine) *domain.CartSummary {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return &domain.CartSummary{
		Customer:  customer,
		Lines:     lines,
		Total:     CartTotal(lines),
		ItemCount: ItemCount(lines),
	}
}

// ToMinorUnits converts an amount to integer cents, rounding half away from
// zero at the cent.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Equal compares two amounts at cent precision.
func Equal(a, b decimal.Decimal) bool {
	return ToMinorUnits(a) == ToMinorUnits(b)
}
