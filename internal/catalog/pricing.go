package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/internal/domain"
)

var ErrCurrencyNotSupported = errors.New("product is not sold in the cart currency")

// LineRequest is a cart line as submitted by a client, before pricing.
type LineRequest struct {
	ProductID string
	Quantity  int64
	Color     string
	Size      string
}

// PriceLines snapshots the current catalog price and title into each line.
// Prices are never re-read after this point.
func PriceLines(ctx context.Context, c Catalog, currency string, reqs []LineRequest) ([]domain.CartLine, error) {
	lines := make([]domain.CartLine, 0, len(reqs))
	for _, req := range reqs {
		p, err := c.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Price.Currency != currency {
			return nil, fmt.Errorf("%w: %s is priced in %s", ErrCurrencyNotSupported, p.ID, p.Price.Currency)
		}
		lines = append(lines, domain.CartLine{
			ProductID: p.ID,
			UnitPrice: p.Price,
			Quantity:  req.Quantity,
			Color:     req.Color,
			Size:      req.Size,
			Title:     p.Name,
		})
	}
	return lines, nil
}
