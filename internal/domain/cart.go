package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fjod/go_cart/internal/money"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidLine    = errors.New("invalid cart line")
	ErrInvalidAddress = errors.New("invalid shipping address")
)

var (
	zipCodePattern = regexp.MustCompile(`^[0-9]{5}(-[0-9]{4})?$`)
	phonePattern   = regexp.MustCompile(`^[0-9-+()]{7,20}$`)
)

const maxAddressMessage = 500

// Cart is the open, mutable cart of a single owner. Subtotal, Discount and
// TotalAfterDiscount are derived from Lines and DiscountPercent by Recompute.
type Cart struct {
	ID                 string      `json:"id" bson:"cart_id"`
	OwnerID            string      `json:"owner_id" bson:"user_id"`
	Currency           string      `json:"currency" bson:"currency"`
	Lines              []CartLine  `json:"lines" bson:"lines"`
	Subtotal           money.Money `json:"subtotal" bson:"subtotal"`
	CouponCode         string      `json:"coupon_code,omitempty" bson:"coupon_code,omitempty"`
	DiscountPercent    string      `json:"discount_percent,omitempty" bson:"discount_percent,omitempty"`
	Discount           money.Money `json:"discount" bson:"discount"`
	TotalAfterDiscount money.Money `json:"total_after_discount" bson:"total_after_discount"`
	ShippingAddress    *Address    `json:"shipping_address,omitempty" bson:"shipping_address,omitempty"`
	Version            int64       `json:"version" bson:"version"`
	CreatedAt          time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" bson:"updated_at"`
}

// CartLine snapshots the catalog price and title at the time the line was added.
type CartLine struct {
	ProductID string      `json:"product_id" bson:"product_id"`
	UnitPrice money.Money `json:"unit_price" bson:"unit_price"`
	Quantity  int64       `json:"quantity" bson:"quantity"`
	Color     string      `json:"color,omitempty" bson:"color,omitempty"`
	Size      string      `json:"size,omitempty" bson:"size,omitempty"`
	Title     string      `json:"title,omitempty" bson:"title,omitempty"`
}

type Address struct {
	UnitNumber  string `json:"unit_number,omitempty" bson:"unit_number,omitempty"`
	Street      string `json:"street" bson:"street"`
	City        string `json:"city" bson:"city"`
	State       string `json:"state" bson:"state"`
	ZipCode     string `json:"zip_code" bson:"zip_code"`
	Country     string `json:"country" bson:"country"`
	PhoneNumber string `json:"phone_number" bson:"phone_number"`
	Message     string `json:"message,omitempty" bson:"message,omitempty"`
}

func (l CartLine) Validate() error {
	if strings.TrimSpace(l.ProductID) == "" {
		return fmt.Errorf("%w: product_id is required", ErrInvalidLine)
	}
	if l.Quantity < 1 {
		return fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidLine, l.ProductID)
	}
	if l.UnitPrice.Amount < 0 {
		return fmt.Errorf("%w: price for %s cannot be negative", ErrInvalidLine, l.ProductID)
	}
	return nil
}

// Normalize trims every field in place.
func (a *Address) Normalize() {
	a.UnitNumber = strings.TrimSpace(a.UnitNumber)
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.Country = strings.TrimSpace(a.Country)
	a.PhoneNumber = strings.TrimSpace(a.PhoneNumber)
	a.Message = strings.TrimSpace(a.Message)
}

func (a Address) Validate() error {
	required := []struct{ name, value string }{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zip_code", a.ZipCode},
		{"country", a.Country},
		{"phone_number", a.PhoneNumber},
	}
	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidAddress, field.name)
		}
	}
	if !zipCodePattern.MatchString(a.ZipCode) {
		return fmt.Errorf("%w: zip_code %q", ErrInvalidAddress, a.ZipCode)
	}
	if !phonePattern.MatchString(a.PhoneNumber) {
		return fmt.Errorf("%w: phone_number %q", ErrInvalidAddress, a.PhoneNumber)
	}
	if len(a.Message) > maxAddressMessage {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidAddress, maxAddressMessage)
	}
	return nil
}

// Recompute derives the cart totals from the current lines and discount percent.
// It reports whether the discounted total had to be clamped at zero.
func (c *Cart) Recompute() (bool, error) {
	subtotal := money.Zero(c.Currency)
	for _, line := range c.Lines {
		lineTotal, err := line.UnitPrice.MultiplyQuantity(line.Quantity)
		if err != nil {
			return false, fmt.Errorf("line %s: %w", line.ProductID, err)
		}
		if subtotal, err = subtotal.Add(lineTotal); err != nil {
			return false, fmt.Errorf("line %s: %w", line.ProductID, err)
		}
	}

	discount := money.Zero(c.Currency)
	if c.DiscountPercent != "" {
		percent, err := decimal.NewFromString(c.DiscountPercent)
		if err != nil {
			return false, fmt.Errorf("parse discount percent %q: %w", c.DiscountPercent, err)
		}
		if discount, err = subtotal.PercentOf(percent); err != nil {
			return false, err
		}
	}

	total, clamped, err := subtotal.Subtract(discount)
	if err != nil {
		return false, err
	}

	c.Subtotal = subtotal
	c.Discount = discount
	c.TotalAfterDiscount = total
	return clamped, nil
}

// Clone returns a deep copy so stored carts are never aliased by callers.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = append([]CartLine(nil), c.Lines...)
	if c.ShippingAddress != nil {
		addr := *c.ShippingAddress
		clone.ShippingAddress = &addr
	}
	return &clone
}
