package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Coupon struct {
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NormalizeCode makes coupon lookups case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsExpiredAt treats the expiry instant itself as expired.
func (c Coupon) IsExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
