package coupon

import "errors"

var (
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCouponExpired   = errors.New("coupon expired")
	ErrDuplicateCoupon = errors.New("coupon already exists")
	ErrInvalidCoupon   = errors.New("invalid coupon")
)
