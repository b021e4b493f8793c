package domain

import (
	"time"

	"github.com/fjod/go_cart/internal/money"
)

type Product struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       money.Money `json:"price"`
	ImageURL    string      `json:"image_url"`
	CreatedAt   time.Time   `json:"created_at"`
}
