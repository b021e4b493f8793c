package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/catalog"
	"github.com/fjod/go_cart/internal/metrics"
)

type Deps struct {
	Carts    CartService
	Catalog  catalog.Catalog
	Checkout CheckoutService
	Orders   OrderService
	Coupons  CouponAdmin
	Stock    StockAdmin
	Metrics  *metrics.Metrics
	Log      *zap.Logger

	// Health reports dependency readiness for GET /health; nil means always healthy.
	Health func(ctx context.Context) error

	JWTSecret      []byte
	WebhookSecret  string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter wires every route and wraps the result for tracing.
func NewRouter(d Deps) http.Handler {
	cartHandler := NewCartHandler(d.Carts, d.Catalog)
	checkoutHandler := NewCheckoutHandler(d.Checkout)
	ordersHandler := NewOrdersHandler(d.Orders)
	adminHandler := NewAdminHandler(d.Coupons, d.Stock)

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(d.Log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(d.Metrics))
	r.Use(middleware.Timeout(d.RequestTimeout))
	r.Use(BodyLimit(d.MaxBodyBytes))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r.Context()); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.With(WebhookSecretMiddleware(d.WebhookSecret)).Post("/webhooks/payments", checkoutHandler.PaymentWebhook)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.JWTSecret))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Put("/", cartHandler.UpsertCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Put("/address", cartHandler.SetAddress)
			r.Post("/coupon", cartHandler.ApplyCoupon)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/authorize", checkoutHandler.Authorize)
			r.Post("/finalize", checkoutHandler.Finalize)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{id}", ordersHandler.GetOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/coupons", adminHandler.ListCoupons)
			r.Post("/coupons", adminHandler.CreateCoupon)
			r.Delete("/coupons/{code}", adminHandler.DeleteCoupon)
			r.Patch("/orders/{id}/status", ordersHandler.UpdateStatus)
			r.Get("/inventory", adminHandler.GetStock)
			r.Put("/inventory/{product_id}", adminHandler.SetStock)
		})
	})

	return otelhttp.NewHandler(r, "checkout-service")
}
