package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// webhookBodyLimit matches the largest event payload the processor sends.
const webhookBodyLimit = 64 << 10

type Services struct {
	Carts      *service.CartService
	Checkout   *service.CheckoutService
	Settlement *service.SettlementService
	Orders     *service.OrderService
	Coupons    *service.CouponService
}

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	Logger             zerolog.Logger
	Metrics            *metrics.Metrics
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// HealthCheck, when set, makes /health report 503 while it fails.
	HealthCheck func(ctx context.Context) error
}

func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20
	}

	cartHandler := NewCartHandler(svc.Carts, cfg.RequestTimeout)
	checkoutHandler := NewCheckoutHandler(svc.Checkout, cfg.RequestTimeout)
	webhookHandler := NewWebhookHandler(svc.Settlement, webhookBodyLimit, cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(svc.Orders, cfg.RequestTimeout)
	couponHandler := NewCouponHandler(svc.Coupons, cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(r.Context()); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Authenticated by signature, not by caller identity.
		r.Post("/webhooks/payment", webhookHandler.HandlePayment)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
			r.Use(IdentityMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(RequireUser)

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", cartHandler.GetCart)
					r.Delete("/", cartHandler.ClearCart)
					r.Post("/items", cartHandler.AddItem)
					r.Put("/items/{itemID}", cartHandler.UpdateQuantity)
					r.Delete("/items/{itemID}", cartHandler.RemoveItem)
					r.Post("/coupon", cartHandler.ApplyCoupon)
					r.Delete("/coupon", cartHandler.RemoveCoupon)
				})

				r.Post("/checkout", checkoutHandler.Checkout)

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", ordersHandler.ListOrders)
					r.Get("/{orderID}", ordersHandler.GetOrder)
					r.Post("/{orderID}/cancel", ordersHandler.CancelOrder)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Get("/orders", ordersHandler.ListAllOrders)
				r.Patch("/orders/{orderID}", ordersHandler.UpdateOrder)
				r.Post("/coupons", couponHandler.CreateCoupon)
			})
		})
	})

	return r
}
