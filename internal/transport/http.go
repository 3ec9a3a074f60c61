package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightcart/commerce-core/internal/handler"
	"github.com/brightcart/commerce-core/pkg/metrics"
)

// NewRouter assembles the HTTP surface: cart and order resources for the
// authenticated owner, checkout, and the operational endpoints.
func NewRouter(carts *handler.CartHandler, checkouts *handler.CheckoutHandler, orders *handler.OrderHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", carts.GetCart)
		r.Delete("/", carts.ClearCart)
		r.Post("/items", carts.AddItem)
		r.Put("/items/{itemID}", carts.UpdateItem)
		r.Delete("/items/{itemID}", carts.RemoveItem)
	})

	r.Post("/checkout", checkouts.Checkout)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", orders.ListOrders)
		r.Get("/{orderID}", orders.GetOrder)
		r.Patch("/{orderID}/status", orders.UpdateStatus)
	})

	return r
}
