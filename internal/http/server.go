package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/webhook", handler.Webhook)
		r.Post("/featured-listing", handler.CreateFeaturedListing)
		r.Post("/auction-winner", handler.CreateAuctionWinner)
		r.Post("/check-expired", handler.CheckExpired)
		r.Post("/verify/{paymentId}", handler.VerifyPayment)
		r.Get("/{paymentId}", handler.GetPayment)
	})

	return &Server{Router: r}
}
