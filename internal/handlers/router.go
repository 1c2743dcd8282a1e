package handlers

import (
	"net/http"

	"github.com/gavelstr/gavelstr/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the local API router
func NewRouter(
	authService *services.AuthService,
	auctionService *services.AuctionService,
	messageService *services.MessageService,
	paymentFlow *services.PaymentFlow,
	hub *Hub,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/challenge", CreateChallenge(authService))
		r.Post("/auth/login", Login(authService))

		// read paths are open; the daemon serves derived public data
		r.Get("/auctions", GetAllAuctions(auctionService))
		r.Get("/auctions/{id}", GetAuction(auctionService))
		r.Get("/auctions/{id}/comments", GetComments(auctionService))

		// write paths and private data require a session
		r.Group(func(r chi.Router) {
			r.Use(Authenticator(authService))

			r.Post("/auctions", CreateAuction(auctionService))
			r.Post("/auctions/{id}/bids", PlaceBid(auctionService))
			r.Post("/auctions/{id}/bids/{bidID}/confirm", ConfirmBid(auctionService))
			r.Post("/auctions/{id}/status", UpdateStatus(auctionService))
			r.Post("/auctions/{id}/comments", CreateComment(auctionService))
			r.Post("/reactions", React(auctionService))

			r.Get("/threads", GetThreads(messageService, auctionService))
			r.Post("/messages", SendMessage(messageService))

			r.Get("/payments", GetPaymentState(paymentFlow))
			r.Post("/payments/invoice", CreateInvoice(paymentFlow))
			r.Post("/payments/send", SendPayment(paymentFlow))
			r.Post("/payments/pay", Pay(paymentFlow))
		})
	})

	r.Get("/ws", ServeWs(hub))

	return r
}
