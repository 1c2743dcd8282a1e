package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gavelstr/gavelstr/internal/config"
	"github.com/gavelstr/gavelstr/internal/handlers"
	"github.com/gavelstr/gavelstr/internal/services"
	"github.com/gavelstr/gavelstr/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var signer services.Signer
	signer, err = services.NewLocalSigner(cfg.Identity.Key)
	if err != nil {
		log.Fatalf("load identity: %v", err)
	}
	log.Printf("identity: %s", signer.PublicKey())

	pool := store.NewPool(
		cfg.Relays.URLs,
		time.Duration(cfg.Relays.QueryTimeout)*time.Second,
		time.Duration(cfg.Relays.PublishTimeout)*time.Second,
	)
	defer pool.Close()

	authService := services.NewAuthService(cfg.Auth)
	auctionService := services.NewAuctionService(pool, signer)
	messageService := services.NewMessageService(pool, signer)

	var provider services.LightningProvider
	if p := services.NewLNBitsProvider(cfg.Lightning.Endpoint, cfg.Lightning.APIKey); p != nil {
		provider = p
	}
	paymentFlow := services.NewPaymentFlow(provider, messageService)

	hub := handlers.NewHub()
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller := services.NewPoller()
	poller.Every("listings", time.Duration(cfg.Poll.Listings)*time.Second, func(ctx context.Context) error {
		if _, err := auctionService.ListAuctions(ctx); err != nil {
			return err
		}
		hub.BroadcastRefresh("listings")
		return nil
	})
	poller.Every("bids", time.Duration(cfg.Poll.Bids)*time.Second, func(ctx context.Context) error {
		for _, auctionID := range hub.WatchedAuctions() {
			view, err := auctionService.GetAuction(ctx, auctionID)
			if err != nil {
				return err
			}
			if view != nil {
				hub.BroadcastAuction(auctionID, view)
			}
		}
		return nil
	})
	poller.Every("messages", time.Duration(cfg.Poll.Messages)*time.Second, func(ctx context.Context) error {
		if _, err := messageService.Threads(ctx, nil); err != nil {
			return err
		}
		hub.BroadcastRefresh("messages")
		return nil
	})
	poller.Start(ctx)

	router := handlers.NewRouter(authService, auctionService, messageService, paymentFlow, hub)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on :%d, relays: %v", cfg.Server.Port, cfg.Relays.URLs)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: %v", err)
	}

	poller.Wait()
}
