package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brightcart/commerce-core/internal/address"
	"github.com/brightcart/commerce-core/internal/cart"
	"github.com/brightcart/commerce-core/internal/checkout"
	"github.com/brightcart/commerce-core/internal/clock"
	"github.com/brightcart/commerce-core/internal/config"
	"github.com/brightcart/commerce-core/internal/db"
	"github.com/brightcart/commerce-core/internal/discount"
	"github.com/brightcart/commerce-core/internal/handler"
	"github.com/brightcart/commerce-core/internal/identity"
	"github.com/brightcart/commerce-core/internal/inventory"
	"github.com/brightcart/commerce-core/internal/notification"
	"github.com/brightcart/commerce-core/internal/order"
	"github.com/brightcart/commerce-core/internal/payment"
	"github.com/brightcart/commerce-core/internal/pricing"
	"github.com/brightcart/commerce-core/internal/scheduler"
	"github.com/brightcart/commerce-core/internal/taskqueue"
	"github.com/brightcart/commerce-core/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "commerce-core").Logger()

	log.Info().Msg("Commerce core starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	if err := db.ApplyMigrations(pg.Pool, cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	dispatcher := notification.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer dispatcher.Close()

	clk := clock.System()

	cartRepo := cart.NewRepository(pg.Pool)
	productRepo := inventory.NewRepository(pg.Pool)
	orderRepo := order.NewRepository(pg.Pool)
	discountRepo := discount.NewRepository(pg.Pool)
	guestRepo := identity.NewRepository(pg.Pool)
	addressBook := address.NewBook(pg.Pool)
	queue := taskqueue.NewQueue(pg.Pool)

	adjuster := inventory.NewAdjuster(productRepo, dispatcher)
	orderSvc := order.NewService(orderRepo, adjuster, dispatcher)
	cartSvc := cart.NewService(cartRepo, productRepo)
	validator := discount.NewValidator(discountRepo, clk)

	checkoutSvc := checkout.NewService(
		pg, cartRepo, productRepo, orderRepo, discountRepo, validator,
		addressBook, pricing.DefaultFlatRates(), queue, dispatcher,
	)

	processor := payment.NewProcessor(orderRepo, orderSvc, payment.NewAutoApproveGateway())
	poller := taskqueue.NewPoller(pg.Pool, 15*time.Second, 20)
	poller.Register(taskqueue.KindPaymentProcess, processor.HandleTask)
	poller.Register(taskqueue.KindPaymentRetry, processor.HandleTask)

	sched := scheduler.New()
	sweeps := scheduler.NewSweeps(orderRepo, orderSvc, cartRepo, guestRepo, productRepo, queue, dispatcher, clk)
	sweeps.Register(sched, scheduler.Intervals{
		StalePending:  cfg.Scheduler.StalePendingInterval,
		AbandonedCart: cfg.Scheduler.AbandonedCartInterval,
		GuestExpiry:   cfg.Scheduler.GuestExpiryInterval,
		LowStock:      cfg.Scheduler.LowStockInterval,
		OrderCleanup:  cfg.Scheduler.OrderCleanupInterval,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	router := transport.NewRouter(
		handler.NewCartHandler(cartSvc),
		handler.NewCheckoutHandler(checkoutSvc),
		handler.NewOrderHandler(orderSvc),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}

	cancel()
	wg.Wait()
	log.Info().Msg("Commerce core stopped")
}
