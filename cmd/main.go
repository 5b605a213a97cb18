package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	httpapi "karyarasa/internal/http"
	"karyarasa/internal/metrics"
	"karyarasa/internal/repository"
	"karyarasa/internal/service"

	_ "karyarasa/docs"
)

func main() {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":9091"
	}

	var (
		usersRepo      repository.UserRepository
		categoriesRepo repository.CategoryRepository
		productsRepo   repository.ProductRepository
		cartsRepo      repository.CartRepository
		promosRepo     repository.PromoRepository
		ordersRepo     repository.OrderRepository
		tx             repository.TxManager
	)

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		store, err := repository.NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		if err := store.Migrate(context.Background()); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		usersRepo = repository.NewPostgresUsers(store)
		categoriesRepo = repository.NewPostgresCategories(store)
		productsRepo = repository.NewPostgresProducts(store)
		cartsRepo = repository.NewPostgresCarts(store)
		promosRepo = repository.NewPostgresPromos(store)
		ordersRepo = repository.NewPostgresOrders(store)
		tx = repository.NewPostgresTx(store)
		log.Printf("using postgres store")
	} else {
		store := repository.NewMemoryStore()
		usersRepo = repository.NewMemoryUsers(store)
		categoriesRepo = repository.NewMemoryCategories(store)
		productsRepo = store
		cartsRepo = repository.NewMemoryCarts(store)
		promosRepo = repository.NewMemoryPromos(store)
		ordersRepo = repository.NewMemoryOrders(store)
		tx = repository.NewMemoryTx(store)
		log.Printf("DATABASE_URL not set, using in-memory store")
	}

	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	usersSvc := service.NewUserService(usersRepo)
	productsSvc := service.NewProductService(productsRepo, categoriesRepo)
	cartsSvc := service.NewCartService(cartsRepo, productsRepo)
	promosSvc := service.NewPromoService(promosRepo)
	ordersSvc := service.NewOrderService(cartsRepo, productsRepo, usersRepo, ordersRepo, promosSvc, tx, checkoutMetrics)

	srv := httpapi.NewServer(usersSvc, productsSvc, cartsSvc, promosSvc, ordersSvc)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Engine(),
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
