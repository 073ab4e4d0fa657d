package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/adapter/messaging"
	"github.com/rl1809/checkout-engine/internal/adapter/storage"
	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/core/service"
)

const (
	productA      = int64(1)
	productB      = int64(2)
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store := storage.NewMemoryAdapter()
	for _, id := range []int64{productA, productB} {
		store.PutProduct(domain.Product{
			ID:        id,
			Name:      fmt.Sprintf("product-%d", id),
			UnitPrice: decimal.RequireFromString("9.99"),
			Quantity:  initialStock,
		})
	}

	orderService := service.NewOrderService(service.Deps{
		Ledger:    store,
		Baskets:   store,
		Orders:    store,
		Addresses: store,
		Customers: store,
		Tx:        store,
		Logger:    logger,
	}, queueSize)

	// Drain the event queue in background
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		publisher := messaging.NewLogPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)))
		service.DispatchEvents(0, orderService.GetEventQueue(), publisher, logger)
	}()

	var successCount, soldOutCount, otherCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			// half the buyers list the products in reverse order
			first, second := productA, productB
			if n%2 == 1 {
				first, second = second, first
			}
			_, err := orderService.CreateOrder(ctx, domain.GuestCheckout{
				Email:   fmt.Sprintf("buyer-%d@example.com", n),
				Address: domain.Address{Street: "1 Load St", Zip: "00000", Country: "US", Province: "CA"},
				Lines: []domain.LineRequest{
					{ProductID: first, Quantity: 1},
					{ProductID: second, Quantity: 1},
				},
			}, "")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				logger.Error("unexpected checkout error", "error", err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)
	orderService.Close()
	workers.Wait()

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d per product\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success == int32(initialStock) && soldOut == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
		failed = true
	}

	for _, id := range []int64{productA, productB} {
		p, err := store.Get(ctx, id)
		if err != nil || p.Quantity != 0 {
			fmt.Printf("FAIL: Expected product %d stock 0, got %d (%v)\n", id, p.Quantity, err)
			failed = true
			continue
		}
		fmt.Printf("PASS: Product %d stock depleted to 0\n", id)
	}

	if failed {
		os.Exit(1)
	}
}
