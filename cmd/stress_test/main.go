package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/mini-oms/internal/adapter/auth"
	"github.com/rl1809/mini-oms/internal/adapter/storage"
	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/core/service"
	"github.com/rl1809/mini-oms/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// Places totalRequests single-unit orders against one product and approves them all at once.
// Exactly initialStock approvals may succeed and stock must end at zero.
func main() {
	ctx := context.Background()

	db := openStorage(ctx)
	units, err := service.NewUnitService(db).SeedDefaults(ctx)
	if err != nil {
		log.Fatalf("failed to seed units: %v", err)
	}
	kg := units["KG"]

	authService := service.NewAuthService(db, auth.NewBcryptHasher(bcrypt.MinCost), auth.NewTokenManager("stress-test", time.Hour))
	catalog := service.NewCatalogService(db)
	orders := service.NewOrderService(db, nil, nil)

	run := time.Now().UnixNano()
	register := func(name, role string) domain.User {
		res, err := authService.Register(ctx, service.RegisterInput{
			Username: fmt.Sprintf("%s-%d", name, run),
			Email:    fmt.Sprintf("%s-%d@stress.test", name, run),
			Password: "password",
			Role:     role,
		})
		if err != nil {
			log.Fatalf("failed to register %s: %v", name, err)
		}
		return res.User
	}
	supplier := register("supplier", "SUPPLIER")
	admin := register("admin", "ADMIN")
	buyer := register("buyer", "BUYER")

	stock := decimal.NewFromInt(initialStock)
	product, _, err := catalog.UpsertProduct(ctx, domain.Principal{UserID: supplier.ID, Role: supplier.Role}, service.ProductInput{
		Name:         fmt.Sprintf("stress-item-%d", run),
		PricePerUnit: decimal.NewFromInt(10),
		BaseUomID:    kg.ID,
		InitialStock: &stock,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	// Placement only checks stock, so every order is accepted.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		orderIDs []string
		placeErr atomic.Int32
	)
	start := time.Now()
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := orders.PlaceOrder(ctx, buyer.ID, []service.PlaceOrderItem{{
				ProductID:  product.ID,
				SupplierID: supplier.ID,
				Quantity:   decimal.NewFromInt(1),
				UomID:      kg.ID,
			}}, "")
			if err != nil {
				placeErr.Add(1)
				log.Printf("place failed: %v", err)
				return
			}
			mu.Lock()
			orderIDs = append(orderIDs, order.ID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var successCount, stockFailCount, otherFailCount atomic.Int32
	for _, id := range orderIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := orders.ChangeStatus(ctx, id, domain.OrderStatusApproved, admin.ID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrInsufficientStock):
				stockFailCount.Add(1)
			default:
				otherFailCount.Add(1)
				log.Printf("approve failed: %v", err)
			}
		}(id)
	}
	wg.Wait()
	elapsed := time.Since(start)

	inv, err := db.GetInventory(ctx, product.ID)
	if err != nil || inv == nil {
		log.Fatalf("failed to read final stock: %v", err)
	}

	success := successCount.Load()
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:      %d\n", initialStock)
	fmt.Printf("Orders Placed:      %d (failed %d)\n", len(orderIDs), placeErr.Load())
	fmt.Printf("Approved:           %d\n", success)
	fmt.Printf("Insufficient Stock: %d\n", stockFailCount.Load())
	fmt.Printf("Other Failures:     %d\n", otherFailCount.Load())
	fmt.Printf("Final Stock:        %s\n", inv.Quantity)
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	if success != initialStock || otherFailCount.Load() != 0 {
		fmt.Printf("FAIL: expected %d approvals, got %d\n", initialStock, success)
		ok = false
	}
	if !inv.Quantity.IsZero() {
		fmt.Printf("FAIL: expected stock 0, got %s\n", inv.Quantity)
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Println("PASS: stock depleted to 0 without going negative")
}

func openStorage(ctx context.Context) port.DatabaseRepository {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		log.Println("MYSQL_DSN not set, using in-memory storage")
		return storage.NewMemoryAdapter()
	}

	db, err := sqlx.ConnectContext(ctx, "mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	return adapter
}
