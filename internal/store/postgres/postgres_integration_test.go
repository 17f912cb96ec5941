package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shopmaster/backend/internal/domain"
	"shopmaster/backend/internal/store"
)

func TestSaleAndReturnRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("SHOPMASTER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SHOPMASTER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	shopID := fmt.Sprintf("it-shop-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		for _, table := range []string{"return_items", "returns", "sale_items", "sales", "purchases", "customers", "cash_sessions", "products"} {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE shop_id = $1`, shopID)
		}
	})

	product, err := s.CreateProduct(ctx, shopID, domain.Product{
		Name:      "Rice",
		Unit:      "kg",
		Price:     decimal.NewFromInt(52),
		CostPrice: decimal.NewFromInt(45),
		Stock:     decimal.NewFromInt(10),
		Category:  "Grocery",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	sale, err := s.CreateSale(ctx, shopID, domain.SaleRecord{
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: decimal.NewFromInt(4), Price: decimal.NewFromInt(52)},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !sale.TotalAmount.Equal(decimal.NewFromInt(208)) {
		t.Fatalf("expected sale total 208, got %s", sale.TotalAmount)
	}

	after, err := s.GetProduct(ctx, shopID, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !after.Stock.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected stock 6 after sale, got %s", after.Stock)
	}

	_, _, err = s.CreateReturn(ctx, shopID, domain.ReturnRequest{
		SaleID: sale.ID,
		Items: []domain.ReturnItemRequest{
			{ProductID: product.ID, Quantity: decimal.NewFromInt(5)},
		},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected ErrOverReturn, got %v", err)
	}

	ret, updatedSale, err := s.CreateReturn(ctx, shopID, domain.ReturnRequest{
		SaleID: sale.ID,
		Items: []domain.ReturnItemRequest{
			{ProductID: product.ID, Quantity: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if !ret.RefundAmount.Equal(decimal.NewFromInt(104)) {
		t.Fatalf("expected refund 104, got %s", ret.RefundAmount)
	}
	if updatedSale.Status != domain.SaleStatusPartialReturn {
		t.Fatalf("expected sale status %s, got %s", domain.SaleStatusPartialReturn, updatedSale.Status)
	}

	restocked, err := s.GetProduct(ctx, shopID, product.ID)
	if err != nil {
		t.Fatalf("get product after return: %v", err)
	}
	if !restocked.Stock.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("expected stock 8 after return, got %s", restocked.Stock)
	}

	totals, err := s.GetLedgerTotals(ctx, shopID)
	if err != nil {
		t.Fatalf("ledger totals: %v", err)
	}
	if !totals.Sales.Equal(decimal.NewFromInt(208)) || !totals.Refunds.Equal(decimal.NewFromInt(104)) {
		t.Fatalf("unexpected totals %+v", totals)
	}
}
