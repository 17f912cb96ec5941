package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"shopmaster/backend/internal/domain"
	"shopmaster/backend/internal/store"
)

const testShop = "shop-test"

func mustDec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", v, err)
	}
	return d
}

func seedProduct(t *testing.T, s *Store, name string, price, cost, stock string) domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), testShop, domain.Product{
		Name:      name,
		Unit:      "kg",
		Price:     mustDec(t, price),
		CostPrice: mustDec(t, cost),
		Stock:     mustDec(t, stock),
		Category:  "Grocery",
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return *p
}

func TestCreateSaleDecrementsStockAndComputesTotal(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "100")

	sale, err := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{
			{ProductID: rice.ID, Quantity: mustDec(t, "5"), Price: mustDec(t, "52")},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.ID != "SALE-"+time.Now().UTC().Format("2006")+"-00001" {
		t.Fatalf("unexpected sale id %s", sale.ID)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", sale.Status)
	}
	if !sale.TotalAmount.Equal(mustDec(t, "260")) {
		t.Fatalf("expected total 260, got %s", sale.TotalAmount)
	}

	got, err := s.GetProduct(ctx, testShop, rice.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if !got.Stock.Equal(mustDec(t, "95")) {
		t.Fatalf("expected stock 95, got %s", got.Stock)
	}
}

func TestCreateSaleRejectsOversellWithoutPartialMutation(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")
	oil := seedProduct(t, s, "Oil", "165", "152", "3")

	_, err := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{
			{ProductID: rice.ID, Quantity: mustDec(t, "2"), Price: mustDec(t, "52")},
			{ProductID: oil.ID, Quantity: mustDec(t, "4"), Price: mustDec(t, "165")},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The first line must not have been applied.
	got, _ := s.GetProduct(ctx, testShop, rice.ID)
	if !got.Stock.Equal(mustDec(t, "10")) {
		t.Fatalf("stock mutated on rejected sale: %s", got.Stock)
	}
	sales, _ := s.ListSales(ctx, testShop)
	if len(sales) != 0 {
		t.Fatalf("rejected sale was recorded")
	}
}

func TestCreateSaleRejectsDuplicateLinesExceedingStock(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")

	// Two lines for the same product: 6+6 exceeds stock 10 even though each
	// line alone would fit.
	_, err := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{
			{ProductID: rice.ID, Quantity: mustDec(t, "6"), Price: mustDec(t, "52")},
			{ProductID: rice.ID, Quantity: mustDec(t, "6"), Price: mustDec(t, "52")},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	got, _ := s.GetProduct(ctx, testShop, rice.ID)
	if !got.Stock.Equal(mustDec(t, "10")) {
		t.Fatalf("stock mutated on rejected sale: %s", got.Stock)
	}

	// Duplicate lines that together equal the stock still go through.
	sale, err := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{
			{ProductID: rice.ID, Quantity: mustDec(t, "6"), Price: mustDec(t, "52")},
			{ProductID: rice.ID, Quantity: mustDec(t, "4"), Price: mustDec(t, "52")},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !sale.TotalAmount.Equal(mustDec(t, "520")) {
		t.Fatalf("expected total 520, got %s", sale.TotalAmount)
	}
	got, _ = s.GetProduct(ctx, testShop, rice.ID)
	if !got.Stock.Equal(mustDec(t, "0")) {
		t.Fatalf("expected stock 0, got %s", got.Stock)
	}
}

func TestCreateSaleRejectsZeroQuantityAndUnknownProduct(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")

	_, err := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{{ProductID: rice.ID, Quantity: decimal.Zero, Price: mustDec(t, "52")}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	_, err = s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{{ProductID: "missing", Quantity: mustDec(t, "1"), Price: mustDec(t, "52")}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterCustomerDeduplicatesByPhone(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.RegisterCustomer(ctx, testShop, domain.CustomerRequest{Name: "Karim", Phone: "01711111111"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.ID != "CUST-001001" {
		t.Fatalf("expected CUST-001001, got %s", first.ID)
	}

	second, err := s.RegisterCustomer(ctx, testShop, domain.CustomerRequest{Name: "Different Name", Phone: "01711111111"})
	if err != nil {
		t.Fatalf("register dedup: %v", err)
	}
	if second.ID != first.ID || second.Name != "Karim" {
		t.Fatalf("dedup returned %+v, want existing record unchanged", second)
	}

	customers, _ := s.ListCustomers(ctx, testShop)
	if len(customers) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(customers))
	}
}

func TestRegisterCustomerDefaultsNameToAnonymous(t *testing.T) {
	s := New()
	c, err := s.RegisterCustomer(context.Background(), testShop, domain.CustomerRequest{Phone: "01722222222"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.Name != "Anonymous" {
		t.Fatalf("expected Anonymous, got %s", c.Name)
	}
}

func TestCreatePurchaseRestocksAndOverwritesCostPrice(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")

	purchase, product, err := s.CreatePurchase(ctx, testShop, domain.PurchaseRequest{
		ProductID: rice.ID,
		Quantity:  mustDec(t, "20"),
		TotalCost: mustDec(t, "960"),
		Source:    "Wholesale Market",
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if !product.Stock.Equal(mustDec(t, "30")) {
		t.Fatalf("expected stock 30, got %s", product.Stock)
	}
	// Latest unit cost replaces the old cost price, no averaging.
	if !product.CostPrice.Equal(mustDec(t, "48")) {
		t.Fatalf("expected cost price 48, got %s", product.CostPrice)
	}
	if !purchase.TotalCost.Equal(mustDec(t, "960")) || purchase.ProductName != "Rice" {
		t.Fatalf("unexpected purchase record %+v", purchase)
	}
}

func TestCreatePurchaseAutoCreatesUnknownProduct(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, product, err := s.CreatePurchase(ctx, testShop, domain.PurchaseRequest{
		Quantity:   mustDec(t, "10"),
		TotalCost:  mustDec(t, "500"),
		NewProduct: &domain.NewProductData{Name: "Green Tea", Unit: "box"},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if !product.IsAutoCreated {
		t.Fatalf("expected auto-created flag")
	}
	if product.Category != "General" {
		t.Fatalf("expected category General, got %s", product.Category)
	}
	if !product.CostPrice.Equal(mustDec(t, "50")) {
		t.Fatalf("expected cost 50, got %s", product.CostPrice)
	}
	// Default sell price is cost plus twenty percent.
	if !product.Price.Equal(mustDec(t, "60")) {
		t.Fatalf("expected price 60, got %s", product.Price)
	}
	if !product.Stock.Equal(mustDec(t, "10")) {
		t.Fatalf("expected stock 10, got %s", product.Stock)
	}
}

func TestCreatePurchaseRejectsNonPositiveValues(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")

	for _, req := range []domain.PurchaseRequest{
		{ProductID: rice.ID, Quantity: decimal.Zero, TotalCost: mustDec(t, "100")},
		{ProductID: rice.ID, Quantity: mustDec(t, "5"), TotalCost: decimal.Zero},
		{ProductID: rice.ID, Quantity: mustDec(t, "-5"), TotalCost: mustDec(t, "100")},
	} {
		if _, _, err := s.CreatePurchase(ctx, testShop, req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", req, err)
		}
	}

	_, _, err := s.CreatePurchase(ctx, testShop, domain.PurchaseRequest{
		ProductID: "missing", Quantity: mustDec(t, "5"), TotalCost: mustDec(t, "100"),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateReturnRefundsAtOriginalPriceAndRestocks(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "100")

	sale, err := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{{ProductID: rice.ID, Quantity: mustDec(t, "10"), Price: mustDec(t, "52")}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	// Bump the catalog price; the refund must use the sale-time price.
	newPrice := mustDec(t, "60")
	if _, err := s.UpdateProduct(ctx, testShop, rice.ID, nil, &newPrice); err != nil {
		t.Fatalf("update price: %v", err)
	}

	ret, updated, err := s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnItemRequest{{ProductID: rice.ID, Quantity: mustDec(t, "4")}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if !ret.RefundAmount.Equal(mustDec(t, "208")) {
		t.Fatalf("expected refund 208, got %s", ret.RefundAmount)
	}
	if updated.Status != domain.SaleStatusPartialReturn {
		t.Fatalf("expected PARTIAL_RETURN, got %s", updated.Status)
	}
	if !updated.Items[0].ReturnedQuantity.Equal(mustDec(t, "4")) {
		t.Fatalf("expected returned qty 4, got %s", updated.Items[0].ReturnedQuantity)
	}

	got, _ := s.GetProduct(ctx, testShop, rice.ID)
	if !got.Stock.Equal(mustDec(t, "94")) {
		t.Fatalf("expected stock 94, got %s", got.Stock)
	}
}

func TestCreateReturnStatusIsPartialEvenWhenFullyReturned(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")

	sale, _ := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{{ProductID: rice.ID, Quantity: mustDec(t, "3"), Price: mustDec(t, "52")}},
	})
	_, updated, err := s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnItemRequest{{ProductID: rice.ID, Quantity: mustDec(t, "3")}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if updated.Status != domain.SaleStatusPartialReturn {
		t.Fatalf("expected PARTIAL_RETURN on full return, got %s", updated.Status)
	}
}

func TestCreateReturnItemsFollowRequestOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")
	oil := seedProduct(t, s, "Oil", "165", "152", "10")
	salt := seedProduct(t, s, "Salt", "12", "9", "10")

	sale, err := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{
			{ProductID: rice.ID, Quantity: mustDec(t, "2"), Price: mustDec(t, "52")},
			{ProductID: oil.ID, Quantity: mustDec(t, "2"), Price: mustDec(t, "165")},
			{ProductID: salt.ID, Quantity: mustDec(t, "2"), Price: mustDec(t, "12")},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	ret, _, err := s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: sale.ID,
		Items: []domain.ReturnItemRequest{
			{ProductID: salt.ID, Quantity: mustDec(t, "1")},
			{ProductID: rice.ID, Quantity: mustDec(t, "1")},
			{ProductID: oil.ID, Quantity: mustDec(t, "1")},
		},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	want := []string{salt.ID, rice.ID, oil.ID}
	if len(ret.Items) != len(want) {
		t.Fatalf("expected %d return items, got %d", len(want), len(ret.Items))
	}
	for i, productID := range want {
		if ret.Items[i].ProductID != productID {
			t.Fatalf("item %d: expected product %s, got %s", i, productID, ret.Items[i].ProductID)
		}
	}
}

func TestCreateReturnRejectsOverReturnAcrossMultipleReturns(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")

	sale, _ := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{{ProductID: rice.ID, Quantity: mustDec(t, "5"), Price: mustDec(t, "52")}},
	})
	if _, _, err := s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnItemRequest{{ProductID: rice.ID, Quantity: mustDec(t, "3")}},
	}); err != nil {
		t.Fatalf("first return: %v", err)
	}

	_, _, err := s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnItemRequest{{ProductID: rice.ID, Quantity: mustDec(t, "3")}},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected ErrOverReturn, got %v", err)
	}

	// Remaining 2 units can still come back.
	if _, _, err := s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnItemRequest{{ProductID: rice.ID, Quantity: mustDec(t, "2")}},
	}); err != nil {
		t.Fatalf("final return: %v", err)
	}
}

func TestCreateReturnRejectsUnknownSaleAndForeignProduct(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")
	oil := seedProduct(t, s, "Oil", "165", "152", "10")

	_, _, err := s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: "SALE-2026-99999",
		Items:  []domain.ReturnItemRequest{{ProductID: rice.ID, Quantity: mustDec(t, "1")}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown sale, got %v", err)
	}

	sale, _ := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{{ProductID: rice.ID, Quantity: mustDec(t, "2"), Price: mustDec(t, "52")}},
	})
	_, _, err = s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnItemRequest{{ProductID: oil.ID, Quantity: mustDec(t, "1")}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for product not on sale, got %v", err)
	}
}

func TestCashSessionSingleOpenInvariant(t *testing.T) {
	s := New()
	ctx := context.Background()

	opened, err := s.OpenCashSession(ctx, testShop, mustDec(t, "1000"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Status != domain.SessionStatusOpen {
		t.Fatalf("expected OPEN, got %s", opened.Status)
	}

	if _, err := s.OpenCashSession(ctx, testShop, mustDec(t, "500")); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on second open, got %v", err)
	}

	closed, err := s.CloseCashSession(ctx, testShop, mustDec(t, "1200"), time.Time{})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.SessionStatusClosed || closed.ClosingCash == nil || closed.EndTime == nil {
		t.Fatalf("close did not finalize session: %+v", closed)
	}

	if _, err := s.GetActiveCashSession(ctx, testShop); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after close, got %v", err)
	}
	if _, err := s.OpenCashSession(ctx, testShop, mustDec(t, "1200")); err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
}

func TestGetLedgerTotalsSumsAllThreeLedgers(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "100")

	sale, _ := s.CreateSale(ctx, testShop, domain.SaleRecord{
		Items: []domain.SaleItem{{ProductID: rice.ID, Quantity: mustDec(t, "10"), Price: mustDec(t, "52")}},
	})
	s.CreatePurchase(ctx, testShop, domain.PurchaseRequest{
		ProductID: rice.ID, Quantity: mustDec(t, "20"), TotalCost: mustDec(t, "900"),
	})
	s.CreateReturn(ctx, testShop, domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnItemRequest{{ProductID: rice.ID, Quantity: mustDec(t, "2")}},
	})

	totals, err := s.GetLedgerTotals(ctx, testShop)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if !totals.Sales.Equal(mustDec(t, "520")) {
		t.Fatalf("expected sales 520, got %s", totals.Sales)
	}
	if !totals.Purchases.Equal(mustDec(t, "900")) {
		t.Fatalf("expected purchases 900, got %s", totals.Purchases)
	}
	if !totals.Refunds.Equal(mustDec(t, "104")) {
		t.Fatalf("expected refunds 104, got %s", totals.Refunds)
	}
}

func TestClientPaymentThresholdRule(t *testing.T) {
	s := New()
	ctx := context.Background()

	client, err := s.CreateClient(ctx, domain.Client{
		OwnerName: "Rahim",
		ShopName:  "Rahim Store",
		Phone:     "01733333333",
		Billing:   domain.ClientBilling{RentAmount: mustDec(t, "1000")},
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if client.Billing.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("expected UNPAID initially, got %s", client.Billing.PaymentStatus)
	}

	// Two partial payments never flip the status, even though they sum past rent.
	for _, amount := range []string{"600", "600"} {
		client, err = s.RecordClientPayment(ctx, client.ID, domain.BillingPayment{Amount: mustDec(t, amount)})
		if err != nil {
			t.Fatalf("payment: %v", err)
		}
		if client.Billing.PaymentStatus != domain.PaymentStatusUnpaid {
			t.Fatalf("partial payment changed status to %s", client.Billing.PaymentStatus)
		}
	}

	client, err = s.RecordClientPayment(ctx, client.ID, domain.BillingPayment{Amount: mustDec(t, "1000")})
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if client.Billing.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected PAID after full payment, got %s", client.Billing.PaymentStatus)
	}
	if len(client.Billing.History) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(client.Billing.History))
	}
	last := client.Billing.History[2]
	if last.Status != domain.PaymentStatusPaid || last.InvoiceID == "" || last.Date.IsZero() {
		t.Fatalf("history entry incomplete: %+v", last)
	}
}

func TestClientPhoneUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateClient(ctx, domain.Client{OwnerName: "A", ShopName: "A Store", Phone: "017"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateClient(ctx, domain.Client{OwnerName: "B", ShopName: "B Store", Phone: "017"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on duplicate phone, got %v", err)
	}
}

func TestShopIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")

	if _, err := s.GetProduct(ctx, "other-shop", rice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("product leaked across shops: %v", err)
	}
	products, _ := s.ListProducts(ctx, "other-shop")
	if len(products) != 0 {
		t.Fatalf("expected empty catalog for other shop")
	}
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	s := New()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", "52", "45", "10")

	name := "Premium Rice"
	price := mustDec(t, "58")
	updated, err := s.UpdateProduct(ctx, testShop, rice.ID, &name, &price)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Premium Rice" || !updated.Price.Equal(price) {
		t.Fatalf("update not applied: %+v", updated)
	}

	bad := decimal.Zero
	if _, err := s.UpdateProduct(ctx, testShop, rice.ID, nil, &bad); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero price, got %v", err)
	}

	if err := s.DeleteProduct(ctx, testShop, rice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteProduct(ctx, testShop, rice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
