package invoice

import (
	"strings"
	"testing"
	"time"
)

func TestCustomerIDSequenceStartsAt1001(t *testing.T) {
	if got := CustomerID(1); got != "CUST-001001" {
		t.Fatalf("expected CUST-001001, got %s", got)
	}
	if got := CustomerID(42); got != "CUST-001042" {
		t.Fatalf("expected CUST-001042, got %s", got)
	}
}

func TestYearScopedInvoiceFormats(t *testing.T) {
	at := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		got  string
		want string
	}{
		{SaleID(at, 1), "SALE-2026-00001"},
		{SaleID(at, 123), "SALE-2026-00123"},
		{PurchaseID(at, 7), "PUR-2026-00007"},
		{ReturnID(at, 99), "RET-2026-00099"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, tc.got)
		}
	}
}

func TestSKUFormat(t *testing.T) {
	sku := SKU()
	if !strings.HasPrefix(sku, "SKU-") || len(sku) != 8 {
		t.Fatalf("expected SKU-NNNN, got %s", sku)
	}
}

func TestProductIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := ProductID()
		if seen[id] {
			t.Fatalf("duplicate product id %s", id)
		}
		seen[id] = true
	}
}
