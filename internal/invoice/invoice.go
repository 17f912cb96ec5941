// Package invoice generates the human-readable identifiers used across the
// ledgers. Sequential ids are derived from the owning collection's size and
// must be produced under the same lock as the append that consumes them.
package invoice

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	stampMu   sync.Mutex
	lastStamp int64
)

// stamp returns a strictly increasing nanosecond timestamp so that two
// time-scoped ids generated back to back never collide.
func stamp() int64 {
	stampMu.Lock()
	defer stampMu.Unlock()
	now := time.Now().UnixNano()
	if now <= lastStamp {
		now = lastStamp + 1
	}
	lastStamp = now
	return now
}

// CustomerID returns the display id for the seq-th registered customer.
// The visible sequence starts at 1001.
func CustomerID(seq int) string {
	return fmt.Sprintf("CUST-%06d", 1000+seq)
}

// SaleID returns a year-scoped sale invoice number. The sequence is
// collection-wide; the year is a label only.
func SaleID(at time.Time, seq int) string {
	return fmt.Sprintf("SALE-%d-%05d", at.Year(), seq)
}

func PurchaseID(at time.Time, seq int) string {
	return fmt.Sprintf("PUR-%d-%05d", at.Year(), seq)
}

func ReturnID(at time.Time, seq int) string {
	return fmt.Sprintf("RET-%d-%05d", at.Year(), seq)
}

func ProductID() string {
	return fmt.Sprintf("p-%d", stamp())
}

func SessionID() string {
	return fmt.Sprintf("SESS-%d", stamp())
}

// PaymentID returns a billing payment invoice id.
func PaymentID() string {
	return fmt.Sprintf("INV-PAY-%d", stamp())
}

// SKU returns a random 4-digit stock keeping unit for auto-created products.
func SKU() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return fmt.Sprintf("SKU-%04d", time.Now().UnixNano()%10000)
	}
	return fmt.Sprintf("SKU-%04d", n.Int64())
}

// Ref returns a prefixed opaque reference for non-display records.
func Ref(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, stamp())
}
