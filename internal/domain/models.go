package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	Stock         decimal.Decimal `json:"stock"`
	Category      string          `json:"category"`
	IsAutoCreated bool            `json:"is_auto_created,omitempty"`
}

type ProductCreateRequest struct {
	ShopID    string          `json:"shop_id,omitempty"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Price     decimal.Decimal `json:"price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Stock     decimal.Decimal `json:"stock"`
	Category  string          `json:"category"`
}

type ProductUpdateRequest struct {
	Name  *string          `json:"name,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

type Customer struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone"`
	Email      string          `json:"email,omitempty"`
	Address    string          `json:"address,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

type CustomerRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// SaleItem is a value object owned by its SaleRecord. Total is price*quantity
// at sale time and is never recomputed; ReturnedQuantity tracks partial
// returns separately.
type SaleItem struct {
	ProductID        string          `json:"product_id"`
	Name             string          `json:"name"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReturnedQuantity decimal.Decimal `json:"returned_quantity"`
	Price            decimal.Decimal `json:"price"`
	Total            decimal.Decimal `json:"total"`
	Unit             string          `json:"unit"`
}

type SaleRecord struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Items       []SaleItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Customer    Customer        `json:"customer"`
	CashierID   string          `json:"cashier_id"`
}

type SaleItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type SaleRequest struct {
	ShopID   string            `json:"shop_id,omitempty"`
	Items    []SaleItemRequest `json:"items"`
	Customer CustomerRequest   `json:"customer"`
}

type SaleResponse struct {
	Sale SaleRecord `json:"sale"`
}

type SaleListResponse struct {
	Sales []SaleRecord `json:"sales"`
}

type PurchaseRecord struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Source      string          `json:"source,omitempty"`
}

type NewProductData struct {
	Name  string           `json:"name"`
	Unit  string           `json:"unit"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

type PurchaseRequest struct {
	ShopID     string           `json:"shop_id,omitempty"`
	ProductID  string           `json:"product_id,omitempty"`
	Quantity   decimal.Decimal  `json:"quantity"`
	TotalCost  decimal.Decimal  `json:"total_cost"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Source     string           `json:"source,omitempty"`
	NewProduct *NewProductData  `json:"new_product,omitempty"`
}

type PurchaseResponse struct {
	Purchase PurchaseRecord `json:"purchase"`
	Product  Product        `json:"product"`
}

type PurchaseListResponse struct {
	Purchases []PurchaseRecord `json:"purchases"`
}

type ReturnRecord struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	CustomerID   string          `json:"customer_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Items        []SaleItem      `json:"items"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

type ReturnItemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type ReturnRequest struct {
	ShopID string              `json:"shop_id,omitempty"`
	SaleID string              `json:"sale_id"`
	Items  []ReturnItemRequest `json:"items"`
}

type ReturnResponse struct {
	Return ReturnRecord `json:"return"`
	Sale   SaleRecord   `json:"sale"`
}

type ReturnListResponse struct {
	Returns []ReturnRecord `json:"returns"`
}

type CashSession struct {
	ID          string           `json:"id"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     *time.Time       `json:"end_time,omitempty"`
	OpeningCash decimal.Decimal  `json:"opening_cash"`
	ClosingCash *decimal.Decimal `json:"closing_cash,omitempty"`
	Status      string           `json:"status"`
}

type SessionOpenRequest struct {
	ShopID      string          `json:"shop_id,omitempty"`
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

type SessionCloseRequest struct {
	ShopID      string          `json:"shop_id,omitempty"`
	ClosingCash decimal.Decimal `json:"closing_cash"`
}

type SessionResponse struct {
	Session CashSession `json:"session"`
}

// LedgerTotals carries the running sums the derived cash balance is computed
// from. Recomputed from the ledgers on every read, never cached.
type LedgerTotals struct {
	Sales     decimal.Decimal `json:"sales"`
	Purchases decimal.Decimal `json:"purchases"`
	Refunds   decimal.Decimal `json:"refunds"`
}

type DashboardResponse struct {
	SessionStatus  string          `json:"session_status"`
	OpeningCash    decimal.Decimal `json:"opening_cash"`
	SalesTotal     decimal.Decimal `json:"sales_total"`
	PurchasesTotal decimal.Decimal `json:"purchases_total"`
	RefundsTotal   decimal.Decimal `json:"refunds_total"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
	ProductCount   int             `json:"product_count"`
	SaleCount      int             `json:"sale_count"`
	CustomerCount  int             `json:"customer_count"`
}

type BillingPayment struct {
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	InvoiceID string          `json:"invoice_id"`
}

type ClientBilling struct {
	RentAmount    decimal.Decimal  `json:"rent_amount"`
	BillingDate   string           `json:"billing_date"`
	DueDate       string           `json:"due_date"`
	PaymentStatus string           `json:"payment_status"`
	History       []BillingPayment `json:"history"`
}

// Client is an admin-side tenant record. Password holds a bcrypt hash and is
// never serialized in API responses.
type Client struct {
	ID               string        `json:"id"`
	OwnerName        string        `json:"owner_name"`
	ShopName         string        `json:"shop_name"`
	ShopSerialNumber string        `json:"shop_serial_number"`
	MarketName       string        `json:"market_name"`
	Phone            string        `json:"phone"`
	Password         string        `json:"-"`
	Division         string        `json:"division"`
	District         string        `json:"district"`
	Thana            string        `json:"thana"`
	Billing          ClientBilling `json:"billing"`
	CreatedAt        time.Time     `json:"created_at"`
}

type ClientCreateRequest struct {
	OwnerName        string          `json:"owner_name"`
	ShopName         string          `json:"shop_name"`
	ShopSerialNumber string          `json:"shop_serial_number"`
	MarketName       string          `json:"market_name"`
	Phone            string          `json:"phone"`
	Password         string          `json:"password"`
	Division         string          `json:"division"`
	District         string          `json:"district"`
	Thana            string          `json:"thana"`
	RentAmount       decimal.Decimal `json:"rent_amount"`
	BillingDate      string          `json:"billing_date"`
	DueDate          string          `json:"due_date"`
}

type ClientUpdateRequest struct {
	OwnerName  *string          `json:"owner_name,omitempty"`
	ShopName   *string          `json:"shop_name,omitempty"`
	MarketName *string          `json:"market_name,omitempty"`
	Phone      *string          `json:"phone,omitempty"`
	Password   *string          `json:"password,omitempty"`
	Division   *string          `json:"division,omitempty"`
	District   *string          `json:"district,omitempty"`
	Thana      *string          `json:"thana,omitempty"`
	RentAmount *decimal.Decimal `json:"rent_amount,omitempty"`
	DueDate    *string          `json:"due_date,omitempty"`
}

type ClientPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// PaymentReceipt is a read projection for presentation, not ledger state.
type PaymentReceipt struct {
	Client    Client          `json:"client"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	InvoiceID string          `json:"invoice_id"`
}

type ClientListResponse struct {
	Clients []Client `json:"clients"`
}

// AIDraft is the loosely-typed payload returned by the external interpreter.
// Intent and Summary are required; everything else is best-effort extraction.
type AIDraft struct {
	Intent       string   `json:"intent"`
	ProductName  string   `json:"productName,omitempty"`
	ProductID    string   `json:"productId,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	TotalAmount  *float64 `json:"totalAmount,omitempty"`
	CustomerID   string   `json:"customerId,omitempty"`
	CustomerName string   `json:"customerName,omitempty"`
	Source       string   `json:"source,omitempty"`
	Summary      string   `json:"summary"`
}

// Draft is the validated, typed form of an AIDraft. Exactly one variant
// matching Intent is populated. Transient: staged for confirmation, discarded
// on cancel or on commit of the matching ledger operation.
type Draft struct {
	Intent      string            `json:"intent"`
	Screen      string            `json:"screen"`
	Summary     string            `json:"summary"`
	Sale        *SaleDraft        `json:"sale,omitempty"`
	Purchase    *PurchaseDraft    `json:"purchase,omitempty"`
	Return      *ReturnDraft      `json:"return,omitempty"`
	OpeningCash *OpeningCashDraft `json:"opening_cash,omitempty"`
}

type SaleDraft struct {
	ProductID    string          `json:"product_id,omitempty"`
	ProductName  string          `json:"product_name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	CustomerID   string          `json:"customer_id,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
}

type PurchaseDraft struct {
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Source      string          `json:"source,omitempty"`
}

type ReturnDraft struct {
	ProductID    string          `json:"product_id,omitempty"`
	ProductName  string          `json:"product_name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	CustomerID   string          `json:"customer_id,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
}

type OpeningCashDraft struct {
	Amount decimal.Decimal `json:"amount"`
}

type InterpretRequest struct {
	ShopID  string `json:"shop_id,omitempty"`
	Command string `json:"command"`
}

type DraftResponse struct {
	Draft  *Draft `json:"draft,omitempty"`
	Screen string `json:"screen,omitempty"`
}

type SaleReceiptRequest struct {
	SaleID string `json:"sale_id"`
}

type SaleReceiptResponse struct {
	SaleID       string `json:"sale_id"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ShopID      string `json:"shop_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	ShopID   string
}

// UserAccount is an internal persistence model for admin auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ShopID        string    `json:"shop_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	SaleStatusCompleted     = "COMPLETED"
	SaleStatusPartialReturn = "PARTIAL_RETURN"
	SaleStatusReturned      = "RETURNED"
)

const (
	SessionStatusOpen   = "OPEN"
	SessionStatusClosed = "CLOSED"
)

const (
	PaymentStatusPaid    = "PAID"
	PaymentStatusUnpaid  = "UNPAID"
	PaymentStatusOverdue = "OVERDUE"
)

const (
	IntentSale        = "SALE"
	IntentPurchase    = "PURCHASE"
	IntentReturn      = "RETURN"
	IntentOpeningCash = "OPENING_CASH"
)

const (
	ScreenPOS       = "pos"
	ScreenPurchases = "purchases"
	ScreenReturns   = "returns"
	ScreenDashboard = "dashboard"
)
