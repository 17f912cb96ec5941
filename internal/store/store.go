package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"shopmaster/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOverReturn        = errors.New("return exceeds remaining returnable quantity")
)

// Repository is the shop-scoped ledger store. Sale, purchase and return
// creation are atomic: invoice id assignment, invariant checks, inventory
// mutation and the ledger append happen under one lock or transaction.
type Repository interface {
	ListProducts(ctx context.Context, shopID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, shopID string, productID string) (*domain.Product, error)
	CreateProduct(ctx context.Context, shopID string, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, shopID string, productID string, name *string, price *decimal.Decimal) (*domain.Product, error)
	DeleteProduct(ctx context.Context, shopID string, productID string) error

	ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, shopID string, customerID string) (*domain.Customer, error)
	FindCustomerByPhone(ctx context.Context, shopID string, phone string) (*domain.Customer, error)
	RegisterCustomer(ctx context.Context, shopID string, req domain.CustomerRequest) (*domain.Customer, error)

	ListSales(ctx context.Context, shopID string) ([]domain.SaleRecord, error)
	GetSale(ctx context.Context, shopID string, saleID string) (*domain.SaleRecord, error)
	CreateSale(ctx context.Context, shopID string, sale domain.SaleRecord) (*domain.SaleRecord, error)

	ListPurchases(ctx context.Context, shopID string) ([]domain.PurchaseRecord, error)
	CreatePurchase(ctx context.Context, shopID string, req domain.PurchaseRequest) (*domain.PurchaseRecord, *domain.Product, error)

	ListReturns(ctx context.Context, shopID string) ([]domain.ReturnRecord, error)
	CreateReturn(ctx context.Context, shopID string, req domain.ReturnRequest) (*domain.ReturnRecord, *domain.SaleRecord, error)

	OpenCashSession(ctx context.Context, shopID string, openingCash decimal.Decimal) (*domain.CashSession, error)
	CloseCashSession(ctx context.Context, shopID string, closingCash decimal.Decimal, closedAt time.Time) (*domain.CashSession, error)
	GetActiveCashSession(ctx context.Context, shopID string) (*domain.CashSession, error)
	GetLedgerTotals(ctx context.Context, shopID string) (domain.LedgerTotals, error)

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	UpdateClient(ctx context.Context, clientID string, req domain.ClientUpdateRequest) (*domain.Client, error)
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	FindClientByPhone(ctx context.Context, phone string) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	RecordClientPayment(ctx context.Context, clientID string, payment domain.BillingPayment) (*domain.Client, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
