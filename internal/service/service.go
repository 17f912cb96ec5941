package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"shopmaster/backend/internal/domain"
	"shopmaster/backend/internal/interpreter"
	"shopmaster/backend/internal/invoice"
	"shopmaster/backend/internal/store"
)

// ErrForbidden is returned when the acting user lacks the role an operation
// requires. The HTTP layer maps it to 403.
var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	interp        *interpreter.Engine
	defaultShopID string

	// pending holds at most one staged draft per shop. Drafts are transient:
	// committing or cancelling the matching operation discards them.
	draftMu sync.Mutex
	pending map[string]*domain.Draft
}

func New(repo store.Repository, interp *interpreter.Engine, defaultShopID string) *Service {
	if defaultShopID == "" {
		defaultShopID = "main-shop"
	}

	return &Service{
		repo:          repo,
		interp:        interp,
		defaultShopID: defaultShopID,
		pending:       make(map[string]*domain.Draft),
	}
}

// scopeShop picks the shop an operation acts on. A client actor is always
// bound to its own shop; admin and unauthenticated internal callers fall back
// to the requested or default shop.
func (s *Service) scopeShop(ctx context.Context, requested string) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.ShopID != "" {
		return actor.ShopID
	}
	if requested != "" {
		return requested
	}
	return s.defaultShopID
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrForbidden
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.scopeShop(ctx, shopID))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	shopID := s.scopeShop(ctx, req.ShopID)

	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" || req.Unit == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.Price.Sign() <= 0 || req.CostPrice.Sign() < 0 || req.Stock.Sign() < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, shopID, domain.Product{
		Name:      req.Name,
		Unit:      req.Unit,
		Price:     req.Price,
		CostPrice: req.CostPrice,
		Stock:     req.Stock,
		Category:  strings.TrimSpace(req.Category),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, shopID, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,stock=%s", created.Name, created.Price, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, shopID string, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	shopID = s.scopeShop(ctx, shopID)

	productID = strings.TrimSpace(productID)
	if productID == "" || (req.Name == nil && req.Price == nil) {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateProduct(ctx, shopID, productID, req.Name, req.Price)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, shopID, "product_update", "product", updated.ID, fmt.Sprintf("name=%s,price=%s", updated.Name, updated.Price))
	return *updated, nil
}

func (s *Service) RemoveProduct(ctx context.Context, shopID string, productID string) error {
	shopID = s.scopeShop(ctx, shopID)

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteProduct(ctx, shopID, productID); err != nil {
		return err
	}

	s.logAudit(ctx, shopID, "product_remove", "product", productID, "")
	return nil
}

// ListCustomers derives TotalSpent from the sales ledger on every read; it is
// never stored on the customer record.
func (s *Service) ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error) {
	shopID = s.scopeShop(ctx, shopID)

	customers, err := s.repo.ListCustomers(ctx, shopID)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, shopID)
	if err != nil {
		return nil, err
	}

	spent := make(map[string]decimal.Decimal, len(customers))
	for _, sale := range sales {
		if sale.Customer.ID == "" {
			continue
		}
		spent[sale.Customer.ID] = spent[sale.Customer.ID].Add(sale.TotalAmount)
	}
	for i := range customers {
		customers[i].TotalSpent = spent[customers[i].ID]
	}
	return customers, nil
}

func (s *Service) RegisterCustomer(ctx context.Context, shopID string, req domain.CustomerRequest) (domain.Customer, error) {
	shopID = s.scopeShop(ctx, shopID)

	if strings.TrimSpace(req.Name) == "" && strings.TrimSpace(req.Phone) == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	customer, err := s.repo.RegisterCustomer(ctx, shopID, req)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, shopID, "customer_register", "customer", customer.ID, "phone="+customer.Phone)
	return *customer, nil
}

func (s *Service) ListSales(ctx context.Context, shopID string) ([]domain.SaleRecord, error) {
	return s.repo.ListSales(ctx, s.scopeShop(ctx, shopID))
}

// RecordSale registers or resolves the buyer, prices unpriced lines from the
// catalog and commits the sale atomically. A pending sale draft for the shop
// is discarded on success.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	shopID := s.scopeShop(ctx, req.ShopID)

	if len(req.Items) == 0 {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	var customer domain.Customer
	if strings.TrimSpace(req.Customer.Phone) != "" || strings.TrimSpace(req.Customer.Name) != "" {
		registered, err := s.repo.RegisterCustomer(ctx, shopID, req.Customer)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		customer = *registered
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity.Sign() <= 0 {
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
		price := line.Price
		if price.Sign() <= 0 {
			product, err := s.repo.GetProduct(ctx, shopID, line.ProductID)
			if err != nil {
				return domain.SaleResponse{}, err
			}
			price = product.Price
		}
		items = append(items, domain.SaleItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     price,
		})
	}

	actor, _ := ActorFromContext(ctx)
	sale, err := s.repo.CreateSale(ctx, shopID, domain.SaleRecord{
		Items:     items,
		Customer:  customer,
		CashierID: actor.Username,
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.clearDraft(shopID, domain.IntentSale)
	s.logAudit(ctx, shopID, "sale_record", "sale", sale.ID, fmt.Sprintf("total=%s,items=%d", sale.TotalAmount, len(sale.Items)))
	return domain.SaleResponse{Sale: *sale}, nil
}

func (s *Service) ListPurchases(ctx context.Context, shopID string) ([]domain.PurchaseRecord, error) {
	return s.repo.ListPurchases(ctx, s.scopeShop(ctx, shopID))
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResponse, error) {
	shopID := s.scopeShop(ctx, req.ShopID)

	purchase, product, err := s.repo.CreatePurchase(ctx, shopID, req)
	if err != nil {
		return domain.PurchaseResponse{}, err
	}

	s.clearDraft(shopID, domain.IntentPurchase)
	s.logAudit(ctx, shopID, "purchase_record", "purchase", purchase.ID, fmt.Sprintf("product=%s,qty=%s,cost=%s", purchase.ProductID, purchase.Quantity, purchase.TotalCost))
	return domain.PurchaseResponse{Purchase: *purchase, Product: *product}, nil
}

func (s *Service) ListReturns(ctx context.Context, shopID string) ([]domain.ReturnRecord, error) {
	return s.repo.ListReturns(ctx, s.scopeShop(ctx, shopID))
}

func (s *Service) RecordReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	shopID := s.scopeShop(ctx, req.ShopID)

	ret, sale, err := s.repo.CreateReturn(ctx, shopID, req)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	s.clearDraft(shopID, domain.IntentReturn)
	s.logAudit(ctx, shopID, "return_record", "return", ret.ID, fmt.Sprintf("sale=%s,refund=%s", ret.SaleID, ret.RefundAmount))
	return domain.ReturnResponse{Return: *ret, Sale: *sale}, nil
}

func (s *Service) OpenCashSession(ctx context.Context, req domain.SessionOpenRequest) (domain.SessionResponse, error) {
	shopID := s.scopeShop(ctx, req.ShopID)

	session, err := s.repo.OpenCashSession(ctx, shopID, req.OpeningCash)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	s.clearDraft(shopID, domain.IntentOpeningCash)
	s.logAudit(ctx, shopID, "session_open", "cash_session", session.ID, "opening="+session.OpeningCash.String())
	return domain.SessionResponse{Session: *session}, nil
}

func (s *Service) CloseCashSession(ctx context.Context, req domain.SessionCloseRequest) (domain.SessionResponse, error) {
	shopID := s.scopeShop(ctx, req.ShopID)

	session, err := s.repo.CloseCashSession(ctx, shopID, req.ClosingCash, time.Now().UTC())
	if err != nil {
		return domain.SessionResponse{}, err
	}

	s.logAudit(ctx, shopID, "session_close", "cash_session", session.ID, "closing="+req.ClosingCash.String())
	return domain.SessionResponse{Session: *session}, nil
}

func (s *Service) ActiveCashSession(ctx context.Context, shopID string) (domain.SessionResponse, error) {
	session, err := s.repo.GetActiveCashSession(ctx, s.scopeShop(ctx, shopID))
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

// Dashboard computes the derived cash position. The balance is opening cash
// plus sales minus purchases minus refunds, recomputed from the ledgers on
// every call.
func (s *Service) Dashboard(ctx context.Context, shopID string) (domain.DashboardResponse, error) {
	shopID = s.scopeShop(ctx, shopID)

	totals, err := s.repo.GetLedgerTotals(ctx, shopID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	products, err := s.repo.ListProducts(ctx, shopID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	sales, err := s.repo.ListSales(ctx, shopID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	customers, err := s.repo.ListCustomers(ctx, shopID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	opening := decimal.Zero
	sessionStatus := domain.SessionStatusClosed
	if session, err := s.repo.GetActiveCashSession(ctx, shopID); err == nil {
		opening = session.OpeningCash
		sessionStatus = session.Status
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.DashboardResponse{}, err
	}

	inventoryValue := decimal.Zero
	for _, p := range products {
		inventoryValue = inventoryValue.Add(p.Stock.Mul(p.Price))
	}

	return domain.DashboardResponse{
		SessionStatus:  sessionStatus,
		OpeningCash:    opening,
		SalesTotal:     totals.Sales,
		PurchasesTotal: totals.Purchases,
		RefundsTotal:   totals.Refunds,
		CashBalance:    opening.Add(totals.Sales).Sub(totals.Purchases).Sub(totals.Refunds),
		InventoryValue: inventoryValue,
		ProductCount:   len(products),
		SaleCount:      len(sales),
		CustomerCount:  len(customers),
	}, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Client{}, err
	}

	req.OwnerName = strings.TrimSpace(req.OwnerName)
	req.ShopName = strings.TrimSpace(req.ShopName)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.OwnerName == "" || req.ShopName == "" || req.Phone == "" || strings.TrimSpace(req.Password) == "" {
		return domain.Client{}, store.ErrInvalidInput
	}
	if req.RentAmount.Sign() < 0 {
		return domain.Client{}, store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Client{}, err
	}

	serial := strings.TrimSpace(req.ShopSerialNumber)
	if serial == "" {
		serial = invoice.Ref("shop")
	}

	client, err := s.repo.CreateClient(ctx, domain.Client{
		OwnerName:        req.OwnerName,
		ShopName:         req.ShopName,
		ShopSerialNumber: serial,
		MarketName:       strings.TrimSpace(req.MarketName),
		Phone:            req.Phone,
		Password:         string(hash),
		Division:         strings.TrimSpace(req.Division),
		District:         strings.TrimSpace(req.District),
		Thana:            strings.TrimSpace(req.Thana),
		Billing: domain.ClientBilling{
			RentAmount:    req.RentAmount,
			BillingDate:   strings.TrimSpace(req.BillingDate),
			DueDate:       strings.TrimSpace(req.DueDate),
			PaymentStatus: domain.PaymentStatusUnpaid,
			History:       []domain.BillingPayment{},
		},
	})
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "", "client_create", "client", client.ID, "shop="+client.ShopName)
	return *client, nil
}

func (s *Service) UpdateClient(ctx context.Context, clientID string, req domain.ClientUpdateRequest) (domain.Client, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Client{}, err
	}

	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return domain.Client{}, store.ErrInvalidInput
	}

	if req.Password != nil {
		if strings.TrimSpace(*req.Password) == "" {
			return domain.Client{}, store.ErrInvalidInput
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Client{}, err
		}
		hashed := string(hash)
		req.Password = &hashed
	}

	client, err := s.repo.UpdateClient(ctx, clientID, req)
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "", "client_update", "client", client.ID, "")
	return *client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListClients(ctx)
}

func (s *Service) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Client{}, err
	}
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

// RecordClientPayment appends to the client's billing history and returns a
// receipt projection for the payment just taken.
func (s *Service) RecordClientPayment(ctx context.Context, clientID string, req domain.ClientPaymentRequest) (domain.PaymentReceipt, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.PaymentReceipt{}, err
	}

	payment := domain.BillingPayment{
		Date:      time.Now().UTC(),
		Amount:    req.Amount,
		InvoiceID: invoice.PaymentID(),
	}
	client, err := s.repo.RecordClientPayment(ctx, clientID, payment)
	if err != nil {
		return domain.PaymentReceipt{}, err
	}

	s.logAudit(ctx, "", "client_payment", "client", client.ID, "amount="+req.Amount.String())
	return domain.PaymentReceipt{
		Client:    *client,
		Amount:    payment.Amount,
		Date:      payment.Date,
		InvoiceID: payment.InvoiceID,
	}, nil
}

func (s *Service) AuditLogs(ctx context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	return s.repo.ListAuditLogs(ctx, shopID, from, to, limit)
}

// InterpretCommand runs the natural-language command through the external
// interpreter, resolves the extracted entities against the shop's ledgers and
// stages a typed draft for confirmation. Interpreter failures degrade to an
// empty response; they never become ledger errors.
func (s *Service) InterpretCommand(ctx context.Context, req domain.InterpretRequest) (domain.DraftResponse, error) {
	shopID := s.scopeShop(ctx, req.ShopID)

	if strings.TrimSpace(req.Command) == "" {
		return domain.DraftResponse{}, store.ErrInvalidInput
	}
	if s.interp == nil || !s.interp.Enabled() {
		return domain.DraftResponse{}, nil
	}

	products, err := s.repo.ListProducts(ctx, shopID)
	if err != nil {
		return domain.DraftResponse{}, err
	}
	customers, err := s.repo.ListCustomers(ctx, shopID)
	if err != nil {
		return domain.DraftResponse{}, err
	}

	inventory := make([]interpreter.ProductSnapshot, 0, len(products))
	for _, p := range products {
		inventory = append(inventory, interpreter.ProductSnapshot{ID: p.ID, Name: p.Name, Unit: p.Unit})
	}
	contacts := make([]interpreter.CustomerSnapshot, 0, len(customers))
	for _, c := range customers {
		contacts = append(contacts, interpreter.CustomerSnapshot{ID: c.ID, Name: c.Name, Phone: c.Phone})
	}

	aiDraft, err := s.interp.Interpret(ctx, shopID, req.Command, inventory, contacts)
	if err != nil {
		log.Printf("[service] WARN: interpreter failed shop=%s: %v", shopID, err)
		return domain.DraftResponse{}, nil
	}

	draft := s.buildDraft(*aiDraft, products, customers)

	s.draftMu.Lock()
	s.pending[shopID] = &draft
	s.draftMu.Unlock()

	s.logAudit(ctx, shopID, "command_interpret", "draft", draft.Intent, draft.Summary)
	return domain.DraftResponse{Draft: &draft, Screen: draft.Screen}, nil
}

func (s *Service) PendingDraft(ctx context.Context, shopID string) (domain.DraftResponse, error) {
	shopID = s.scopeShop(ctx, shopID)

	s.draftMu.Lock()
	defer s.draftMu.Unlock()

	draft, ok := s.pending[shopID]
	if !ok {
		return domain.DraftResponse{}, nil
	}
	return domain.DraftResponse{Draft: draft, Screen: draft.Screen}, nil
}

func (s *Service) CancelDraft(ctx context.Context, shopID string) {
	shopID = s.scopeShop(ctx, shopID)

	s.draftMu.Lock()
	delete(s.pending, shopID)
	s.draftMu.Unlock()
}

// clearDraft discards the staged draft after the matching ledger operation
// commits. A draft of a different intent is left alone.
func (s *Service) clearDraft(shopID string, intent string) {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()

	if draft, ok := s.pending[shopID]; ok && draft.Intent == intent {
		delete(s.pending, shopID)
	}
}

// buildDraft converts the interpreter's loose extraction into a typed draft,
// resolving products and customers by exact id first, then case-insensitive
// substring match on the name.
func (s *Service) buildDraft(ai domain.AIDraft, products []domain.Product, customers []domain.Customer) domain.Draft {
	qty := decimal.NewFromInt(1)
	if ai.Quantity != nil {
		qty = decimal.NewFromFloat(*ai.Quantity)
	}

	product := resolveProduct(products, ai.ProductID, ai.ProductName)
	customer := resolveCustomer(customers, ai.CustomerID, ai.CustomerName)

	draft := domain.Draft{
		Intent:  ai.Intent,
		Screen:  screenForIntent(ai.Intent),
		Summary: ai.Summary,
	}

	switch ai.Intent {
	case domain.IntentSale:
		sale := &domain.SaleDraft{
			ProductName:  ai.ProductName,
			Quantity:     qty,
			CustomerName: ai.CustomerName,
		}
		if ai.Price != nil {
			sale.Price = decimal.NewFromFloat(*ai.Price)
		}
		if product != nil {
			sale.ProductID = product.ID
			sale.ProductName = product.Name
			if sale.Price.Sign() <= 0 {
				sale.Price = product.Price
			}
		}
		if customer != nil {
			sale.CustomerID = customer.ID
			sale.CustomerName = customer.Name
		}
		draft.Sale = sale

	case domain.IntentPurchase:
		purchase := &domain.PurchaseDraft{
			ProductName: ai.ProductName,
			Unit:        ai.Unit,
			Quantity:    qty,
			Source:      ai.Source,
		}
		if ai.TotalAmount != nil {
			purchase.TotalCost = decimal.NewFromFloat(*ai.TotalAmount)
		} else if ai.Price != nil {
			purchase.TotalCost = decimal.NewFromFloat(*ai.Price).Mul(qty)
		}
		if product != nil {
			purchase.ProductID = product.ID
			purchase.ProductName = product.Name
			if purchase.Unit == "" {
				purchase.Unit = product.Unit
			}
		}
		draft.Purchase = purchase

	case domain.IntentReturn:
		ret := &domain.ReturnDraft{
			ProductName:  ai.ProductName,
			Quantity:     qty,
			CustomerName: ai.CustomerName,
		}
		if product != nil {
			ret.ProductID = product.ID
			ret.ProductName = product.Name
		}
		if customer != nil {
			ret.CustomerID = customer.ID
			ret.CustomerName = customer.Name
		}
		draft.Return = ret

	case domain.IntentOpeningCash:
		amount := decimal.Zero
		if ai.TotalAmount != nil {
			amount = decimal.NewFromFloat(*ai.TotalAmount)
		} else if ai.Price != nil {
			amount = decimal.NewFromFloat(*ai.Price)
		}
		draft.OpeningCash = &domain.OpeningCashDraft{Amount: amount}
	}

	return draft
}

func screenForIntent(intent string) string {
	switch intent {
	case domain.IntentSale:
		return domain.ScreenPOS
	case domain.IntentPurchase:
		return domain.ScreenPurchases
	case domain.IntentReturn:
		return domain.ScreenReturns
	case domain.IntentOpeningCash:
		return domain.ScreenDashboard
	}
	return ""
}

func resolveProduct(products []domain.Product, id string, name string) *domain.Product {
	if id != "" {
		for i := range products {
			if products[i].ID == id {
				return &products[i]
			}
		}
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	for i := range products {
		if strings.Contains(strings.ToLower(products[i].Name), name) {
			return &products[i]
		}
	}
	return nil
}

func resolveCustomer(customers []domain.Customer, id string, name string) *domain.Customer {
	if id != "" {
		for i := range customers {
			if customers[i].ID == id {
				return &customers[i]
			}
		}
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	for i := range customers {
		if strings.Contains(strings.ToLower(customers[i].Name), name) {
			return &customers[i]
		}
	}
	return nil
}

// BuildSaleReceipt renders a sale as an ESC/POS byte stream for a thermal
// printer, plus a plain-text preview.
func (s *Service) BuildSaleReceipt(ctx context.Context, shopID string, req domain.SaleReceiptRequest) (domain.SaleReceiptResponse, error) {
	shopID = s.scopeShop(ctx, shopID)

	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" {
		return domain.SaleReceiptResponse{}, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSale(ctx, shopID, req.SaleID)
	if err != nil {
		return domain.SaleReceiptResponse{}, err
	}

	lines := []string{
		"ShopMaster POS",
		"========================",
		"Invoice: " + sale.ID,
		"Date: " + sale.Timestamp.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%s x%s %s", item.Name, item.Quantity, item.Unit))
		lines = append(lines, fmt.Sprintf("  %s", item.Total))
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Total : %s", sale.TotalAmount),
	)
	if sale.Customer.Name != "" {
		lines = append(lines, "Customer: "+sale.Customer.Name)
	}
	lines = append(lines,
		"========================",
		"Thank you",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.SaleReceiptResponse{
		SaleID:       sale.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}, nil
}

func (s *Service) logAudit(ctx context.Context, shopID string, action string, entityType string, entityID string, detail string) {
	if shopID == "" {
		shopID = s.defaultShopID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            invoice.Ref("audit"),
		ShopID:        shopID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
