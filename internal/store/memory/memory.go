package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"shopmaster/backend/internal/domain"
	"shopmaster/backend/internal/invoice"
	"shopmaster/backend/internal/store"
)

// shopLedgers holds every collection scoped to a single shop. Sequential
// invoice ids are derived from collection length under the store lock, which
// keeps them collision-free for the single-writer model.
type shopLedgers struct {
	products      []domain.Product
	customers     []domain.Customer
	sales         []domain.SaleRecord
	purchases     []domain.PurchaseRecord
	returns       []domain.ReturnRecord
	sessions      []domain.CashSession
	activeSession string
}

type Store struct {
	mu          sync.RWMutex
	shops       map[string]*shopLedgers
	clientsByID map[string]domain.Client
	clientOrder []string
	auditLogs   []domain.AuditLog
	usersByName map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		shops:       make(map[string]*shopLedgers),
		clientsByID: make(map[string]domain.Client),
		auditLogs:   make([]domain.AuditLog, 0, 128),
		usersByName: make(map[string]domain.UserAccount),
	}
}

// NewSeeded builds a store with the dev/demo admin account and a small demo
// catalog. Production deployments use PostgreSQL via DATABASE_URL instead.
func NewSeeded() *Store {
	s := New()
	s.usersByName = seedUsers()

	demo := &shopLedgers{}
	for _, p := range []domain.Product{
		{Name: "Rice", Unit: "kg", Price: dec("52"), CostPrice: dec("45"), Stock: dec("120"), Category: "Grocery"},
		{Name: "Soybean Oil 1L", Unit: "pcs", Price: dec("165"), CostPrice: dec("152"), Stock: dec("48"), Category: "Grocery"},
		{Name: "Lentils", Unit: "kg", Price: dec("140"), CostPrice: dec("122"), Stock: dec("60"), Category: "Grocery"},
		{Name: "Sugar", Unit: "kg", Price: dec("128"), CostPrice: dec("118"), Stock: dec("75"), Category: "Grocery"},
		{Name: "Detergent 500g", Unit: "pcs", Price: dec("95"), CostPrice: dec("80"), Stock: dec("30"), Category: "Household"},
	} {
		p.ID = invoice.ProductID()
		p.SKU = invoice.SKU()
		demo.products = append(demo.products, p)
	}
	s.shops["demo-shop"] = demo
	return s
}

// seedUsers builds the initial in-memory admin account for dev/demo mode.
// The credential is read from SEED_ADMIN_PASSWORD; if unset a hardcoded dev
// default is used with a warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev admin credential. Set SEED_ADMIN_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return map[string]domain.UserAccount{
		"admin": {
			Username:  "admin",
			Password:  string(hash),
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// shop returns the ledgers for shopID, creating them on first use.
// Callers must hold the write lock.
func (s *Store) shop(shopID string) *shopLedgers {
	ledgers, ok := s.shops[shopID]
	if !ok {
		ledgers = &shopLedgers{}
		s.shops[shopID] = ledgers
	}
	return ledgers
}

func (s *Store) ListProducts(_ context.Context, shopID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return []domain.Product{}, nil
	}
	products := make([]domain.Product, len(ledgers.products))
	copy(products, ledgers.products)
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, shopID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return nil, store.ErrNotFound
	}
	for _, p := range ledgers.products {
		if p.ID == productID {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, shopID string, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.Unit = strings.TrimSpace(product.Unit)
	if product.Name == "" || product.Unit == "" {
		return nil, store.ErrInvalidInput
	}
	if product.Price.Sign() < 0 || product.CostPrice.Sign() < 0 || product.Stock.Sign() < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = invoice.ProductID()
	}
	if product.SKU == "" {
		product.SKU = invoice.SKU()
	}
	if product.Category == "" {
		product.Category = "General"
	}

	ledgers := s.shop(shopID)
	ledgers.products = append(ledgers.products, product)
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, shopID string, productID string, name *string, price *decimal.Decimal) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return nil, store.ErrNotFound
	}
	for i := range ledgers.products {
		if ledgers.products[i].ID != productID {
			continue
		}
		if name != nil {
			trimmed := strings.TrimSpace(*name)
			if trimmed == "" {
				return nil, store.ErrInvalidInput
			}
			ledgers.products[i].Name = trimmed
		}
		if price != nil {
			if price.Sign() <= 0 {
				return nil, store.ErrInvalidInput
			}
			ledgers.products[i].Price = *price
		}
		updated := ledgers.products[i]
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteProduct(_ context.Context, shopID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return store.ErrNotFound
	}
	for i := range ledgers.products {
		if ledgers.products[i].ID == productID {
			ledgers.products = slices.Delete(ledgers.products, i, i+1)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListCustomers(_ context.Context, shopID string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return []domain.Customer{}, nil
	}
	customers := make([]domain.Customer, len(ledgers.customers))
	copy(customers, ledgers.customers)
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, shopID string, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return nil, store.ErrNotFound
	}
	for _, c := range ledgers.customers {
		if c.ID == customerID {
			found := c
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindCustomerByPhone(_ context.Context, shopID string, phone string) (*domain.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return nil, store.ErrNotFound
	}
	for _, c := range ledgers.customers {
		if c.Phone == phone {
			found := c
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

// RegisterCustomer deduplicates on exact phone match: a non-empty phone that
// already exists returns the existing record unchanged, with no field merge.
func (s *Store) RegisterCustomer(_ context.Context, shopID string, req domain.CustomerRequest) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := s.shop(shopID)

	phone := strings.TrimSpace(req.Phone)
	if phone != "" {
		for _, c := range ledgers.customers {
			if c.Phone == phone {
				existing := c
				return &existing, nil
			}
		}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Anonymous"
	}
	customer := domain.Customer{
		ID:         invoice.CustomerID(len(ledgers.customers) + 1),
		Name:       name,
		Phone:      phone,
		Email:      strings.TrimSpace(req.Email),
		Address:    strings.TrimSpace(req.Address),
		CreatedAt:  time.Now().UTC(),
		TotalSpent: decimal.Zero,
	}
	ledgers.customers = append(ledgers.customers, customer)
	created := customer
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, shopID string) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return []domain.SaleRecord{}, nil
	}
	sales := make([]domain.SaleRecord, 0, len(ledgers.sales))
	for _, sale := range ledgers.sales {
		sales = append(sales, cloneSale(sale))
	}
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, shopID string, saleID string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return nil, store.ErrNotFound
	}
	for _, sale := range ledgers.sales {
		if sale.ID == saleID {
			found := cloneSale(sale)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

// CreateSale validates every line against the catalog, rejects oversell,
// decrements stock and appends the record in one critical section.
func (s *Store) CreateSale(_ context.Context, shopID string, sale domain.SaleRecord) (*domain.SaleRecord, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := s.shop(shopID)

	productIdx := make(map[string]int, len(ledgers.products))
	for i, p := range ledgers.products {
		productIdx[p.ID] = i
	}

	total := decimal.Zero
	items := make([]domain.SaleItem, 0, len(sale.Items))
	soldByProduct := make(map[string]decimal.Decimal, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity.Sign() <= 0 || item.Price.Sign() < 0 {
			return nil, store.ErrInvalidInput
		}
		idx, exists := productIdx[item.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		product := ledgers.products[idx]
		// Lines may repeat a product; check against the running total.
		sold := soldByProduct[item.ProductID].Add(item.Quantity)
		if product.Stock.Cmp(sold) < 0 {
			return nil, store.ErrInsufficientStock
		}
		soldByProduct[item.ProductID] = sold
		line := domain.SaleItem{
			ProductID:        product.ID,
			Name:             product.Name,
			Quantity:         item.Quantity,
			ReturnedQuantity: decimal.Zero,
			Price:            item.Price,
			Total:            item.Price.Mul(item.Quantity),
			Unit:             product.Unit,
		}
		items = append(items, line)
		total = total.Add(line.Total)
	}

	for _, item := range items {
		idx := productIdx[item.ProductID]
		ledgers.products[idx].Stock = ledgers.products[idx].Stock.Sub(item.Quantity)
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = invoice.SaleID(now, len(ledgers.sales)+1)
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = now
	}
	sale.Items = items
	sale.TotalAmount = total
	sale.Status = domain.SaleStatusCompleted

	ledgers.sales = append(ledgers.sales, cloneSale(sale))
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) ListPurchases(_ context.Context, shopID string) ([]domain.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return []domain.PurchaseRecord{}, nil
	}
	purchases := make([]domain.PurchaseRecord, len(ledgers.purchases))
	copy(purchases, ledgers.purchases)
	return purchases, nil
}

// CreatePurchase restocks an existing product or creates a new catalog entry
// for an unrecognized one. The unit cost always overwrites the product's cost
// price (latest-cost, not weighted average).
func (s *Store) CreatePurchase(_ context.Context, shopID string, req domain.PurchaseRequest) (*domain.PurchaseRecord, *domain.Product, error) {
	if req.Quantity.Sign() <= 0 || req.TotalCost.Sign() <= 0 {
		return nil, nil, store.ErrInvalidInput
	}
	if req.Price != nil && req.Price.Sign() <= 0 {
		return nil, nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := s.shop(shopID)
	unitCost := req.TotalCost.Div(req.Quantity)

	var product *domain.Product
	if req.ProductID != "" {
		for i := range ledgers.products {
			if ledgers.products[i].ID == req.ProductID {
				product = &ledgers.products[i]
				break
			}
		}
	}

	if product == nil {
		if req.NewProduct == nil {
			return nil, nil, store.ErrNotFound
		}
		name := strings.TrimSpace(req.NewProduct.Name)
		unit := strings.TrimSpace(req.NewProduct.Unit)
		if name == "" || unit == "" {
			return nil, nil, store.ErrInvalidInput
		}
		price := unitCost.Mul(decimal.NewFromFloat(1.2))
		if req.NewProduct.Price != nil && req.NewProduct.Price.Sign() > 0 {
			price = *req.NewProduct.Price
		}
		ledgers.products = append(ledgers.products, domain.Product{
			ID:            invoice.ProductID(),
			SKU:           invoice.SKU(),
			Name:          name,
			Unit:          unit,
			Price:         price,
			CostPrice:     unitCost,
			Stock:         req.Quantity,
			Category:      "General",
			IsAutoCreated: true,
		})
		product = &ledgers.products[len(ledgers.products)-1]
	} else {
		product.Stock = product.Stock.Add(req.Quantity)
		product.CostPrice = unitCost
		if req.Price != nil {
			product.Price = *req.Price
		}
	}

	now := time.Now().UTC()
	purchase := domain.PurchaseRecord{
		ID:          invoice.PurchaseID(now, len(ledgers.purchases)+1),
		Timestamp:   now,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    req.Quantity,
		Unit:        product.Unit,
		TotalCost:   req.TotalCost,
		Source:      strings.TrimSpace(req.Source),
	}
	ledgers.purchases = append(ledgers.purchases, purchase)

	createdPurchase := purchase
	createdProduct := *product
	return &createdPurchase, &createdProduct, nil
}

func (s *Store) ListReturns(_ context.Context, shopID string) ([]domain.ReturnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return []domain.ReturnRecord{}, nil
	}
	returns := make([]domain.ReturnRecord, 0, len(ledgers.returns))
	for _, ret := range ledgers.returns {
		returns = append(returns, cloneReturn(ret))
	}
	return returns, nil
}

// CreateReturn refunds at the original sale price, bumps the sale items'
// returned quantities, restocks inventory and appends the return record.
// The sale status becomes PARTIAL_RETURN even when everything was returned.
func (s *Store) CreateReturn(_ context.Context, shopID string, req domain.ReturnRequest) (*domain.ReturnRecord, *domain.SaleRecord, error) {
	if strings.TrimSpace(req.SaleID) == "" || len(req.Items) == 0 {
		return nil, nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := s.shops[shopID]
	if ledgers == nil {
		return nil, nil, store.ErrNotFound
	}

	saleIdx := -1
	for i := range ledgers.sales {
		if ledgers.sales[i].ID == req.SaleID {
			saleIdx = i
			break
		}
	}
	if saleIdx < 0 {
		return nil, nil, store.ErrNotFound
	}
	sale := &ledgers.sales[saleIdx]

	qtyByProduct := make(map[string]decimal.Decimal, len(req.Items))
	orderedProducts := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity.Sign() <= 0 {
			return nil, nil, store.ErrInvalidInput
		}
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			orderedProducts = append(orderedProducts, item.ProductID)
		}
		qtyByProduct[item.ProductID] = qtyByProduct[item.ProductID].Add(item.Quantity)
	}

	refund := decimal.Zero
	returnItems := make([]domain.SaleItem, 0, len(orderedProducts))
	lineIdxByProduct := make(map[string]int, len(orderedProducts))
	for _, productID := range orderedProducts {
		qty := qtyByProduct[productID]
		lineIdx := -1
		for i := range sale.Items {
			if sale.Items[i].ProductID == productID {
				lineIdx = i
				break
			}
		}
		if lineIdx < 0 {
			return nil, nil, store.ErrNotFound
		}
		line := sale.Items[lineIdx]
		remaining := line.Quantity.Sub(line.ReturnedQuantity)
		if qty.Cmp(remaining) > 0 {
			return nil, nil, store.ErrOverReturn
		}
		lineIdxByProduct[productID] = lineIdx
		returnItems = append(returnItems, domain.SaleItem{
			ProductID: productID,
			Name:      line.Name,
			Quantity:  qty,
			Price:     line.Price,
			Total:     line.Price.Mul(qty),
			Unit:      line.Unit,
		})
		refund = refund.Add(line.Price.Mul(qty))
	}

	// All checks passed; apply the mutation.
	for _, productID := range orderedProducts {
		qty := qtyByProduct[productID]
		lineIdx := lineIdxByProduct[productID]
		sale.Items[lineIdx].ReturnedQuantity = sale.Items[lineIdx].ReturnedQuantity.Add(qty)
		for i := range ledgers.products {
			if ledgers.products[i].ID == productID {
				ledgers.products[i].Stock = ledgers.products[i].Stock.Add(qty)
				break
			}
		}
	}
	sale.Status = domain.SaleStatusPartialReturn

	now := time.Now().UTC()
	ret := domain.ReturnRecord{
		ID:           invoice.ReturnID(now, len(ledgers.returns)+1),
		SaleID:       sale.ID,
		CustomerID:   sale.Customer.ID,
		Timestamp:    now,
		Items:        returnItems,
		RefundAmount: refund,
	}
	ledgers.returns = append(ledgers.returns, cloneReturn(ret))

	createdReturn := cloneReturn(ret)
	updatedSale := cloneSale(*sale)
	return &createdReturn, &updatedSale, nil
}

func (s *Store) OpenCashSession(_ context.Context, shopID string, openingCash decimal.Decimal) (*domain.CashSession, error) {
	if openingCash.Sign() < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := s.shop(shopID)
	if ledgers.activeSession != "" {
		return nil, store.ErrInvalidInput
	}

	session := domain.CashSession{
		ID:          invoice.SessionID(),
		StartTime:   time.Now().UTC(),
		OpeningCash: openingCash,
		Status:      domain.SessionStatusOpen,
	}
	ledgers.sessions = append(ledgers.sessions, session)
	ledgers.activeSession = session.ID
	opened := session
	return &opened, nil
}

func (s *Store) CloseCashSession(_ context.Context, shopID string, closingCash decimal.Decimal, closedAt time.Time) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledgers := s.shops[shopID]
	if ledgers == nil || ledgers.activeSession == "" {
		return nil, store.ErrNotFound
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	for i := range ledgers.sessions {
		if ledgers.sessions[i].ID != ledgers.activeSession {
			continue
		}
		ledgers.sessions[i].Status = domain.SessionStatusClosed
		ledgers.sessions[i].EndTime = &closedAt
		closing := closingCash
		ledgers.sessions[i].ClosingCash = &closing
		ledgers.activeSession = ""
		closed := ledgers.sessions[i]
		return &closed, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetActiveCashSession(_ context.Context, shopID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledgers := s.shops[shopID]
	if ledgers == nil || ledgers.activeSession == "" {
		return nil, store.ErrNotFound
	}
	for _, session := range ledgers.sessions {
		if session.ID == ledgers.activeSession {
			active := session
			return &active, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetLedgerTotals(_ context.Context, shopID string) (domain.LedgerTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := domain.LedgerTotals{
		Sales:     decimal.Zero,
		Purchases: decimal.Zero,
		Refunds:   decimal.Zero,
	}
	ledgers := s.shops[shopID]
	if ledgers == nil {
		return totals, nil
	}
	for _, sale := range ledgers.sales {
		totals.Sales = totals.Sales.Add(sale.TotalAmount)
	}
	for _, purchase := range ledgers.purchases {
		totals.Purchases = totals.Purchases.Add(purchase.TotalCost)
	}
	for _, ret := range ledgers.returns {
		totals.Refunds = totals.Refunds.Add(ret.RefundAmount)
	}
	return totals, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	client.OwnerName = strings.TrimSpace(client.OwnerName)
	client.ShopName = strings.TrimSpace(client.ShopName)
	client.Phone = strings.TrimSpace(client.Phone)
	if client.OwnerName == "" || client.ShopName == "" || client.Phone == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.clientsByID {
		if existing.Phone == client.Phone {
			return nil, store.ErrInvalidInput
		}
	}

	if client.ID == "" {
		client.ID = invoice.Ref("client")
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	if client.Billing.PaymentStatus == "" {
		client.Billing.PaymentStatus = domain.PaymentStatusUnpaid
	}
	if client.Billing.History == nil {
		client.Billing.History = []domain.BillingPayment{}
	}

	s.clientsByID[client.ID] = cloneClient(client)
	s.clientOrder = append(s.clientOrder, client.ID)
	created := cloneClient(client)
	return &created, nil
}

func (s *Store) UpdateClient(_ context.Context, clientID string, req domain.ClientUpdateRequest) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, exists := s.clientsByID[clientID]
	if !exists {
		return nil, store.ErrNotFound
	}

	if req.OwnerName != nil {
		client.OwnerName = strings.TrimSpace(*req.OwnerName)
	}
	if req.ShopName != nil {
		client.ShopName = strings.TrimSpace(*req.ShopName)
	}
	if req.MarketName != nil {
		client.MarketName = strings.TrimSpace(*req.MarketName)
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			return nil, store.ErrInvalidInput
		}
		for id, other := range s.clientsByID {
			if id != clientID && other.Phone == phone {
				return nil, store.ErrInvalidInput
			}
		}
		client.Phone = phone
	}
	if req.Password != nil {
		client.Password = *req.Password
	}
	if req.Division != nil {
		client.Division = strings.TrimSpace(*req.Division)
	}
	if req.District != nil {
		client.District = strings.TrimSpace(*req.District)
	}
	if req.Thana != nil {
		client.Thana = strings.TrimSpace(*req.Thana)
	}
	if req.RentAmount != nil {
		if req.RentAmount.Sign() < 0 {
			return nil, store.ErrInvalidInput
		}
		client.Billing.RentAmount = *req.RentAmount
	}
	if req.DueDate != nil {
		client.Billing.DueDate = strings.TrimSpace(*req.DueDate)
	}

	s.clientsByID[clientID] = cloneClient(client)
	updated := cloneClient(client)
	return &updated, nil
}

func (s *Store) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clientsByID[clientID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneClient(client)
	return &found, nil
}

func (s *Store) FindClientByPhone(_ context.Context, phone string) (*domain.Client, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clientsByID {
		if client.Phone == phone {
			found := cloneClient(client)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clientOrder))
	for _, id := range s.clientOrder {
		if client, ok := s.clientsByID[id]; ok {
			clients = append(clients, cloneClient(client))
		}
	}
	return clients, nil
}

// RecordClientPayment appends to the billing history (append-only, no void)
// and flips paymentStatus to PAID only when this single payment covers the
// full rent amount. Partial payments leave the prior status untouched.
func (s *Store) RecordClientPayment(_ context.Context, clientID string, payment domain.BillingPayment) (*domain.Client, error) {
	if payment.Amount.Sign() <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	client, exists := s.clientsByID[clientID]
	if !exists {
		return nil, store.ErrNotFound
	}

	if payment.Date.IsZero() {
		payment.Date = time.Now().UTC()
	}
	if payment.InvoiceID == "" {
		payment.InvoiceID = invoice.PaymentID()
	}
	payment.Status = domain.PaymentStatusPaid

	client.Billing.History = append(client.Billing.History, payment)
	if payment.Amount.Cmp(client.Billing.RentAmount) >= 0 {
		client.Billing.PaymentStatus = domain.PaymentStatusPaid
	}

	s.clientsByID[clientID] = cloneClient(client)
	updated := cloneClient(client)
	return &updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = invoice.Ref("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if shopID != "" && entry.ShopID != shopID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByName[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "admin"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByName[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByName))
	for _, user := range s.usersByName {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByName[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByName[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.SaleRecord) domain.SaleRecord {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneReturn(src domain.ReturnRecord) domain.ReturnRecord {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneClient(src domain.Client) domain.Client {
	dup := src
	history := make([]domain.BillingPayment, len(src.Billing.History))
	copy(history, src.Billing.History)
	dup.Billing.History = history
	return dup
}

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
