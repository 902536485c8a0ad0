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

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

type stockKey struct {
	model  string
	shopID int64
}

// Store keeps every table in process memory behind one lock. Mutations
// validate the whole request before touching any map, so a failed call
// leaves no partial state.
type Store struct {
	mu               sync.RWMutex
	shops            map[int64]domain.Shop
	stock            map[stockKey]domain.Stock
	ledger           []domain.StockLedgerEntry
	editLog          []domain.StockEditLog
	customers        map[string]domain.Customer
	sales            map[int64]domain.Sale
	saleItems        map[int64][]domain.SaleItem
	instalments      map[int64]domain.Instalment
	instalmentBySale map[int64]int64
	payments         map[int64][]domain.InstalmentPayment
	unpaidBySale     map[int64]domain.UnpaidSale
	usersByUsername  map[string]domain.UserAccount
	auditLogs        []domain.AuditLog
	seq              map[string]int64
}

func New() *Store {
	return &Store{
		shops:            make(map[int64]domain.Shop),
		stock:            make(map[stockKey]domain.Stock),
		ledger:           make([]domain.StockLedgerEntry, 0, 64),
		editLog:          make([]domain.StockEditLog, 0, 64),
		customers:        make(map[string]domain.Customer),
		sales:            make(map[int64]domain.Sale),
		saleItems:        make(map[int64][]domain.SaleItem),
		instalments:      make(map[int64]domain.Instalment),
		instalmentBySale: make(map[int64]int64),
		payments:         make(map[int64][]domain.InstalmentPayment),
		unpaidBySale:     make(map[int64]domain.UnpaidSale),
		usersByUsername:  make(map[string]domain.UserAccount),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		seq:              make(map[string]int64),
	}
}

// NewSeeded returns a store with two shops, a small catalogue, one customer
// and dev credentials for an admin and a shop-1 manager.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, shop := range []domain.Shop{
		{Name: "Main Branch", Location: "Mall Road"},
		{Name: "City Branch", Location: "Saddar"},
	} {
		shop.ID = s.nextID("shop")
		s.shops[shop.ID] = shop
	}

	for _, item := range []domain.Stock{
		{Model: "X100", ShopID: 1, Brand: "Haier", Name: "Inverter AC 1.5 Ton", Quantity: 5, PurchasingPrice: decimal.NewFromInt(800), SellingPrice: decimal.NewFromInt(1000)},
		{Model: "X100", ShopID: 2, Brand: "Haier", Name: "Inverter AC 1.5 Ton", Quantity: 5, PurchasingPrice: decimal.NewFromInt(800), SellingPrice: decimal.NewFromInt(1000)},
		{Model: "A52", ShopID: 1, Brand: "Samsung", Name: "Galaxy A52", Quantity: 10, PurchasingPrice: decimal.NewFromInt(300), SellingPrice: decimal.NewFromInt(450)},
		{Model: "WM-7", ShopID: 2, Brand: "Dawlance", Name: "Washing Machine", Quantity: 3, PurchasingPrice: decimal.RequireFromString("520.50"), SellingPrice: decimal.NewFromInt(700)},
	} {
		s.insertStockLocked(item, "seed", now)
	}

	s.customers["35202-1234567-1"] = domain.Customer{
		CNIC:        "35202-1234567-1",
		Name:        "Ali Raza",
		PhoneNumber: "0300-1234567",
		Address:     "House 12, Model Town",
		CreatedAt:   now,
	}

	for username, user := range seedUsers() {
		user.ID = s.nextID("user")
		s.usersByUsername[username] = user
	}
	return s
}

// seedUsers builds dev credentials for in-memory mode. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD, with a warning when the
// hardcoded fallbacks are used.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD to override.")
	}

	shopOne := int64(1)
	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		name     string
		password string
		role     string
		shopID   *int64
	}{
		{"admin", "Owner", adminPwd, domain.RoleAdmin, nil},
		{"manager", "Main Branch Manager", managerPwd, domain.RoleManager, &shopOne},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Name:      u.name,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			ShopID:    u.shopID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) nextID(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

func (s *Store) ListStock(_ context.Context, shopID *int64) ([]domain.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Stock, 0, len(s.stock))
	for _, item := range s.stock {
		if shopID != nil && item.ShopID != *shopID {
			continue
		}
		result = append(result, item)
	}
	slices.SortFunc(result, compareStock)
	return result, nil
}

func (s *Store) ListStockWithShop(ctx context.Context, shopID *int64) ([]domain.StockView, error) {
	items, err := s.ListStock(ctx, shopID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockView, 0, len(items))
	for _, item := range items {
		shop, ok := s.shops[item.ShopID]
		if !ok {
			continue
		}
		result = append(result, domain.StockView{Stock: item, ShopName: shop.Name})
	}
	return result, nil
}

func (s *Store) GetStock(_ context.Context, model string, shopID int64) (*domain.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.stock[stockKey{model: model, shopID: shopID}]
	if !ok {
		return nil, store.NotFoundf("stock %s in shop %d", model, shopID)
	}
	return &item, nil
}

func (s *Store) AddStock(_ context.Context, item domain.Stock, editedBy string, at time.Time) (*domain.StockChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shops[item.ShopID]; !ok {
		return nil, store.NotFoundf("shop %d", item.ShopID)
	}
	if _, exists := s.stock[stockKey{model: item.Model, shopID: item.ShopID}]; exists {
		return nil, store.Conflictf("stock item %s already exists in shop %d", item.Model, item.ShopID)
	}

	return s.insertStockLocked(item, editedBy, at), nil
}

func (s *Store) insertStockLocked(item domain.Stock, editedBy string, at time.Time) *domain.StockChange {
	s.stock[stockKey{model: item.Model, shopID: item.ShopID}] = item

	entry := domain.StockLedgerEntry{
		ID:              s.nextID("ledger"),
		Model:           item.Model,
		ShopID:          item.ShopID,
		Brand:           item.Brand,
		Name:            item.Name,
		Quantity:        item.Quantity,
		PurchasingPrice: item.PurchasingPrice,
		TotalPrice:      item.PurchasingPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		CreatedAt:       at,
	}
	s.ledger = append(s.ledger, entry)

	editLog := domain.StockEditLog{
		ID:               s.nextID("edit_log"),
		Model:            item.Model,
		ShopID:           item.ShopID,
		Action:           domain.StockEventAdded,
		PreviousQuantity: 0,
		NewQuantity:      item.Quantity,
		EditedBy:         editedBy,
		CreatedAt:        at,
	}
	s.editLog = append(s.editLog, editLog)

	return &domain.StockChange{Stock: item, PreviousQuantity: 0, Ledger: &entry, EditLog: editLog}
}

func (s *Store) Restock(_ context.Context, adj domain.StockAdjustment, editedBy string, at time.Time) (*domain.StockChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stockKey{model: adj.Model, shopID: adj.ShopID}
	existing, ok := s.stock[key]
	if !ok {
		return nil, store.NotFoundf("stock %s in shop %d", adj.Model, adj.ShopID)
	}

	previous := existing.Quantity
	next := previous + adj.Quantity
	if next < 0 {
		return nil, store.Invalid("quantity", "restock would make quantity negative")
	}

	updated := domain.Stock{
		Model:           adj.Model,
		ShopID:          adj.ShopID,
		Brand:           adj.Brand,
		Name:            adj.Name,
		Quantity:        next,
		PurchasingPrice: adj.PurchasingPrice,
		SellingPrice:    adj.SellingPrice,
	}
	s.stock[key] = updated

	change := &domain.StockChange{Stock: updated, PreviousQuantity: previous}
	change.EditLog = domain.StockEditLog{
		ID:               s.nextID("edit_log"),
		Model:            adj.Model,
		ShopID:           adj.ShopID,
		Action:           domain.StockEventUpdated,
		PreviousQuantity: previous,
		NewQuantity:      next,
		EditedBy:         editedBy,
		CreatedAt:        at,
	}
	s.editLog = append(s.editLog, change.EditLog)

	if adj.Quantity != 0 {
		entry := domain.StockLedgerEntry{
			ID:              s.nextID("ledger"),
			Model:           adj.Model,
			ShopID:          adj.ShopID,
			Brand:           adj.Brand,
			Name:            adj.Name,
			Quantity:        adj.Quantity,
			PurchasingPrice: adj.PurchasingPrice,
			TotalPrice:      adj.PurchasingPrice.Mul(decimal.NewFromInt(int64(adj.Quantity))),
			CreatedAt:       at,
		}
		s.ledger = append(s.ledger, entry)
		change.Ledger = &entry
	}

	return change, nil
}

func (s *Store) ListLedger(_ context.Context, shopID *int64) ([]domain.StockLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockLedgerEntry, 0, len(s.ledger))
	for i := len(s.ledger) - 1; i >= 0; i-- {
		entry := s.ledger[i]
		if shopID != nil && entry.ShopID != *shopID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) DeleteLedgerEntry(_ context.Context, ledgerID int64) (*domain.StockLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.ledger, func(entry domain.StockLedgerEntry) bool {
		return entry.ID == ledgerID
	})
	if idx < 0 {
		return nil, store.NotFoundf("ledger entry %d", ledgerID)
	}

	deleted := s.ledger[idx]
	s.ledger = slices.Delete(s.ledger, idx, idx+1)
	return &deleted, nil
}

func (s *Store) ListStockEditLog(_ context.Context, shopID *int64, limit int) ([]domain.StockEditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockEditLog, 0, 32)
	for i := len(s.editLog) - 1; i >= 0; i-- {
		entry := s.editLog[i]
		if shopID != nil && entry.ShopID != *shopID {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) FindOrCreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.findOrCreateCustomerLocked(customer)
	return &found, nil
}

func (s *Store) findOrCreateCustomerLocked(customer domain.Customer) domain.Customer {
	if existing, ok := s.customers[customer.CNIC]; ok {
		return existing
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.CNIC] = customer
	return customer
}

// saleCustomer falls back to a CNIC-only record when the sale carries no
// customer details.
func saleCustomer(draft domain.SaleDraft) domain.Customer {
	if draft.Customer != nil {
		return *draft.Customer
	}
	return domain.Customer{CNIC: draft.Sale.CNIC, CreatedAt: draft.Sale.DateOfSelling}
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customers))
	for _, customer := range s.customers {
		result = append(result, customer)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return strings.Compare(a.Name+a.CNIC, b.Name+b.CNIC)
	})
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.SaleDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(draft.Items) == 0 {
		return nil, store.Invalid("items", "at least one item is required")
	}
	// Check every line against a working copy first; lines repeating the
	// same model draw from the same remaining quantity.
	remaining := make(map[stockKey]int, len(draft.Items))
	for _, item := range draft.Items {
		key := stockKey{model: item.Model, shopID: item.ShopID}
		available, seen := remaining[key]
		if !seen {
			row, ok := s.stock[key]
			if !ok {
				return nil, store.NotFoundf("stock not found for model %s in shop %d", item.Model, item.ShopID)
			}
			available = row.Quantity
		}
		if available < item.Quantity {
			return nil, &store.OutOfStockError{Model: item.Model, ShopID: item.ShopID, Available: available, Requested: item.Quantity}
		}
		remaining[key] = available - item.Quantity
	}

	created := domain.SaleDraft{Sale: draft.Sale}
	customer := s.findOrCreateCustomerLocked(saleCustomer(draft))
	created.Customer = &customer

	created.Sale.ID = s.nextID("sale")
	s.sales[created.Sale.ID] = created.Sale

	created.Items = make([]domain.SaleItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		item.ID = s.nextID("sale_item")
		item.SaleID = created.Sale.ID
		created.Items = append(created.Items, item)
	}
	s.saleItems[created.Sale.ID] = created.Items
	for key, qty := range remaining {
		row := s.stock[key]
		row.Quantity = qty
		s.stock[key] = row
	}

	if draft.Instalment != nil {
		inst := *draft.Instalment
		inst.ID = s.nextID("instalment")
		inst.SaleID = created.Sale.ID
		inst.CNIC = created.Sale.CNIC
		s.instalments[inst.ID] = inst
		s.instalmentBySale[created.Sale.ID] = inst.ID
		created.Instalment = &inst
	}
	if draft.Unpaid != nil {
		unpaid := *draft.Unpaid
		unpaid.ID = s.nextID("unpaid")
		unpaid.SaleID = created.Sale.ID
		unpaid.CNIC = created.Sale.CNIC
		s.unpaidBySale[created.Sale.ID] = unpaid
		created.Unpaid = &unpaid
	}

	return &created, nil
}

func (s *Store) GetSaleDetail(_ context.Context, saleID int64) (*domain.SaleDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.NotFoundf("sale %d", saleID)
	}

	detail := &domain.SaleDetail{
		Sale:     sale,
		Items:    slices.Clone(s.saleItems[saleID]),
		Payments: slices.Clone(s.payments[saleID]),
	}
	if customer, ok := s.customers[sale.CNIC]; ok {
		detail.Customer = &customer
	}
	if instID, ok := s.instalmentBySale[saleID]; ok {
		inst := s.instalments[instID]
		detail.Instalment = &inst
	}
	if unpaid, ok := s.unpaidBySale[saleID]; ok {
		detail.Unpaid = &unpaid
	}
	if detail.Items == nil {
		detail.Items = []domain.SaleItem{}
	}
	if detail.Payments == nil {
		detail.Payments = []domain.InstalmentPayment{}
	}
	return detail, nil
}

func (s *Store) ListSales(_ context.Context, shopID *int64) ([]domain.SaleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleSummary, 0, len(s.sales))
	for _, sale := range s.sales {
		if shopID != nil && sale.ShopID != *shopID {
			continue
		}
		customer := s.customers[sale.CNIC]
		result = append(result, domain.SaleSummary{
			SaleID:        sale.ID,
			TotalPayable:  sale.TotalPayable,
			TotalDiscount: sale.TotalDiscount,
			PaymentStatus: sale.PaymentStatus,
			ShopID:        sale.ShopID,
			DateOfSelling: sale.DateOfSelling,
			CustomerName:  customer.Name,
			PhoneNumber:   customer.PhoneNumber,
			SoldBy:        sale.SoldBy,
		})
	}
	slices.SortFunc(result, func(a, b domain.SaleSummary) int {
		if c := b.DateOfSelling.Compare(a.DateOfSelling); c != 0 {
			return c
		}
		return int(b.SaleID - a.SaleID)
	})
	return result, nil
}

func (s *Store) SaleShopID(_ context.Context, saleID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return 0, store.NotFoundf("sale %d", saleID)
	}
	return sale.ShopID, nil
}

func (s *Store) ReverseSale(_ context.Context, saleID int64) (*domain.SaleReversal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.NotFoundf("sale %d", saleID)
	}

	items := s.saleItems[saleID]
	restored := make([]domain.StockRestore, 0, len(items))
	for _, item := range items {
		key := stockKey{model: item.Model, shopID: item.ShopID}
		row, exists := s.stock[key]
		if exists {
			row.Quantity += item.Quantity
			s.stock[key] = row
		}
		restored = append(restored, domain.StockRestore{
			Model:    item.Model,
			ShopID:   item.ShopID,
			Quantity: item.Quantity,
			Restored: exists,
		})
	}

	// Children before parent, mirroring the relational delete order.
	delete(s.payments, saleID)
	if instID, ok := s.instalmentBySale[saleID]; ok {
		delete(s.instalments, instID)
		delete(s.instalmentBySale, saleID)
	}
	delete(s.saleItems, saleID)
	delete(s.unpaidBySale, saleID)
	delete(s.sales, saleID)

	return &domain.SaleReversal{Sale: sale, Restored: restored}, nil
}

func (s *Store) GetInstalment(_ context.Context, instalmentID int64) (*domain.Instalment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instalments[instalmentID]
	if !ok {
		return nil, store.NotFoundf("instalment %d", instalmentID)
	}
	return &inst, nil
}

func (s *Store) ListInstalments(_ context.Context, shopID *int64) ([]domain.InstalmentView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InstalmentView, 0, len(s.instalments))
	for _, inst := range s.instalments {
		sale := s.sales[inst.SaleID]
		if shopID != nil && sale.ShopID != *shopID {
			continue
		}
		customer, ok := s.customers[inst.CNIC]
		if !ok {
			continue
		}
		result = append(result, domain.InstalmentView{
			Instalment:   inst,
			CustomerName: customer.Name,
			PhoneNumber:  customer.PhoneNumber,
			ShopID:       sale.ShopID,
		})
	}
	slices.SortFunc(result, func(a, b domain.InstalmentView) int {
		return int(a.ID - b.ID)
	})
	return result, nil
}

func (s *Store) ListInstalmentPayments(_ context.Context, saleID int64) ([]domain.InstalmentPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := slices.Clone(s.payments[saleID])
	if payments == nil {
		payments = []domain.InstalmentPayment{}
	}
	return payments, nil
}

func (s *Store) ApplyInstalmentPayment(_ context.Context, instalmentID int64, apply store.PaymentFunc) (*store.InstalmentUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instalments[instalmentID]
	if !ok {
		return nil, store.NotFoundf("instalment %d", instalmentID)
	}

	update, err := apply(current)
	if err != nil {
		return nil, err
	}

	update.Instalment.ID = current.ID
	update.Instalment.SaleID = current.SaleID
	update.Payment.ID = s.nextID("payment")
	update.Payment.SaleID = current.SaleID
	s.instalments[instalmentID] = update.Instalment
	s.payments[current.SaleID] = append(s.payments[current.SaleID], update.Payment)

	return &update, nil
}

func (s *Store) FindUnpaidSale(_ context.Context, saleID *int64, cnic string) (*domain.UnpaidSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.UnpaidSale
	for id, unpaid := range s.unpaidBySale {
		match := (saleID != nil && id == *saleID) || (cnic != "" && unpaid.CNIC == cnic)
		if !match {
			continue
		}
		if found == nil || unpaid.SaleID > found.SaleID {
			u := unpaid
			found = &u
		}
	}
	if found == nil {
		return nil, store.NotFoundf("unpaid sale")
	}
	return found, nil
}

func (s *Store) ListUnpaidSales(_ context.Context, shopID *int64) ([]domain.UnpaidSaleView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UnpaidSaleView, 0, len(s.unpaidBySale))
	for _, unpaid := range s.unpaidBySale {
		sale := s.sales[unpaid.SaleID]
		if shopID != nil && sale.ShopID != *shopID {
			continue
		}
		customer, ok := s.customers[unpaid.CNIC]
		if !ok {
			continue
		}
		result = append(result, domain.UnpaidSaleView{
			UnpaidSale:   unpaid,
			CustomerName: customer.Name,
			PhoneNumber:  customer.PhoneNumber,
			ShopID:       sale.ShopID,
		})
	}
	slices.SortFunc(result, func(a, b domain.UnpaidSaleView) int {
		return int(a.ID - b.ID)
	})
	return result, nil
}

func (s *Store) SettleUnpaidSale(_ context.Context, saleID int64) (*domain.UnpaidSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unpaid, ok := s.unpaidBySale[saleID]
	if !ok {
		return nil, store.NotFoundf("unpaid sale %d", saleID)
	}
	unpaid.TotalUnpaidAmount = decimal.Zero
	unpaid.Status = domain.UnpaidStatusSettled
	s.unpaidBySale[saleID] = unpaid
	return &unpaid, nil
}

func (s *Store) CreateShop(_ context.Context, shop domain.Shop) (*domain.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.shops {
		if strings.EqualFold(existing.Name, shop.Name) {
			return nil, store.Conflictf("shop %q", shop.Name)
		}
	}
	shop.ID = s.nextID("shop")
	s.shops[shop.ID] = shop
	return &shop, nil
}

func (s *Store) GetShop(_ context.Context, shopID int64) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, ok := s.shops[shopID]
	if !ok {
		return nil, store.NotFoundf("shop %d", shopID)
	}
	return &shop, nil
}

func (s *Store) ListShops(_ context.Context) ([]domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shop, 0, len(s.shops))
	for _, shop := range s.shops {
		result = append(result, shop)
	}
	slices.SortFunc(result, func(a, b domain.Shop) int {
		return int(a.ID - b.ID)
	})
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.Invalid("username", "username and password are required")
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return nil, store.Conflictf("username %s", user.Username)
	}
	if user.ShopID != nil {
		if _, ok := s.shops[*user.ShopID]; !ok {
			return nil, store.NotFoundf("shop %d", *user.ShopID)
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.ID = s.nextID("user")
	s.usersByUsername[user.Username] = user
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func compareStock(a, b domain.Stock) int {
	if a.ShopID != b.ShopID {
		return int(a.ShopID - b.ShopID)
	}
	return strings.Compare(a.Model, b.Model)
}
