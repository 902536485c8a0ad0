package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func newIntegrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	databaseURL := os.Getenv("POSMBE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POSMBE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s, ctx
}

func TestSaleDecrementsStockAndReversalRestoresIt(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	stamp := time.Now().UnixNano()
	model := fmt.Sprintf("IT-%d", stamp)
	cnic := fmt.Sprintf("IT-CNIC-%d", stamp)

	shop, err := s.CreateShop(ctx, domain.Shop{Name: fmt.Sprintf("IT Shop %d", stamp)})
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_edit_log WHERE model = $1`, model)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_ledger WHERE model = $1`, model)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock WHERE model = $1`, model)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE cnic = $1`, cnic)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM shops WHERE shop_id = $1`, shop.ID)
	})

	at := time.Now().UTC()
	if _, err := s.AddStock(ctx, domain.Stock{
		Model:           model,
		ShopID:          shop.ID,
		Brand:           "IT",
		Name:            "Integration Item",
		Quantity:        5,
		PurchasingPrice: decimal.NewFromInt(800),
		SellingPrice:    decimal.NewFromInt(1000),
	}, "it", at); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	draft := domain.SaleDraft{
		Sale: domain.Sale{
			CNIC:          cnic,
			TotalPayable:  decimal.NewFromInt(2000),
			TotalDiscount: decimal.Zero,
			PaymentStatus: domain.PaymentPaid,
			DateOfSelling: at,
			SoldBy:        "it",
			ShopID:        shop.ID,
		},
		Customer: &domain.Customer{CNIC: cnic, Name: "Integration Customer"},
		Items: []domain.SaleItem{
			{Model: model, ShopID: shop.ID, Quantity: 2, SellingPrice: decimal.NewFromInt(1000), Discount: decimal.Zero},
		},
	}

	created, err := s.CreateSale(ctx, draft)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.Sale.ID == 0 || len(created.Items) != 1 {
		t.Fatalf("expected persisted sale with one line, got %+v", created)
	}

	oversell := draft
	oversell.Items = []domain.SaleItem{{Model: model, ShopID: shop.ID, Quantity: 4, SellingPrice: decimal.NewFromInt(1000)}}
	_, err = s.CreateSale(ctx, oversell)
	var oos *store.OutOfStockError
	if !errors.As(err, &oos) || oos.Available != 3 || oos.Requested != 4 {
		t.Fatalf("expected out of stock with 3 available, got %v", err)
	}

	stock, err := s.GetStock(ctx, model, shop.ID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if stock.Quantity != 3 {
		t.Fatalf("expected stock 3 after one sale and a rejected one, got %d", stock.Quantity)
	}

	reversal, err := s.ReverseSale(ctx, created.Sale.ID)
	if err != nil {
		t.Fatalf("reverse sale: %v", err)
	}
	if len(reversal.Restored) != 1 || !reversal.Restored[0].Restored {
		t.Fatalf("expected one restored line, got %+v", reversal.Restored)
	}

	stock, err = s.GetStock(ctx, model, shop.ID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if stock.Quantity != 5 {
		t.Fatalf("expected stock 5 after reversal, got %d", stock.Quantity)
	}

	if _, err := s.GetSaleDetail(ctx, created.Sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected reversed sale to be gone, got %v", err)
	}
}
