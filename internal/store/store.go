package store

import (
	"context"
	"time"

	"posmbe/backend/internal/domain"
)

// InstalmentUpdate is the outcome of one payment, computed while the
// instalment row is held exclusively.
type InstalmentUpdate struct {
	Instalment domain.Instalment
	Payment    domain.InstalmentPayment
}

// PaymentFunc derives the next instalment state from the locked current one.
// Returning an error aborts the payment without side effects.
type PaymentFunc func(current domain.Instalment) (InstalmentUpdate, error)

// Repository is the ledger and stock store. Every mutating method is atomic:
// it either applies completely or leaves no trace.
type Repository interface {
	ListStock(ctx context.Context, shopID *int64) ([]domain.Stock, error)
	ListStockWithShop(ctx context.Context, shopID *int64) ([]domain.StockView, error)
	GetStock(ctx context.Context, model string, shopID int64) (*domain.Stock, error)
	AddStock(ctx context.Context, stock domain.Stock, editedBy string, at time.Time) (*domain.StockChange, error)
	Restock(ctx context.Context, adj domain.StockAdjustment, editedBy string, at time.Time) (*domain.StockChange, error)
	ListLedger(ctx context.Context, shopID *int64) ([]domain.StockLedgerEntry, error)
	DeleteLedgerEntry(ctx context.Context, ledgerID int64) (*domain.StockLedgerEntry, error)
	ListStockEditLog(ctx context.Context, shopID *int64, limit int) ([]domain.StockEditLog, error)

	FindOrCreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.SaleDraft, error)
	GetSaleDetail(ctx context.Context, saleID int64) (*domain.SaleDetail, error)
	ListSales(ctx context.Context, shopID *int64) ([]domain.SaleSummary, error)
	ReverseSale(ctx context.Context, saleID int64) (*domain.SaleReversal, error)

	GetInstalment(ctx context.Context, instalmentID int64) (*domain.Instalment, error)
	ListInstalments(ctx context.Context, shopID *int64) ([]domain.InstalmentView, error)
	ListInstalmentPayments(ctx context.Context, saleID int64) ([]domain.InstalmentPayment, error)
	ApplyInstalmentPayment(ctx context.Context, instalmentID int64, apply PaymentFunc) (*InstalmentUpdate, error)

	FindUnpaidSale(ctx context.Context, saleID *int64, cnic string) (*domain.UnpaidSale, error)
	ListUnpaidSales(ctx context.Context, shopID *int64) ([]domain.UnpaidSaleView, error)
	SettleUnpaidSale(ctx context.Context, saleID int64) (*domain.UnpaidSale, error)
	SaleShopID(ctx context.Context, saleID int64) (int64, error)

	CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error)
	GetShop(ctx context.Context, shopID int64) (*domain.Shop, error)
	ListShops(ctx context.Context) ([]domain.Shop, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
