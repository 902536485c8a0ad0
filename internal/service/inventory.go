package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

func (s *Service) AddStock(ctx context.Context, req domain.StockAddRequest) (domain.Stock, error) {
	item := domain.Stock{
		Model:           strings.TrimSpace(req.Model),
		ShopID:          req.ShopID,
		Brand:           strings.TrimSpace(req.Brand),
		Name:            strings.TrimSpace(req.Name),
		Quantity:        req.Quantity,
		PurchasingPrice: req.PurchasingPrice,
		SellingPrice:    req.SellingPrice,
	}
	if err := validateStockFields(item.Model, item.ShopID, item.PurchasingPrice, item.SellingPrice); err != nil {
		return domain.Stock{}, err
	}
	if item.Quantity < 0 {
		return domain.Stock{}, store.Invalid("quantity", "quantity must not be negative")
	}
	if err := authorizeShop(ctx, item.ShopID); err != nil {
		return domain.Stock{}, err
	}

	change, err := s.repo.AddStock(ctx, item, actorName(ctx), s.now())
	if err != nil {
		return domain.Stock{}, err
	}

	s.logAudit(ctx, &item.ShopID, "stock_add", "stock", item.Model,
		fmt.Sprintf("qty=%d,purchasing_price=%s,selling_price=%s", item.Quantity, item.PurchasingPrice, item.SellingPrice))
	return change.Stock, nil
}

// UpdateStock applies each restock on its own. A line that is missing,
// invalid or out of scope is reported in its result and does not stop the
// others; only a store failure aborts the batch.
func (s *Service) UpdateStock(ctx context.Context, req domain.StockUpdateRequest) (domain.StockUpdateResponse, error) {
	if len(req.Stock) == 0 {
		return domain.StockUpdateResponse{}, store.Invalid("stock", "at least one stock item is required")
	}

	resp := domain.StockUpdateResponse{UpdatedStock: make([]domain.StockUpdateResult, 0, len(req.Stock))}
	for _, adj := range req.Stock {
		adj.Model = strings.TrimSpace(adj.Model)
		adj.Brand = strings.TrimSpace(adj.Brand)
		adj.Name = strings.TrimSpace(adj.Name)
		result := domain.StockUpdateResult{Model: adj.Model, ShopID: adj.ShopID}

		err := validateStockFields(adj.Model, adj.ShopID, adj.PurchasingPrice, adj.SellingPrice)
		if err == nil {
			err = authorizeShop(ctx, adj.ShopID)
		}
		var change *domain.StockChange
		if err == nil {
			change, err = s.repo.Restock(ctx, adj, actorName(ctx), s.now())
		}

		switch {
		case err == nil:
			result.Stock = &change.Stock
			result.PreviousQuantity = change.PreviousQuantity
			result.Message = "updated"
			s.logAudit(ctx, &adj.ShopID, "stock_update", "stock", adj.Model,
				fmt.Sprintf("previous=%d,new=%d,delta=%d", change.PreviousQuantity, change.Stock.Quantity, adj.Quantity))
		case errors.Is(err, store.ErrNotFound):
			result.Message = fmt.Sprintf("stock not found for model %s in shop %d", adj.Model, adj.ShopID)
		case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrForbidden):
			result.Message = err.Error()
		default:
			return domain.StockUpdateResponse{}, err
		}
		resp.UpdatedStock = append(resp.UpdatedStock, result)
	}
	return resp, nil
}

func (s *Service) ListStock(ctx context.Context, shopID *int64) ([]domain.StockView, error) {
	scoped, err := scopeShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStockWithShop(ctx, scoped)
}

func (s *Service) CheckStock(ctx context.Context, model string, shopID int64) (domain.Stock, error) {
	model = strings.TrimSpace(model)
	if model == "" || shopID < 1 {
		return domain.Stock{}, store.Invalid("model", "model and shop_id are required")
	}
	if err := authorizeShop(ctx, shopID); err != nil {
		return domain.Stock{}, err
	}
	item, err := s.repo.GetStock(ctx, model, shopID)
	if err != nil {
		return domain.Stock{}, err
	}
	return *item, nil
}

func (s *Service) ListLedger(ctx context.Context, shopID *int64) ([]domain.StockLedgerEntry, error) {
	scoped, err := scopeShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListLedger(ctx, scoped)
}

func (s *Service) ListStockEditLog(ctx context.Context, shopID *int64, limit int) ([]domain.StockEditLog, error) {
	scoped, err := scopeShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListStockEditLog(ctx, scoped, limit)
}

// DeleteLedgerEntry is an administrative correction of the purchasing
// ledger. The stock quantity the entry recorded is not reversed.
func (s *Service) DeleteLedgerEntry(ctx context.Context, ledgerID int64) (domain.StockLedgerEntry, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockLedgerEntry{}, err
	}
	if ledgerID < 1 {
		return domain.StockLedgerEntry{}, store.Invalid("ledger_id", "ledger_id is required")
	}

	deleted, err := s.repo.DeleteLedgerEntry(ctx, ledgerID)
	if err != nil {
		return domain.StockLedgerEntry{}, err
	}

	s.logAudit(ctx, &deleted.ShopID, "ledger_delete", "stock_ledger", fmt.Sprint(deleted.ID),
		fmt.Sprintf("model=%s,qty=%d,total=%s", deleted.Model, deleted.Quantity, deleted.TotalPrice))
	return *deleted, nil
}

func validateStockFields(model string, shopID int64, cost decimal.Decimal, price decimal.Decimal) error {
	if model == "" {
		return store.Invalid("model", "model is required")
	}
	if shopID < 1 {
		return store.Invalid("shop_id", "shop_id is required")
	}
	if cost.IsNegative() {
		return store.Invalid("purchasing_price", "purchasing_price must not be negative")
	}
	if price.IsNegative() {
		return store.Invalid("selling_price", "selling_price must not be negative")
	}
	if err := checkCents("purchasing_price", cost); err != nil {
		return err
	}
	return checkCents("selling_price", price)
}
