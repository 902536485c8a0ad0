package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

func (s *Service) ListUnpaidSales(ctx context.Context, shopID *int64) ([]domain.UnpaidSaleView, error) {
	scoped, err := scopeShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUnpaidSales(ctx, scoped)
}

// FindUnpaidSale looks up by sale id when ref is numeric and by customer
// CNIC otherwise; a numeric CNIC still matches.
func (s *Service) FindUnpaidSale(ctx context.Context, ref string) (domain.UnpaidSale, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.UnpaidSale{}, store.Invalid("sale_id", "sale id or cnic is required")
	}

	var saleID *int64
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		saleID = &id
	}
	unpaid, err := s.repo.FindUnpaidSale(ctx, saleID, ref)
	if err != nil {
		return domain.UnpaidSale{}, err
	}
	if err := s.authorizeSale(ctx, unpaid.SaleID); err != nil {
		return domain.UnpaidSale{}, err
	}
	return *unpaid, nil
}

// SettleUnpaidSale zeroes the outstanding amount. Settling an already
// settled sale succeeds without further effect.
func (s *Service) SettleUnpaidSale(ctx context.Context, saleID int64) (domain.UnpaidSale, error) {
	if saleID < 1 {
		return domain.UnpaidSale{}, store.Invalid("sale_id", "sale_id is required")
	}

	current, err := s.repo.FindUnpaidSale(ctx, &saleID, "")
	if err != nil {
		return domain.UnpaidSale{}, err
	}
	if current.TotalUnpaidAmount.IsZero() {
		return *current, nil
	}

	settled, err := s.repo.SettleUnpaidSale(ctx, saleID)
	if err != nil {
		return domain.UnpaidSale{}, err
	}

	s.logAudit(ctx, nil, "unpaid_settle", "unpaid_sale", fmt.Sprint(saleID),
		fmt.Sprintf("cnic=%s,amount=%s", current.CNIC, current.TotalUnpaidAmount))
	return *settled, nil
}
