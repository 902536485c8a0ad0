package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posmbe/backend/internal/cache"
	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

// SubmitSale validates and prices the cart, then hands one draft to the
// store, which checks and decrements stock and writes the sale, its lines
// and any plan or unpaid record atomically. With an idempotency key the
// key is reserved before the store is touched, so a concurrent retry either
// replays the stored receipt or is refused while the first one is running.
func (s *Service) SubmitSale(ctx context.Context, req domain.SaleSubmitRequest) (domain.SaleReceipt, error) {
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	var cacheKey string
	if idempotencyKey != "" {
		cacheKey = cache.SaleReceiptKey(actorName(ctx), idempotencyKey)
		if receipt, done, err := s.replayReceipt(ctx, cacheKey, idempotencyKey); done {
			return receipt, err
		}
	}

	draft, err := s.buildSaleDraft(ctx, req, s.now())
	if err != nil {
		return domain.SaleReceipt{}, err
	}

	reserved := false
	if cacheKey != "" {
		ok, err := s.receipts.Reserve(ctx, cacheKey, reservationTTL(s.receiptTTL))
		switch {
		case err != nil:
			log.Printf("[service] WARN: sale receipt reservation failed, submitting without it: %v", err)
		case !ok:
			if receipt, done, err := s.replayReceipt(ctx, cacheKey, idempotencyKey); done {
				return receipt, err
			}
			return domain.SaleReceipt{}, store.Conflictf("sale with idempotency key %s is already in progress", idempotencyKey)
		default:
			reserved = true
		}
	}

	created, err := s.repo.CreateSale(ctx, draft)
	if err != nil {
		if reserved {
			if relErr := s.receipts.Release(ctx, cacheKey); relErr != nil {
				log.Printf("[service] WARN: failed to release sale receipt reservation: %v", relErr)
			}
		}
		return domain.SaleReceipt{}, err
	}

	receipt := domain.SaleReceipt{
		Message:    "sale recorded",
		SaleID:     created.Sale.ID,
		ShopID:     created.Sale.ShopID,
		Total:      created.Sale.TotalPayable,
		Discount:   created.Sale.TotalDiscount,
		Status:     created.Sale.PaymentStatus,
		Instalment: created.Instalment,
	}
	if cacheKey != "" {
		if err := s.receipts.Set(ctx, cacheKey, &receipt, s.receiptTTL); err != nil {
			log.Printf("[service] WARN: failed to cache sale receipt sale=%d: %v", receipt.SaleID, err)
		}
	}

	s.logAudit(ctx, &created.Sale.ShopID, "sale_submit", "sale", fmt.Sprint(created.Sale.ID),
		fmt.Sprintf("cnic=%s,status=%s,total=%s,discount=%s,lines=%d",
			created.Sale.CNIC, created.Sale.PaymentStatus, created.Sale.TotalPayable, created.Sale.TotalDiscount, len(created.Items)))
	return receipt, nil
}

// replayReceipt reports done when the key already resolves to a stored
// receipt or to a submission still in flight.
func (s *Service) replayReceipt(ctx context.Context, cacheKey string, idempotencyKey string) (domain.SaleReceipt, bool, error) {
	cached, hit, err := s.receipts.Get(ctx, cacheKey)
	switch {
	case errors.Is(err, cache.ErrReceiptPending):
		return domain.SaleReceipt{}, true, store.Conflictf("sale with idempotency key %s is already in progress", idempotencyKey)
	case err != nil:
		log.Printf("[service] WARN: sale receipt cache read failed: %v", err)
		return domain.SaleReceipt{}, false, nil
	case hit:
		cached.Duplicate = true
		return *cached, true, nil
	}
	return domain.SaleReceipt{}, false, nil
}

// reservationTTL bounds how long a crashed submission can hold its key.
func reservationTTL(receiptTTL time.Duration) time.Duration {
	if receiptTTL > 0 && receiptTTL < time.Minute {
		return receiptTTL
	}
	return time.Minute
}

func (s *Service) buildSaleDraft(ctx context.Context, req domain.SaleSubmitRequest, at time.Time) (domain.SaleDraft, error) {
	cnic := strings.TrimSpace(req.CNIC)
	if cnic == "" {
		return domain.SaleDraft{}, store.Invalid("cnic", "customer cnic is required")
	}
	if len(req.Items) == 0 {
		return domain.SaleDraft{}, store.Invalid("items", "at least one item is required")
	}
	if !req.PaymentStatus.Valid() {
		return domain.SaleDraft{}, store.Invalid("payment_status", "expected Paid, Instalments or Unpaid")
	}

	shopID := req.Items[0].ShopID
	items := make([]domain.SaleItem, 0, len(req.Items))
	totalPayable := decimal.Zero
	totalDiscount := decimal.Zero
	for i, in := range req.Items {
		model := strings.TrimSpace(in.Model)
		switch {
		case model == "":
			return domain.SaleDraft{}, store.Invalid(fmt.Sprintf("items[%d].model", i), "model is required")
		case in.ShopID < 1:
			return domain.SaleDraft{}, store.Invalid(fmt.Sprintf("items[%d].shop_id", i), "shop_id is required")
		case in.ShopID != shopID:
			return domain.SaleDraft{}, store.Invalid("items", "all items in a sale must belong to the same shop")
		case in.Quantity < 1:
			return domain.SaleDraft{}, store.Invalid(fmt.Sprintf("items[%d].quantity", i), "quantity must be greater than zero")
		case in.SellingPrice.IsNegative():
			return domain.SaleDraft{}, store.Invalid(fmt.Sprintf("items[%d].selling_price", i), "selling_price must not be negative")
		case in.Discount.IsNegative():
			return domain.SaleDraft{}, store.Invalid(fmt.Sprintf("items[%d].discount", i), "discount must not be negative")
		}
		if err := checkCents(fmt.Sprintf("items[%d].selling_price", i), in.SellingPrice); err != nil {
			return domain.SaleDraft{}, err
		}
		if err := checkCents(fmt.Sprintf("items[%d].discount", i), in.Discount); err != nil {
			return domain.SaleDraft{}, err
		}

		qty := decimal.NewFromInt(int64(in.Quantity))
		totalPayable = totalPayable.Add(in.SellingPrice.Mul(qty))
		totalDiscount = totalDiscount.Add(in.Discount.Mul(qty))
		items = append(items, domain.SaleItem{
			Model:        model,
			ShopID:       in.ShopID,
			Quantity:     in.Quantity,
			SellingPrice: in.SellingPrice,
			Discount:     in.Discount,
		})
	}
	if err := authorizeShop(ctx, shopID); err != nil {
		return domain.SaleDraft{}, err
	}

	soldBy := strings.TrimSpace(req.SoldBy)
	if soldBy == "" {
		soldBy = actorName(ctx)
	}

	draft := domain.SaleDraft{
		Sale: domain.Sale{
			CNIC:          cnic,
			TotalDiscount: totalDiscount,
			TotalPayable:  totalPayable,
			PaymentStatus: req.PaymentStatus,
			DateOfSelling: at,
			SoldBy:        soldBy,
			ShopID:        shopID,
		},
		Items: items,
	}
	if req.Customer != nil {
		draft.Customer = &domain.Customer{
			CNIC:        cnic,
			Name:        strings.TrimSpace(req.Customer.Name),
			PhoneNumber: strings.TrimSpace(req.Customer.PhoneNumber),
			Address:     strings.TrimSpace(req.Customer.Address),
			FatherName:  strings.TrimSpace(req.Customer.FatherName),
			Occupation:  strings.TrimSpace(req.Customer.Occupation),
			CreatedAt:   at,
		}
	}

	switch req.PaymentStatus {
	case domain.PaymentInstalments:
		if req.Installments == nil {
			return domain.SaleDraft{}, store.Invalid("installments", "an instalment plan is required")
		}
		plan, err := BuildInstalmentPlan(totalPayable, *req.Installments, at)
		if err != nil {
			return domain.SaleDraft{}, err
		}
		plan.CNIC = cnic
		plan.Surety = req.Surety
		draft.Instalment = &plan
	case domain.PaymentUnpaid:
		draft.Unpaid = &domain.UnpaidSale{
			CNIC:              cnic,
			TotalUnpaidAmount: totalPayable,
			Status:            domain.UnpaidStatusOpen,
			Surety:            req.Surety,
		}
	}
	return draft, nil
}

func (s *Service) FindOrCreateCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	customer.CNIC = strings.TrimSpace(customer.CNIC)
	if customer.CNIC == "" {
		return domain.Customer{}, store.Invalid("cnic", "customer cnic is required")
	}
	customer.Name = strings.TrimSpace(customer.Name)
	customer.CreatedAt = s.now()

	found, err := s.repo.FindOrCreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *found, nil
}

func (s *Service) InvoiceBootstrap(ctx context.Context) (domain.InvoiceBootstrap, error) {
	scoped, err := scopeShop(ctx, nil)
	if err != nil {
		return domain.InvoiceBootstrap{}, err
	}
	stock, err := s.repo.ListStock(ctx, scoped)
	if err != nil {
		return domain.InvoiceBootstrap{}, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return domain.InvoiceBootstrap{}, err
	}
	return domain.InvoiceBootstrap{Stock: stock, Customers: customers}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID int64) (domain.SaleDetail, error) {
	detail, err := s.repo.GetSaleDetail(ctx, saleID)
	if err != nil {
		return domain.SaleDetail{}, err
	}
	if err := authorizeShop(ctx, detail.Sale.ShopID); err != nil {
		return domain.SaleDetail{}, err
	}
	return *detail, nil
}

func (s *Service) ListSales(ctx context.Context, shopID *int64) ([]domain.SaleSummary, error) {
	scoped, err := scopeShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, scoped)
}

// ReverseSale undoes a sale: stock goes back to the (model, shop) rows it
// came from and the sale is deleted with every dependent record.
func (s *Service) ReverseSale(ctx context.Context, saleID int64) (domain.SaleReversal, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SaleReversal{}, err
	}
	if saleID < 1 {
		return domain.SaleReversal{}, store.Invalid("sale_id", "sale_id is required")
	}

	reversal, err := s.repo.ReverseSale(ctx, saleID)
	if err != nil {
		return domain.SaleReversal{}, err
	}

	for _, line := range reversal.Restored {
		if !line.Restored {
			log.Printf("[service] WARN: sale %d reversed but stock %s in shop %d no longer exists; %d units not restored",
				saleID, line.Model, line.ShopID, line.Quantity)
		}
	}
	s.logAudit(ctx, &reversal.Sale.ShopID, "sale_reverse", "sale", fmt.Sprint(saleID),
		fmt.Sprintf("cnic=%s,status=%s,total=%s,lines=%d", reversal.Sale.CNIC, reversal.Sale.PaymentStatus, reversal.Sale.TotalPayable, len(reversal.Restored)))
	return *reversal, nil
}
