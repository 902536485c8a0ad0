package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"slices"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

type stockKey struct {
	model  string
	shopID int64
}

// CreateSale writes the sale, its lines, the stock decrements and any
// instalment or unpaid record in one serializable transaction. Stock rows
// are locked in (shop, model) order so concurrent sales cannot deadlock.
func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.SaleDraft, error) {
	if len(draft.Items) == 0 {
		return nil, store.Invalid("items", "at least one item is required")
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	created := domain.SaleDraft{Sale: draft.Sale}
	customer := domain.Customer{CNIC: draft.Sale.CNIC, CreatedAt: draft.Sale.DateOfSelling}
	if draft.Customer != nil {
		customer = *draft.Customer
	}
	created.Customer, err = findOrCreateCustomer(ctx, pgTx, customer)
	if err != nil {
		return nil, err
	}

	keys := make([]stockKey, 0, len(draft.Items))
	for _, item := range draft.Items {
		key := stockKey{model: item.Model, shopID: item.ShopID}
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b stockKey) int {
		if c := cmp.Compare(a.shopID, b.shopID); c != 0 {
			return c
		}
		return cmp.Compare(a.model, b.model)
	})

	remaining := make(map[stockKey]int, len(keys))
	for _, key := range keys {
		var qty int
		err := pgTx.QueryRowContext(ctx, `
			SELECT quantity
			FROM stock
			WHERE model = $1 AND shop_id = $2
			FOR UPDATE
		`, key.model, key.shopID).Scan(&qty)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.NotFoundf("stock not found for model %s in shop %d", key.model, key.shopID)
			}
			return nil, err
		}
		remaining[key] = qty
	}

	for _, item := range draft.Items {
		key := stockKey{model: item.Model, shopID: item.ShopID}
		if remaining[key] < item.Quantity {
			return nil, &store.OutOfStockError{Model: item.Model, ShopID: item.ShopID, Available: remaining[key], Requested: item.Quantity}
		}
		remaining[key] -= item.Quantity
	}

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (cnic, total_discount, total_payable, payment_status, date_of_selling, sold_by, shop_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING sale_id
	`, draft.Sale.CNIC, draft.Sale.TotalDiscount, draft.Sale.TotalPayable, string(draft.Sale.PaymentStatus),
		draft.Sale.DateOfSelling, draft.Sale.SoldBy, draft.Sale.ShopID).Scan(&created.Sale.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.NotFoundf("shop %d", draft.Sale.ShopID)
		}
		return nil, err
	}

	created.Items = make([]domain.SaleItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		item.SaleID = created.Sale.ID
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO sale_items (sale_id, model, shop_id, quantity, selling_price, discount)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING sale_item_id
		`, item.SaleID, item.Model, item.ShopID, item.Quantity, item.SellingPrice, item.Discount).Scan(&item.ID)
		if err != nil {
			return nil, err
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE stock
			SET quantity = quantity - $1, updated_at = now()
			WHERE model = $2 AND shop_id = $3
		`, item.Quantity, item.Model, item.ShopID)
		if err != nil {
			return nil, err
		}
		created.Items = append(created.Items, item)
	}

	if draft.Instalment != nil {
		inst := *draft.Instalment
		inst.SaleID = created.Sale.ID
		inst.CNIC = created.Sale.CNIC
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO instalments (
				sale_id, cnic, total_instalments, next_instalment_date, total_instalment_amount,
				margin_percentage, total_margin_amount, down_payment, total_loan, remaining_balance,
				overdue_status, surety_cnic, surety_name, surety_phone_number, surety_address,
				surety_father_name, surety_job
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			RETURNING instalment_id
		`, inst.SaleID, inst.CNIC, inst.TotalInstalments, nullDate(inst.NextInstalmentDate), inst.TotalInstalmentAmount,
			inst.MarginPercentage, inst.TotalMarginAmount, inst.DownPayment, inst.TotalLoan, inst.RemainingBalance,
			inst.OverdueStatus, inst.Surety.CNIC, inst.Surety.Name, inst.Surety.PhoneNumber, inst.Surety.Address,
			inst.Surety.FatherName, inst.Surety.Job).Scan(&inst.ID)
		if err != nil {
			return nil, err
		}
		created.Instalment = &inst
	}

	if draft.Unpaid != nil {
		unpaid := *draft.Unpaid
		unpaid.SaleID = created.Sale.ID
		unpaid.CNIC = created.Sale.CNIC
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO unpaid_sales (
				sale_id, cnic, total_unpaid_amount, status, surety_cnic, surety_name,
				surety_phone_number, surety_address, surety_father_name, surety_job
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING unpaid_id
		`, unpaid.SaleID, unpaid.CNIC, unpaid.TotalUnpaidAmount, unpaid.Status, unpaid.Surety.CNIC, unpaid.Surety.Name,
			unpaid.Surety.PhoneNumber, unpaid.Surety.Address, unpaid.Surety.FatherName, unpaid.Surety.Job).Scan(&unpaid.ID)
		if err != nil {
			return nil, err
		}
		created.Unpaid = &unpaid
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetSaleDetail(ctx context.Context, saleID int64) (*domain.SaleDetail, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT sale_id, cnic, total_discount, total_payable, payment_status, date_of_selling, sold_by, shop_id
		FROM sales
		WHERE sale_id = $1
	`, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("sale %d", saleID)
		}
		return nil, err
	}

	detail := &domain.SaleDetail{Sale: sale}

	var customer domain.Customer
	err = s.db.QueryRowContext(ctx, `
		SELECT cnic, name, phone_number, address, father_name, occupation, created_at
		FROM customers
		WHERE cnic = $1
	`, sale.CNIC).Scan(&customer.CNIC, &customer.Name, &customer.PhoneNumber, &customer.Address, &customer.FatherName, &customer.Occupation, &customer.CreatedAt)
	switch {
	case err == nil:
		customer.CreatedAt = customer.CreatedAt.UTC()
		detail.Customer = &customer
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	detail.Items, err = s.listSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}

	inst, err := scanInstalment(s.db.QueryRowContext(ctx, instalmentSelect+` WHERE sale_id = $1`, saleID))
	switch {
	case err == nil:
		detail.Instalment = &inst
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	unpaid, err := scanUnpaid(s.db.QueryRowContext(ctx, unpaidSelect+` WHERE sale_id = $1`, saleID))
	switch {
	case err == nil:
		detail.Unpaid = &unpaid
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	detail.Payments, err = s.ListInstalmentPayments(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID int64) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_item_id, sale_id, model, shop_id, quantity, selling_price, discount
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY sale_item_id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.Model, &item.ShopID, &item.Quantity, &item.SellingPrice, &item.Discount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSales(ctx context.Context, shopID *int64) ([]domain.SaleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.sale_id, s.total_payable, s.total_discount, s.payment_status, s.shop_id,
			s.date_of_selling, COALESCE(c.name, ''), COALESCE(c.phone_number, ''), s.sold_by
		FROM sales s
		LEFT JOIN customers c ON c.cnic = s.cnic
		WHERE ($1::bigint IS NULL OR s.shop_id = $1)
		ORDER BY s.date_of_selling DESC, s.sale_id DESC
	`, nullInt64(shopID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleSummary, 0, 64)
	for rows.Next() {
		var row domain.SaleSummary
		var status string
		if err := rows.Scan(&row.SaleID, &row.TotalPayable, &row.TotalDiscount, &status, &row.ShopID, &row.DateOfSelling, &row.CustomerName, &row.PhoneNumber, &row.SoldBy); err != nil {
			return nil, err
		}
		row.PaymentStatus = domain.PaymentStatus(status)
		row.DateOfSelling = row.DateOfSelling.UTC()
		sales = append(sales, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) SaleShopID(ctx context.Context, saleID int64) (int64, error) {
	var shopID int64
	err := s.db.QueryRowContext(ctx, `SELECT shop_id FROM sales WHERE sale_id = $1`, saleID).Scan(&shopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.NotFoundf("sale %d", saleID)
		}
		return 0, err
	}
	return shopID, nil
}

// ReverseSale returns every sold line to stock and deletes the sale with its
// dependents. Lines whose stock row no longer exists are reported with
// Restored=false instead of failing the reversal.
func (s *Store) ReverseSale(ctx context.Context, saleID int64) (*domain.SaleReversal, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := scanSale(pgTx.QueryRowContext(ctx, `
		SELECT sale_id, cnic, total_discount, total_payable, payment_status, date_of_selling, sold_by, shop_id
		FROM sales
		WHERE sale_id = $1
		FOR UPDATE
	`, saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("sale %d", saleID)
		}
		return nil, err
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT model, shop_id, quantity
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY sale_item_id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	restored := make([]domain.StockRestore, 0, 8)
	for itemRows.Next() {
		var line domain.StockRestore
		if err := itemRows.Scan(&line.Model, &line.ShopID, &line.Quantity); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		restored = append(restored, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for i, line := range restored {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE stock
			SET quantity = quantity + $1, updated_at = now()
			WHERE model = $2 AND shop_id = $3
		`, line.Quantity, line.Model, line.ShopID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		restored[i].Restored = affected > 0
	}

	for _, stmt := range []string{
		`DELETE FROM instalment_payments WHERE sale_id = $1`,
		`DELETE FROM instalments WHERE sale_id = $1`,
		`DELETE FROM sale_items WHERE sale_id = $1`,
		`DELETE FROM unpaid_sales WHERE sale_id = $1`,
		`DELETE FROM sales WHERE sale_id = $1`,
	} {
		if _, err := pgTx.ExecContext(ctx, stmt, saleID); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &domain.SaleReversal{Sale: sale, Restored: restored}, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var status string
	err := row.Scan(&sale.ID, &sale.CNIC, &sale.TotalDiscount, &sale.TotalPayable, &status, &sale.DateOfSelling, &sale.SoldBy, &sale.ShopID)
	sale.PaymentStatus = domain.PaymentStatus(status)
	sale.DateOfSelling = sale.DateOfSelling.UTC()
	return sale, err
}
