package postgres

import (
	"context"
	"database/sql"
	"errors"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

const instalmentSelect = `
	SELECT instalment_id, sale_id, cnic, total_instalments, next_instalment_date,
		total_instalment_amount, margin_percentage, total_margin_amount, down_payment,
		total_loan, remaining_balance, overdue_status, surety_cnic, surety_name,
		surety_phone_number, surety_address, surety_father_name, surety_job
	FROM instalments`

const unpaidSelect = `
	SELECT unpaid_id, sale_id, cnic, total_unpaid_amount, status, surety_cnic, surety_name,
		surety_phone_number, surety_address, surety_father_name, surety_job
	FROM unpaid_sales`

func (s *Store) GetInstalment(ctx context.Context, instalmentID int64) (*domain.Instalment, error) {
	inst, err := scanInstalment(s.db.QueryRowContext(ctx, instalmentSelect+` WHERE instalment_id = $1`, instalmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("instalment %d", instalmentID)
		}
		return nil, err
	}
	return &inst, nil
}

func (s *Store) ListInstalments(ctx context.Context, shopID *int64) ([]domain.InstalmentView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.instalment_id, i.sale_id, i.cnic, i.total_instalments, i.next_instalment_date,
			i.total_instalment_amount, i.margin_percentage, i.total_margin_amount, i.down_payment,
			i.total_loan, i.remaining_balance, i.overdue_status, i.surety_cnic, i.surety_name,
			i.surety_phone_number, i.surety_address, i.surety_father_name, i.surety_job,
			c.name, c.phone_number, s.shop_id
		FROM instalments i
		JOIN customers c ON c.cnic = i.cnic
		JOIN sales s ON s.sale_id = i.sale_id
		WHERE ($1::bigint IS NULL OR s.shop_id = $1)
		ORDER BY i.instalment_id ASC
	`, nullInt64(shopID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]domain.InstalmentView, 0, 64)
	for rows.Next() {
		var v domain.InstalmentView
		var next sql.NullTime
		if err := rows.Scan(
			&v.ID, &v.SaleID, &v.CNIC, &v.TotalInstalments, &next,
			&v.TotalInstalmentAmount, &v.MarginPercentage, &v.TotalMarginAmount, &v.DownPayment,
			&v.TotalLoan, &v.RemainingBalance, &v.OverdueStatus, &v.Surety.CNIC, &v.Surety.Name,
			&v.Surety.PhoneNumber, &v.Surety.Address, &v.Surety.FatherName, &v.Surety.Job,
			&v.CustomerName, &v.PhoneNumber, &v.ShopID,
		); err != nil {
			return nil, err
		}
		v.NextInstalmentDate = datePtr(next)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Store) ListInstalmentPayments(ctx context.Context, saleID int64) ([]domain.InstalmentPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_id, sale_id, cnic, payment_date, next_instalment_date, payment_amount, remaining_balance
		FROM instalment_payments
		WHERE sale_id = $1
		ORDER BY payment_date ASC, payment_id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.InstalmentPayment, 0, 16)
	for rows.Next() {
		var p domain.InstalmentPayment
		var next sql.NullTime
		if err := rows.Scan(&p.ID, &p.SaleID, &p.CNIC, &p.PaymentDate, &next, &p.PaymentAmount, &p.RemainingBalance); err != nil {
			return nil, err
		}
		p.PaymentDate = p.PaymentDate.UTC()
		p.NextInstalmentDate = datePtr(next)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

// ApplyInstalmentPayment holds the instalment row FOR UPDATE while apply
// computes the new state, so payments against one loan are serialized.
func (s *Store) ApplyInstalmentPayment(ctx context.Context, instalmentID int64, apply store.PaymentFunc) (*store.InstalmentUpdate, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	current, err := scanInstalment(pgTx.QueryRowContext(ctx, instalmentSelect+` WHERE instalment_id = $1 FOR UPDATE`, instalmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("instalment %d", instalmentID)
		}
		return nil, err
	}

	update, err := apply(current)
	if err != nil {
		return nil, err
	}
	update.Instalment.ID = current.ID
	update.Instalment.SaleID = current.SaleID
	update.Payment.SaleID = current.SaleID

	next := update.Instalment
	_, err = pgTx.ExecContext(ctx, `
		UPDATE instalments
		SET total_instalments = $2, next_instalment_date = $3, total_instalment_amount = $4,
			total_loan = $5, remaining_balance = $6
		WHERE instalment_id = $1
	`, next.ID, next.TotalInstalments, nullDate(next.NextInstalmentDate), next.TotalInstalmentAmount, next.TotalLoan, next.RemainingBalance)
	if err != nil {
		return nil, err
	}

	p := update.Payment
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO instalment_payments (sale_id, cnic, payment_date, next_instalment_date, payment_amount, remaining_balance)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING payment_id
	`, p.SaleID, p.CNIC, p.PaymentDate, nullDate(p.NextInstalmentDate), p.PaymentAmount, p.RemainingBalance).Scan(&update.Payment.ID)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &update, nil
}

// FindUnpaidSale matches by sale id or customer CNIC and returns the most
// recent sale when several match.
func (s *Store) FindUnpaidSale(ctx context.Context, saleID *int64, cnic string) (*domain.UnpaidSale, error) {
	unpaid, err := scanUnpaid(s.db.QueryRowContext(ctx, unpaidSelect+`
		WHERE ($1::bigint IS NOT NULL AND sale_id = $1) OR ($2 <> '' AND cnic = $2)
		ORDER BY sale_id DESC
		LIMIT 1
	`, nullInt64(saleID), cnic))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("unpaid sale")
		}
		return nil, err
	}
	return &unpaid, nil
}

func (s *Store) ListUnpaidSales(ctx context.Context, shopID *int64) ([]domain.UnpaidSaleView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.unpaid_id, u.sale_id, u.cnic, u.total_unpaid_amount, u.status, u.surety_cnic, u.surety_name,
			u.surety_phone_number, u.surety_address, u.surety_father_name, u.surety_job,
			c.name, c.phone_number, s.shop_id
		FROM unpaid_sales u
		JOIN customers c ON c.cnic = u.cnic
		JOIN sales s ON s.sale_id = u.sale_id
		WHERE ($1::bigint IS NULL OR s.shop_id = $1)
		ORDER BY u.unpaid_id ASC
	`, nullInt64(shopID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]domain.UnpaidSaleView, 0, 32)
	for rows.Next() {
		var v domain.UnpaidSaleView
		if err := rows.Scan(
			&v.ID, &v.SaleID, &v.CNIC, &v.TotalUnpaidAmount, &v.Status, &v.Surety.CNIC, &v.Surety.Name,
			&v.Surety.PhoneNumber, &v.Surety.Address, &v.Surety.FatherName, &v.Surety.Job,
			&v.CustomerName, &v.PhoneNumber, &v.ShopID,
		); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Store) SettleUnpaidSale(ctx context.Context, saleID int64) (*domain.UnpaidSale, error) {
	unpaid, err := scanUnpaid(s.db.QueryRowContext(ctx, `
		UPDATE unpaid_sales
		SET total_unpaid_amount = 0, status = $2
		WHERE sale_id = $1
		RETURNING unpaid_id, sale_id, cnic, total_unpaid_amount, status, surety_cnic, surety_name,
			surety_phone_number, surety_address, surety_father_name, surety_job
	`, saleID, domain.UnpaidStatusSettled))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("unpaid sale %d", saleID)
		}
		return nil, err
	}
	return &unpaid, nil
}

func scanInstalment(row rowScanner) (domain.Instalment, error) {
	var inst domain.Instalment
	var next sql.NullTime
	err := row.Scan(
		&inst.ID, &inst.SaleID, &inst.CNIC, &inst.TotalInstalments, &next,
		&inst.TotalInstalmentAmount, &inst.MarginPercentage, &inst.TotalMarginAmount, &inst.DownPayment,
		&inst.TotalLoan, &inst.RemainingBalance, &inst.OverdueStatus, &inst.Surety.CNIC, &inst.Surety.Name,
		&inst.Surety.PhoneNumber, &inst.Surety.Address, &inst.Surety.FatherName, &inst.Surety.Job,
	)
	inst.NextInstalmentDate = datePtr(next)
	return inst, err
}

func scanUnpaid(row rowScanner) (domain.UnpaidSale, error) {
	var unpaid domain.UnpaidSale
	err := row.Scan(
		&unpaid.ID, &unpaid.SaleID, &unpaid.CNIC, &unpaid.TotalUnpaidAmount, &unpaid.Status,
		&unpaid.Surety.CNIC, &unpaid.Surety.Name, &unpaid.Surety.PhoneNumber, &unpaid.Surety.Address,
		&unpaid.Surety.FatherName, &unpaid.Surety.Job,
	)
	return unpaid, err
}
