package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

func (s *Store) ListStock(ctx context.Context, shopID *int64) ([]domain.Stock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, shop_id, brand, name, quantity, purchasing_price, selling_price
		FROM stock
		WHERE ($1::bigint IS NULL OR shop_id = $1)
		ORDER BY shop_id, model
	`, nullInt64(shopID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Stock, 0, 128)
	for rows.Next() {
		item, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListStockWithShop(ctx context.Context, shopID *int64) ([]domain.StockView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.model, st.shop_id, st.brand, st.name, st.quantity, st.purchasing_price, st.selling_price, sh.name
		FROM stock st
		JOIN shops sh ON sh.shop_id = st.shop_id
		WHERE ($1::bigint IS NULL OR st.shop_id = $1)
		ORDER BY st.shop_id, st.model
	`, nullInt64(shopID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockView, 0, 128)
	for rows.Next() {
		var v domain.StockView
		if err := rows.Scan(&v.Model, &v.ShopID, &v.Brand, &v.Name, &v.Quantity, &v.PurchasingPrice, &v.SellingPrice, &v.ShopName); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetStock(ctx context.Context, model string, shopID int64) (*domain.Stock, error) {
	item, err := scanStock(s.db.QueryRowContext(ctx, `
		SELECT model, shop_id, brand, name, quantity, purchasing_price, selling_price
		FROM stock
		WHERE model = $1 AND shop_id = $2
	`, model, shopID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("stock %s in shop %d", model, shopID)
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) AddStock(ctx context.Context, item domain.Stock, editedBy string, at time.Time) (*domain.StockChange, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock (model, shop_id, brand, name, quantity, purchasing_price, selling_price, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, item.Model, item.ShopID, item.Brand, item.Name, item.Quantity, item.PurchasingPrice, item.SellingPrice, at)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Conflictf("stock item %s already exists in shop %d", item.Model, item.ShopID)
		}
		if isForeignKeyViolation(err) {
			return nil, store.NotFoundf("shop %d", item.ShopID)
		}
		return nil, err
	}

	ledger, err := insertLedger(ctx, tx, domain.StockLedgerEntry{
		Model:           item.Model,
		ShopID:          item.ShopID,
		Brand:           item.Brand,
		Name:            item.Name,
		Quantity:        item.Quantity,
		PurchasingPrice: item.PurchasingPrice,
		CreatedAt:       at,
	})
	if err != nil {
		return nil, err
	}

	editLog, err := insertEditLog(ctx, tx, domain.StockEditLog{
		Model:            item.Model,
		ShopID:           item.ShopID,
		Action:           domain.StockEventAdded,
		PreviousQuantity: 0,
		NewQuantity:      item.Quantity,
		EditedBy:         editedBy,
		CreatedAt:        at,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &domain.StockChange{Stock: item, PreviousQuantity: 0, Ledger: ledger, EditLog: *editLog}, nil
}

func (s *Store) Restock(ctx context.Context, adj domain.StockAdjustment, editedBy string, at time.Time) (*domain.StockChange, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var previous int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity
		FROM stock
		WHERE model = $1 AND shop_id = $2
		FOR UPDATE
	`, adj.Model, adj.ShopID).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("stock %s in shop %d", adj.Model, adj.ShopID)
		}
		return nil, err
	}

	next := previous + adj.Quantity
	if next < 0 {
		return nil, store.Invalid("quantity", "restock would make quantity negative")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stock
		SET brand = $3, name = $4, quantity = $5, purchasing_price = $6, selling_price = $7, updated_at = $8
		WHERE model = $1 AND shop_id = $2
	`, adj.Model, adj.ShopID, adj.Brand, adj.Name, next, adj.PurchasingPrice, adj.SellingPrice, at)
	if err != nil {
		return nil, err
	}

	change := &domain.StockChange{
		Stock: domain.Stock{
			Model:           adj.Model,
			ShopID:          adj.ShopID,
			Brand:           adj.Brand,
			Name:            adj.Name,
			Quantity:        next,
			PurchasingPrice: adj.PurchasingPrice,
			SellingPrice:    adj.SellingPrice,
		},
		PreviousQuantity: previous,
	}

	editLog, err := insertEditLog(ctx, tx, domain.StockEditLog{
		Model:            adj.Model,
		ShopID:           adj.ShopID,
		Action:           domain.StockEventUpdated,
		PreviousQuantity: previous,
		NewQuantity:      next,
		EditedBy:         editedBy,
		CreatedAt:        at,
	})
	if err != nil {
		return nil, err
	}
	change.EditLog = *editLog

	if adj.Quantity != 0 {
		change.Ledger, err = insertLedger(ctx, tx, domain.StockLedgerEntry{
			Model:           adj.Model,
			ShopID:          adj.ShopID,
			Brand:           adj.Brand,
			Name:            adj.Name,
			Quantity:        adj.Quantity,
			PurchasingPrice: adj.PurchasingPrice,
			CreatedAt:       at,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return change, nil
}

func (s *Store) ListLedger(ctx context.Context, shopID *int64) ([]domain.StockLedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ledger_id, model, shop_id, brand, name, quantity, purchasing_price, total_price, created_at
		FROM stock_ledger
		WHERE ($1::bigint IS NULL OR shop_id = $1)
		ORDER BY created_at DESC, ledger_id DESC
	`, nullInt64(shopID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockLedgerEntry, 0, 128)
	for rows.Next() {
		entry, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteLedgerEntry removes only the ledger row; stock quantities are left
// as they are.
func (s *Store) DeleteLedgerEntry(ctx context.Context, ledgerID int64) (*domain.StockLedgerEntry, error) {
	entry, err := scanLedger(s.db.QueryRowContext(ctx, `
		DELETE FROM stock_ledger
		WHERE ledger_id = $1
		RETURNING ledger_id, model, shop_id, brand, name, quantity, purchasing_price, total_price, created_at
	`, ledgerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFoundf("ledger entry %d", ledgerID)
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListStockEditLog(ctx context.Context, shopID *int64, limit int) ([]domain.StockEditLog, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, model, shop_id, action, previous_quantity, new_quantity, edited_by, created_at
		FROM stock_edit_log
		WHERE ($1::bigint IS NULL OR shop_id = $1)
		ORDER BY created_at DESC, log_id DESC
		LIMIT $2
	`, nullInt64(shopID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.StockEditLog, 0, limit)
	for rows.Next() {
		var entry domain.StockEditLog
		if err := rows.Scan(&entry.ID, &entry.Model, &entry.ShopID, &entry.Action, &entry.PreviousQuantity, &entry.NewQuantity, &entry.EditedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, entry domain.StockLedgerEntry) (*domain.StockLedgerEntry, error) {
	entry.TotalPrice = entry.PurchasingPrice.Mul(decimal.NewFromInt(int64(entry.Quantity)))
	err := tx.QueryRowContext(ctx, `
		INSERT INTO stock_ledger (model, shop_id, brand, name, quantity, purchasing_price, total_price, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING ledger_id
	`, entry.Model, entry.ShopID, entry.Brand, entry.Name, entry.Quantity, entry.PurchasingPrice, entry.TotalPrice, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func insertEditLog(ctx context.Context, tx *sql.Tx, entry domain.StockEditLog) (*domain.StockEditLog, error) {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO stock_edit_log (model, shop_id, action, previous_quantity, new_quantity, edited_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING log_id
	`, entry.Model, entry.ShopID, entry.Action, entry.PreviousQuantity, entry.NewQuantity, entry.EditedBy, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func scanStock(row rowScanner) (domain.Stock, error) {
	var item domain.Stock
	err := row.Scan(&item.Model, &item.ShopID, &item.Brand, &item.Name, &item.Quantity, &item.PurchasingPrice, &item.SellingPrice)
	return item, err
}

func scanLedger(row rowScanner) (domain.StockLedgerEntry, error) {
	var entry domain.StockLedgerEntry
	err := row.Scan(&entry.ID, &entry.Model, &entry.ShopID, &entry.Brand, &entry.Name, &entry.Quantity, &entry.PurchasingPrice, &entry.TotalPrice, &entry.CreatedAt)
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, err
}
