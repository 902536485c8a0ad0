package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

func (a *API) handleStockAdd(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stock, err := a.service.AddStock(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "stock added", "stock": stock})
}

func (a *API) handleStockUpdate(w http.ResponseWriter, r *http.Request) {
	var req domain.StockUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.UpdateStock(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStockList(w http.ResponseWriter, r *http.Request) {
	shopID, err := optionalShopID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	stock, err := a.service.ListStock(r.Context(), shopID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": stock})
}

func (a *API) handleCheckStock(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	shopID, err := optionalShopID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if shopID == nil {
		writeServiceError(w, store.Invalid("shop_id", "shop_id is required"))
		return
	}

	item, err := a.service.CheckStock(r.Context(), model, *shopID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": item})
}

func (a *API) handleLedger(w http.ResponseWriter, r *http.Request) {
	shopID, err := optionalShopID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	ledger, err := a.service.ListLedger(r.Context(), shopID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ledger": ledger})
}

func (a *API) handleStockEditLog(w http.ResponseWriter, r *http.Request) {
	shopID, err := optionalShopID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 200, 1000)

	logs, err := a.service.ListStockEditLog(r.Context(), shopID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleDeleteLedger(w http.ResponseWriter, r *http.Request) {
	var req domain.LedgerDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	deleted, err := a.service.DeleteLedgerEntry(r.Context(), req.LedgerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "ledger entry deleted", "deleted_entry": deleted})
}

func (a *API) handleCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.Customer
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.FindOrCreateCustomer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleInvoiceBootstrap(w http.ResponseWriter, r *http.Request) {
	boot, err := a.service.InvoiceBootstrap(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boot)
}

// handleInvoiceSubmission records a sale. The Idempotency-Key header, when
// present, takes precedence over the body field.
func (a *API) handleInvoiceSubmission(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	receipt, err := a.service.SubmitSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if receipt.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	shopID, err := optionalShopID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	sales, err := a.service.ListSales(r.Context(), shopID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleSaleDetail(w http.ResponseWriter, r *http.Request) {
	saleID, err := idParam(r, "sale_id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	detail, err := a.service.GetSale(r.Context(), saleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleIDRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reversal, err := a.service.ReverseSale(r.Context(), req.SaleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "sale deleted and stock restored", "reversal": reversal})
}

func (a *API) handleInstalments(w http.ResponseWriter, r *http.Request) {
	shopID, err := optionalShopID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	instalments, err := a.service.ListInstalments(r.Context(), shopID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instalments": instalments})
}

func (a *API) handleInstalmentDetail(w http.ResponseWriter, r *http.Request) {
	instalmentID, err := idParam(r, "instalment_id")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	detail, err := a.service.GetInstalment(r.Context(), instalmentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handlePayInstalment(w http.ResponseWriter, r *http.Request) {
	var req domain.InstalmentPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.PayInstalment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleUnpaidSales(w http.ResponseWriter, r *http.Request) {
	shopID, err := optionalShopID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	unpaid, err := a.service.ListUnpaidSales(r.Context(), shopID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unpaid_sales": unpaid})
}

func (a *API) handleUnpaidSale(w http.ResponseWriter, r *http.Request) {
	unpaid, err := a.service.FindUnpaidSale(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unpaid_sale": unpaid})
}

func (a *API) handlePayUnpaidSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleIDRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	settled, err := a.service.SettleUnpaidSale(r.Context(), req.SaleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "unpaid sale settled", "unpaid_sale": settled})
}

func (a *API) handleShops(w http.ResponseWriter, r *http.Request) {
	shops, err := a.service.ListShops(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shops": shops})
}

func (a *API) handleAddShop(w http.ResponseWriter, r *http.Request) {
	var req domain.ShopCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shop, err := a.service.CreateShop(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shop": shop})
}

func (a *API) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	creation, err := ParseUserCreation(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), creation)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	a.service.RecordAudit(r.Context(), user.ShopID, "user_create", "user", strconv.FormatInt(user.ID, 10),
		"username="+user.Username+",role="+user.Role)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
