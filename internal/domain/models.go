package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers; decimal defaults to quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

type PaymentStatus string

const (
	PaymentPaid        PaymentStatus = "Paid"
	PaymentInstalments PaymentStatus = "Instalments"
	PaymentUnpaid      PaymentStatus = "Unpaid"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPaid, PaymentInstalments, PaymentUnpaid:
		return true
	}
	return false
}

const (
	StockEventAdded   = "Added"
	StockEventUpdated = "Updated"
)

const (
	OverdueStatusActive = 1
	UnpaidStatusOpen    = 1
	UnpaidStatusSettled = 0
	DateLayout          = "2006-01-02"
)

type Shop struct {
	ID       int64  `json:"shop_id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type ShopCreateRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type Stock struct {
	Model           string          `json:"model"`
	ShopID          int64           `json:"shop_id"`
	Brand           string          `json:"brand"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	PurchasingPrice decimal.Decimal `json:"purchasing_price"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
}

// StockView is a stock row joined with its shop name.
type StockView struct {
	Stock
	ShopName string `json:"shop_name"`
}

type StockAddRequest struct {
	Model           string          `json:"model"`
	ShopID          int64           `json:"shop_id"`
	Brand           string          `json:"brand"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	PurchasingPrice decimal.Decimal `json:"purchasing_price"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
}

// StockAdjustment carries a restock for one (model, shop_id). Quantity is a
// delta and may be negative.
type StockAdjustment struct {
	Model           string          `json:"model"`
	ShopID          int64           `json:"shop_id"`
	Brand           string          `json:"brand"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	PurchasingPrice decimal.Decimal `json:"purchasing_price"`
	SellingPrice    decimal.Decimal `json:"selling_price"`
}

type StockUpdateRequest struct {
	Stock []StockAdjustment `json:"stock"`
}

type StockUpdateResult struct {
	Model            string `json:"model"`
	ShopID           int64  `json:"shop_id"`
	Stock            *Stock `json:"stock,omitempty"`
	PreviousQuantity int    `json:"previous_quantity"`
	Message          string `json:"message,omitempty"`
}

type StockUpdateResponse struct {
	UpdatedStock []StockUpdateResult `json:"updated_stock"`
}

// StockLedgerEntry is one purchasing-ledger row. Quantity is the amount
// involved in the event, not a running total.
type StockLedgerEntry struct {
	ID              int64           `json:"ledger_id"`
	Model           string          `json:"model"`
	ShopID          int64           `json:"shop_id"`
	Brand           string          `json:"brand"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	PurchasingPrice decimal.Decimal `json:"purchasing_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	CreatedAt       time.Time       `json:"created_at"`
}

type StockEditLog struct {
	ID               int64     `json:"log_id"`
	Model            string    `json:"model"`
	ShopID           int64     `json:"shop_id"`
	Action           string    `json:"action"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
	EditedBy         string    `json:"edited_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// StockChange is what the store records for one add or restock.
type StockChange struct {
	Stock            Stock
	PreviousQuantity int
	Ledger           *StockLedgerEntry
	EditLog          StockEditLog
}

type Customer struct {
	CNIC        string    `json:"cnic"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Address     string    `json:"address"`
	FatherName  string    `json:"father_name"`
	Occupation  string    `json:"occupation"`
	CreatedAt   time.Time `json:"created_at"`
}

type Surety struct {
	CNIC        string `json:"surety_cnic"`
	Name        string `json:"surety_name"`
	PhoneNumber string `json:"surety_phone_number"`
	Address     string `json:"surety_address"`
	FatherName  string `json:"surety_father_name"`
	Job         string `json:"surety_job"`
}

func (s Surety) Empty() bool {
	return s.CNIC == "" && s.Name == "" && s.PhoneNumber == ""
}

type Sale struct {
	ID            int64           `json:"sale_id"`
	CNIC          string          `json:"cnic"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	DateOfSelling time.Time       `json:"date_of_selling"`
	SoldBy        string          `json:"sold_by"`
	ShopID        int64           `json:"shop_id"`
}

type SaleItem struct {
	ID           int64           `json:"sale_item_id"`
	SaleID       int64           `json:"sale_id"`
	Model        string          `json:"model"`
	ShopID       int64           `json:"shop_id"`
	Quantity     int             `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Discount     decimal.Decimal `json:"discount"`
}

type Instalment struct {
	ID                    int64           `json:"instalment_id"`
	SaleID                int64           `json:"sale_id"`
	CNIC                  string          `json:"cnic"`
	TotalInstalments      int             `json:"total_instalments"`
	NextInstalmentDate    *time.Time      `json:"next_instalment_date"`
	TotalInstalmentAmount decimal.Decimal `json:"total_instalment_amount"`
	MarginPercentage      decimal.Decimal `json:"margin_percentage"`
	TotalMarginAmount     decimal.Decimal `json:"total_margin_amount"`
	DownPayment           decimal.Decimal `json:"down_payment"`
	TotalLoan             decimal.Decimal `json:"total_loan"`
	RemainingBalance      decimal.Decimal `json:"remaining_balance"`
	OverdueStatus         int             `json:"overdue_status"`
	Surety
}

// InstalmentView is an instalment joined with its customer.
type InstalmentView struct {
	Instalment
	CustomerName string `json:"name"`
	PhoneNumber  string `json:"phone_number"`
	ShopID       int64  `json:"shop_id"`
}

type InstalmentPayment struct {
	ID                 int64           `json:"payment_id"`
	SaleID             int64           `json:"sale_id"`
	CNIC               string          `json:"cnic"`
	PaymentDate        time.Time       `json:"payment_date"`
	NextInstalmentDate *time.Time      `json:"next_instalment_date"`
	PaymentAmount      decimal.Decimal `json:"payment_amount"`
	RemainingBalance   decimal.Decimal `json:"remaining_balance"`
}

type UnpaidSale struct {
	ID                int64           `json:"unpaid_id"`
	SaleID            int64           `json:"sale_id"`
	CNIC              string          `json:"cnic"`
	TotalUnpaidAmount decimal.Decimal `json:"total_unpaid_amount"`
	Status            int             `json:"status"`
	Surety
}

type UnpaidSaleView struct {
	UnpaidSale
	CustomerName string `json:"name"`
	PhoneNumber  string `json:"phone_number"`
	ShopID       int64  `json:"shop_id"`
}

type SaleItemInput struct {
	Model        string          `json:"model"`
	ShopID       int64           `json:"shop_id"`
	Quantity     int             `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Discount     decimal.Decimal `json:"discount"`
}

type InstalmentPlanInput struct {
	TotalInstalments   int             `json:"total_instalments"`
	MarginPercentage   decimal.Decimal `json:"margin_percentage"`
	DownPayment        decimal.Decimal `json:"down_payment"`
	NextInstalmentDate string          `json:"next_instalment_date,omitempty"`
}

type CustomerInput struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	FatherName  string `json:"father_name"`
	Occupation  string `json:"occupation"`
}

type SaleSubmitRequest struct {
	CNIC           string               `json:"cnic"`
	Customer       *CustomerInput       `json:"customer,omitempty"`
	Items          []SaleItemInput      `json:"items"`
	PaymentStatus  PaymentStatus        `json:"payment_status"`
	Installments   *InstalmentPlanInput `json:"installments,omitempty"`
	SoldBy         string               `json:"sold_by"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	Surety
}

// SaleDraft is a fully computed sale handed to the store for one atomic write.
type SaleDraft struct {
	Sale       Sale
	Customer   *Customer
	Items      []SaleItem
	Instalment *Instalment
	Unpaid     *UnpaidSale
}

type SaleReceipt struct {
	Message    string          `json:"message"`
	SaleID     int64           `json:"sale_id"`
	ShopID     int64           `json:"shop_id"`
	Total      decimal.Decimal `json:"total_payable"`
	Discount   decimal.Decimal `json:"total_discount"`
	Status     PaymentStatus   `json:"payment_status"`
	Instalment *Instalment     `json:"instalment,omitempty"`
	Duplicate  bool            `json:"duplicate"`
}

type SaleSummary struct {
	SaleID        int64           `json:"sale_id"`
	TotalPayable  decimal.Decimal `json:"total_payable"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	ShopID        int64           `json:"shop_id"`
	DateOfSelling time.Time       `json:"date_of_selling"`
	CustomerName  string          `json:"customer_name"`
	PhoneNumber   string          `json:"phone_number"`
	SoldBy        string          `json:"sold_by"`
}

type SaleDetail struct {
	Sale       Sale                `json:"sale"`
	Customer   *Customer           `json:"customer"`
	Items      []SaleItem          `json:"sale_items"`
	Instalment *Instalment         `json:"installment"`
	Unpaid     *UnpaidSale         `json:"unpaid"`
	Payments   []InstalmentPayment `json:"payments"`
}

type StockRestore struct {
	Model    string `json:"model"`
	ShopID   int64  `json:"shop_id"`
	Quantity int    `json:"quantity"`
	Restored bool   `json:"restored"`
}

type SaleReversal struct {
	Sale     Sale           `json:"sale"`
	Restored []StockRestore `json:"restored"`
}

type SaleIDRequest struct {
	SaleID int64 `json:"sale_id"`
}

type LedgerDeleteRequest struct {
	LedgerID int64 `json:"ledger_id"`
}

type InstalmentPaymentRequest struct {
	InstalmentID  int64           `json:"instalment_id"`
	SaleID        int64           `json:"sale_id"`
	CNIC          string          `json:"cnic"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
}

type InstalmentPaymentResult struct {
	InstalmentID         int64           `json:"instalment_id"`
	RemainingBalance     decimal.Decimal `json:"remaining_balance"`
	NextDueDate          *string         `json:"next_due_date"`
	InstallmentsCovered  int             `json:"installments_covered"`
	InstalmentAmount     decimal.Decimal `json:"instalment_amount"`
	RemainingInstalments int             `json:"remaining_instalments"`
	FullyPaid            bool            `json:"fully_paid"`
	Overpayment          decimal.Decimal `json:"overpayment"`
	ExtraInstalmentAdded bool            `json:"extra_instalment_added"`
}

type InstalmentDetail struct {
	Instalment Instalment          `json:"instalment"`
	Payments   []InstalmentPayment `json:"payments"`
}

type InvoiceBootstrap struct {
	Stock     []Stock    `json:"stock"`
	Customers []Customer `json:"customers"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"token"`
	Role        string `json:"role"`
	ShopID      *int64 `json:"shop_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the decoded bearer-token identity. ShopID is set for managers.
type Actor struct {
	ID       int64
	Username string
	Role     string
	ShopID   *int64
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type UserCreateRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	ShopID   *int64 `json:"shop_id,omitempty"`
}

// UserCreation is either an AdminCreation or a ManagerCreation.
type UserCreation interface {
	Credentials() UserCredentials
	userCreation()
}

type UserCredentials struct {
	Name     string
	Username string
	Password string
}

type AdminCreation struct {
	UserCredentials
}

type ManagerCreation struct {
	UserCredentials
	ShopID int64
}

func (c AdminCreation) Credentials() UserCredentials { return c.UserCredentials }

func (c ManagerCreation) Credentials() UserCredentials { return c.UserCredentials }

func (AdminCreation) userCreation() {}

func (ManagerCreation) userCreation() {}

// UserAccount is the persistence model for credentials. Password holds a
// bcrypt hash once stored.
type UserAccount struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	ShopID    *int64    `json:"shop_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ShopID        *int64    `json:"shop_id,omitempty"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
