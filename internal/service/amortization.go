package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

// A schedule that runs out while more than this much principal is still
// owed gets one extra instalment instead of ending with a balance due.
var extraInstalmentThreshold = decimal.NewFromInt(10)

var hundred = decimal.NewFromInt(100)

// AddMonths moves t forward by months calendar months, clamping the day to
// the last day of the target month: Jan 31 + 1 is Feb 28 (or 29).
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + months
	year += total / 12
	idx := total % 12
	if idx < 0 {
		idx += 12
		year--
	}
	target := time.Month(idx + 1)
	if last := daysIn(year, target); day > last {
		day = last
	}
	return time.Date(year, target, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// BuildInstalmentPlan derives a new plan from the sale total and the
// client's plan inputs.
func BuildInstalmentPlan(totalPayable decimal.Decimal, in domain.InstalmentPlanInput, saleDate time.Time) (domain.Instalment, error) {
	if in.TotalInstalments < 1 {
		return domain.Instalment{}, store.Invalid("total_instalments", "at least one instalment is required")
	}
	if in.MarginPercentage.IsNegative() {
		return domain.Instalment{}, store.Invalid("margin_percentage", "margin must not be negative")
	}
	if in.DownPayment.IsNegative() {
		return domain.Instalment{}, store.Invalid("down_payment", "down payment must not be negative")
	}
	if err := checkCents("down_payment", in.DownPayment); err != nil {
		return domain.Instalment{}, err
	}

	bill := totalPayable.Mul(decimal.NewFromInt(1).Add(in.MarginPercentage.Div(hundred))).Round(2)
	loan := bill.Sub(in.DownPayment)
	if !loan.IsPositive() {
		return domain.Instalment{}, store.Invalid("down_payment", "down payment must be less than the total bill")
	}

	first := AddMonths(saleDate, 1)
	if raw := strings.TrimSpace(in.NextInstalmentDate); raw != "" {
		parsed, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			return domain.Instalment{}, store.Invalid("next_instalment_date", "expected YYYY-MM-DD")
		}
		first = parsed.UTC()
	}

	return domain.Instalment{
		TotalInstalments:      in.TotalInstalments,
		NextInstalmentDate:    &first,
		TotalInstalmentAmount: loan.Div(decimal.NewFromInt(int64(in.TotalInstalments))).Round(2),
		MarginPercentage:      in.MarginPercentage,
		TotalMarginAmount:     bill.Sub(totalPayable),
		DownPayment:           in.DownPayment,
		TotalLoan:             loan,
		RemainingBalance:      loan,
		OverdueStatus:         domain.OverdueStatusActive,
	}, nil
}

// ComputePayment applies one payment to the current plan state. It is pure:
// the caller persists the returned instalment and payment row together.
func ComputePayment(current domain.Instalment, amount decimal.Decimal, at time.Time) (store.InstalmentUpdate, domain.InstalmentPaymentResult, error) {
	if !amount.IsPositive() {
		return store.InstalmentUpdate{}, domain.InstalmentPaymentResult{}, store.ErrInvalidAmount
	}

	next := current
	payment := domain.InstalmentPayment{
		SaleID:      current.SaleID,
		CNIC:        current.CNIC,
		PaymentDate: at,
	}
	result := domain.InstalmentPaymentResult{InstalmentID: current.ID}

	newLoan := current.TotalLoan.Sub(amount)
	if !newLoan.IsPositive() {
		consumed := decimal.Max(current.TotalLoan, decimal.Zero)
		next.TotalLoan = decimal.Zero
		next.RemainingBalance = decimal.Zero
		next.TotalInstalments = 0
		next.TotalInstalmentAmount = decimal.Zero
		next.NextInstalmentDate = nil

		payment.PaymentAmount = consumed
		payment.RemainingBalance = decimal.Zero

		result.RemainingBalance = decimal.Zero
		result.InstallmentsCovered = current.TotalInstalments
		result.InstalmentAmount = decimal.Zero
		result.FullyPaid = true
		result.Overpayment = amount.Sub(consumed)
		return store.InstalmentUpdate{Instalment: next, Payment: payment}, result, nil
	}

	covered := 0
	if current.TotalInstalmentAmount.IsPositive() {
		q, _ := amount.QuoRem(current.TotalInstalmentAmount, 0)
		covered = int(q.IntPart())
	}
	covered = min(covered, max(current.TotalInstalments, 0))
	remaining := max(current.TotalInstalments-covered, 0)

	base := dateOnly(at)
	if current.NextInstalmentDate != nil {
		base = *current.NextInstalmentDate
	}
	due := AddMonths(base, covered)

	var perInstalment decimal.Decimal
	switch {
	case remaining > 0:
		perInstalment = newLoan.Div(decimal.NewFromInt(int64(remaining))).Round(2)
	case newLoan.GreaterThan(extraInstalmentThreshold):
		remaining = 1
		due = AddMonths(due, 1)
		perInstalment = newLoan
		result.ExtraInstalmentAdded = true
	default:
		// A residue at or under the threshold stays due on the current date.
		perInstalment = newLoan
	}

	next.TotalLoan = newLoan
	next.RemainingBalance = newLoan
	next.TotalInstalments = remaining
	next.TotalInstalmentAmount = perInstalment
	next.NextInstalmentDate = &due

	payment.PaymentAmount = amount
	payment.RemainingBalance = newLoan
	payment.NextInstalmentDate = &due

	dueText := due.Format(domain.DateLayout)
	result.RemainingBalance = newLoan
	result.NextDueDate = &dueText
	result.InstallmentsCovered = covered
	result.InstalmentAmount = perInstalment
	result.RemainingInstalments = remaining
	result.Overpayment = decimal.Zero
	return store.InstalmentUpdate{Instalment: next, Payment: payment}, result, nil
}

func (s *Service) PayInstalment(ctx context.Context, req domain.InstalmentPaymentRequest) (domain.InstalmentPaymentResult, error) {
	if req.InstalmentID < 1 {
		return domain.InstalmentPaymentResult{}, store.Invalid("instalment_id", "instalment_id is required")
	}
	if !req.PaymentAmount.IsPositive() {
		return domain.InstalmentPaymentResult{}, store.ErrInvalidAmount
	}
	if err := checkCents("payment_amount", req.PaymentAmount); err != nil {
		return domain.InstalmentPaymentResult{}, err
	}
	cnic := strings.TrimSpace(req.CNIC)

	var result domain.InstalmentPaymentResult
	update, err := s.repo.ApplyInstalmentPayment(ctx, req.InstalmentID, func(current domain.Instalment) (store.InstalmentUpdate, error) {
		if req.SaleID != 0 && req.SaleID != current.SaleID {
			return store.InstalmentUpdate{}, store.Invalid("sale_id", "sale does not match instalment")
		}
		if cnic != "" && cnic != current.CNIC {
			return store.InstalmentUpdate{}, store.Invalid("cnic", "customer does not match instalment")
		}
		update, computed, err := ComputePayment(current, req.PaymentAmount, s.now())
		if err != nil {
			return store.InstalmentUpdate{}, err
		}
		result = computed
		return update, nil
	})
	if err != nil {
		return domain.InstalmentPaymentResult{}, err
	}

	s.logAudit(ctx, nil, "instalment_payment", "instalment", fmt.Sprint(req.InstalmentID),
		fmt.Sprintf("sale=%d,amount=%s,remaining=%s,covered=%d,fully_paid=%t",
			update.Instalment.SaleID, req.PaymentAmount, result.RemainingBalance, result.InstallmentsCovered, result.FullyPaid))
	return result, nil
}

func (s *Service) GetInstalment(ctx context.Context, instalmentID int64) (domain.InstalmentDetail, error) {
	inst, err := s.repo.GetInstalment(ctx, instalmentID)
	if err != nil {
		return domain.InstalmentDetail{}, err
	}
	if err := s.authorizeSale(ctx, inst.SaleID); err != nil {
		return domain.InstalmentDetail{}, err
	}
	payments, err := s.repo.ListInstalmentPayments(ctx, inst.SaleID)
	if err != nil {
		return domain.InstalmentDetail{}, err
	}
	return domain.InstalmentDetail{Instalment: *inst, Payments: payments}, nil
}

func (s *Service) ListInstalments(ctx context.Context, shopID *int64) ([]domain.InstalmentView, error) {
	scoped, err := scopeShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListInstalments(ctx, scoped)
}

func (s *Service) authorizeSale(ctx context.Context, saleID int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.IsAdmin() {
		return nil
	}
	shopID, err := s.repo.SaleShopID(ctx, saleID)
	if err != nil {
		return err
	}
	return authorizeShop(ctx, shopID)
}
