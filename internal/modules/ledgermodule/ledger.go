package ledgermodule

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/logger"
)

// Ledger persists payments and withdrawals and maintains per-creator
// balances. Every mutation runs inside the caller's transaction so balance
// invariants hold at each commit boundary; rows being transitioned are
// locked with SELECT ... FOR UPDATE where the dialect supports it.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a ledger over the given database handle.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// DB exposes the underlying handle for callers opening transactions.
func (l *Ledger) DB() *gorm.DB {
	return l.db
}

// AdvanceDetails carries the gateway outcome recorded with a transition.
type AdvanceDetails struct {
	GatewayTxID   string
	FailureReason string
}

// lockForUpdate applies a row lock on dialects that support it. SQLite
// serialises writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// RecordPayment inserts a new payment in the pending state.
func (l *Ledger) RecordPayment(tx *gorm.DB, p *database.Payment) error {
	p.State = database.PaymentPending
	if err := tx.Create(p).Error; err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	logger.Info("Payment recorded: %s kind=%s amount=%s %s", p.ID, p.Kind, p.Amount, p.Currency)
	return nil
}

// AdvancePayment transitions a payment to newState. Calling with the current
// state is a no-op; leaving a terminal state or moving back to pending is
// rejected. The row is locked for the duration of the transaction.
func (l *Ledger) AdvancePayment(tx *gorm.DB, paymentID string, newState database.PaymentState, details AdvanceDetails) (*database.Payment, error) {
	var payment database.Payment
	if err := lockForUpdate(tx).First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment %s", apperr.ErrNotFound, paymentID)
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}

	if payment.State == newState {
		return &payment, nil
	}
	if payment.State.Terminal() {
		return nil, fmt.Errorf("%w: payment %s is already %s", apperr.ErrInvalidStateTransition, paymentID, payment.State)
	}
	if newState == database.PaymentPending {
		return nil, fmt.Errorf("%w: payment %s cannot return to pending", apperr.ErrInvalidStateTransition, paymentID)
	}

	updates := map[string]interface{}{"state": newState}
	if details.GatewayTxID != "" {
		updates["gateway_tx_id"] = details.GatewayTxID
	}
	if details.FailureReason != "" {
		updates["failure_reason"] = details.FailureReason
	}

	if err := tx.Model(&payment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to advance payment %s: %w", paymentID, err)
	}

	payment.State = newState
	if details.GatewayTxID != "" {
		payment.GatewayTxID = details.GatewayTxID
	}
	if details.FailureReason != "" {
		payment.FailureReason = details.FailureReason
	}
	logger.Info("Payment %s advanced to %s", paymentID, newState)
	return &payment, nil
}

// CreditCreator credits the payment's creator share to the owner's pending
// balance and total earnings. The credit is guarded by the payment's
// ledger_applied flag flipped in the same transaction, so replays are no-ops.
func (l *Ledger) CreditCreator(tx *gorm.DB, payment *database.Payment) error {
	if payment.OwnerID == nil || payment.CreatorShare.IsZero() {
		return nil
	}

	res := tx.Model(&database.Payment{}).
		Where("id = ? AND ledger_applied = ?", payment.ID, false).
		Update("ledger_applied", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark ledger applied for payment %s: %w", payment.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Another invocation already credited this payment.
		return nil
	}

	res = tx.Model(&database.User{}).Where("id = ?", *payment.OwnerID).Updates(map[string]interface{}{
		"balance_pending":      gorm.Expr("balance_pending + ?", payment.CreatorShare),
		"balance_total_earned": gorm.Expr("balance_total_earned + ?", payment.CreatorShare),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to credit creator %s: %w", *payment.OwnerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: creator %s", apperr.ErrNotFound, *payment.OwnerID)
	}

	logger.Info("Creator %s credited %s for payment %s", *payment.OwnerID, payment.CreatorShare, payment.ID)
	return nil
}

// ReserveForWithdrawal moves amount from the creator's pending balance into
// processing, failing when pending cannot cover it.
func (l *Ledger) ReserveForWithdrawal(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	var user database.User
	if err := lockForUpdate(tx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %s", apperr.ErrNotFound, userID)
		}
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	if user.Balances.Pending.LessThan(amount) {
		return fmt.Errorf("%w: pending %s < requested %s", apperr.ErrInsufficientBalance, user.Balances.Pending, amount)
	}

	return l.moveBalance(tx, userID, map[string]interface{}{
		"balance_pending":    gorm.Expr("balance_pending - ?", amount),
		"balance_processing": gorm.Expr("balance_processing + ?", amount),
	})
}

// CompleteWithdrawal moves amount from processing into the paid-out bucket
// once the disbursement settles.
func (l *Ledger) CompleteWithdrawal(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	return l.moveBalance(tx, userID, map[string]interface{}{
		"balance_processing": gorm.Expr("balance_processing - ?", amount),
		"balance_available":  gorm.Expr("balance_available + ?", amount),
		"balance_withdrawn":  gorm.Expr("balance_withdrawn + ?", amount),
	})
}

// RejectWithdrawal returns a reserved amount from processing to pending.
func (l *Ledger) RejectWithdrawal(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	return l.moveBalance(tx, userID, map[string]interface{}{
		"balance_processing": gorm.Expr("balance_processing - ?", amount),
		"balance_pending":    gorm.Expr("balance_pending + ?", amount),
	})
}

func (l *Ledger) moveBalance(tx *gorm.DB, userID string, updates map[string]interface{}) error {
	res := tx.Model(&database.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to move balance for user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, userID)
	}
	return nil
}

// PaymentByID loads a payment.
func (l *Ledger) PaymentByID(paymentID string) (*database.Payment, error) {
	var payment database.Payment
	if err := l.db.First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment %s", apperr.ErrNotFound, paymentID)
		}
		return nil, err
	}
	return &payment, nil
}

// PaymentByReference loads a payment by its external gateway reference.
func (l *Ledger) PaymentByReference(referenceID string) (*database.Payment, error) {
	var payment database.Payment
	if err := l.db.First(&payment, "reference_id = ?", referenceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment reference %s", apperr.ErrNotFound, referenceID)
		}
		return nil, err
	}
	return &payment, nil
}

// WithdrawalByID loads a withdrawal.
func (l *Ledger) WithdrawalByID(withdrawalID string) (*database.Withdrawal, error) {
	var w database.Withdrawal
	if err := l.db.First(&w, "id = ?", withdrawalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: withdrawal %s", apperr.ErrNotFound, withdrawalID)
		}
		return nil, err
	}
	return &w, nil
}

// ListWithdrawals returns withdrawals, newest first, optionally filtered by
// user and state.
func (l *Ledger) ListWithdrawals(userID string, state database.WithdrawalState, limit int) ([]database.Withdrawal, error) {
	q := l.db.Model(&database.Withdrawal{}).Order("created_at DESC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if state != "" {
		q = q.Where("state = ?", state)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var withdrawals []database.Withdrawal
	if err := q.Find(&withdrawals).Error; err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return withdrawals, nil
}

// FinanceReport is the creator-facing summary of earnings and payouts.
type FinanceReport struct {
	UserID            string                `json:"userId"`
	Balances          database.Balances     `json:"balances"`
	TotalPaidOut      decimal.Decimal       `json:"totalPaidOut"`
	PendingWithdrawal decimal.Decimal       `json:"pendingWithdrawal"`
	Withdrawals       []database.Withdrawal `json:"withdrawals"`
	GeneratedAt       time.Time             `json:"generatedAt"`
}

// Finance builds the filmmaker finance report.
func (l *Ledger) Finance(userID string) (*FinanceReport, error) {
	var user database.User
	if err := l.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, userID)
		}
		return nil, err
	}

	withdrawals, err := l.ListWithdrawals(userID, "", 100)
	if err != nil {
		return nil, err
	}

	paidOut := decimal.Zero
	reserved := decimal.Zero
	for _, w := range withdrawals {
		if w.Kind != database.WithdrawalManual {
			continue
		}
		switch w.State {
		case database.WithdrawalCompleted:
			paidOut = paidOut.Add(w.Amount)
		case database.WithdrawalPending, database.WithdrawalProcessing:
			reserved = reserved.Add(w.Amount)
		}
	}

	return &FinanceReport{
		UserID:            userID,
		Balances:          user.Balances,
		TotalPaidOut:      paidOut,
		PendingWithdrawal: reserved,
		Withdrawals:       withdrawals,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}
