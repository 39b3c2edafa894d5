package withdrawalmodule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/config"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/gateway"
	"github.com/cinemarwa/backend/internal/logger"
	"github.com/cinemarwa/backend/internal/modules/ledgermodule"
	"github.com/cinemarwa/backend/internal/money"
	"github.com/cinemarwa/backend/internal/outbox"
)

// Service runs the manual withdrawal lifecycle: a filmmaker requests a
// payout from their pending balance, an administrator approves it, the
// disbursing gateway sends the money, and the row completes or is rejected.
// The balance moves in lockstep with the row state inside one transaction
// per transition.
type Service struct {
	db        *gorm.DB
	cfg       *config.Config
	ledger    *ledgermodule.Ledger
	disburser gateway.Disburser
}

// NewService wires a withdrawal service.
func NewService(db *gorm.DB, cfg *config.Config, disburser gateway.Disburser) *Service {
	return &Service{
		db:        db,
		cfg:       cfg,
		ledger:    ledgermodule.NewLedger(db),
		disburser: disburser,
	}
}

// WithdrawalRequest is the body of a filmmaker payout request.
type WithdrawalRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination,omitempty"`
}

// Request reserves the amount from the filmmaker's pending balance and
// creates the pending withdrawal row. Requests below the configured minimum
// or above the pending balance are rejected without touching anything.
func (s *Service) Request(filmmakerID string, req WithdrawalRequest) (*database.Withdrawal, error) {
	amount, err := money.Parse(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if amount.Currency != money.RWF {
		return nil, fmt.Errorf("%w: withdrawals settle in RWF", apperr.ErrValidation)
	}
	minimum := decimal.NewFromInt(s.cfg.Payments.MinimumWithdrawal)
	if amount.Amount.LessThan(minimum) {
		return nil, fmt.Errorf("%w: minimum withdrawal is %s RWF", apperr.ErrValidation, minimum)
	}

	var user database.User
	if err := s.db.First(&user, "id = ?", filmmakerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, filmmakerID)
		}
		return nil, err
	}

	destination := req.Destination
	if destination == "" {
		destination = user.PayoutPhone
	}
	if destination == "" {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrOwnerPayoutMissing, filmmakerID)
	}
	normalized, err := gateway.NormalizePhone(destination)
	if err != nil {
		return nil, fmt.Errorf("%w: payout number: %v", apperr.ErrValidation, err)
	}

	withdrawal := &database.Withdrawal{
		UserID:      filmmakerID,
		Amount:      amount.Amount,
		Currency:    string(amount.Currency),
		Method:      database.PayoutMomo,
		Destination: normalized,
		Kind:        database.WithdrawalManual,
		State:       database.WithdrawalPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.ReserveForWithdrawal(tx, filmmakerID, amount.Amount); err != nil {
			return err
		}
		if err := tx.Create(withdrawal).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Withdrawal requested: %s user=%s amount=%s", withdrawal.ID, filmmakerID, amount.Amount)
	return withdrawal, nil
}

// claimTransition moves a withdrawal between states with a conditional
// update, so racing callers cannot apply the same transition twice. The
// losing caller sees zero rows affected.
func claimTransition(tx *gorm.DB, withdrawalID string, from, to database.WithdrawalState, extra map[string]interface{}) error {
	updates := map[string]interface{}{"state": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&database.Withdrawal{}).
		Where("id = ? AND state = ?", withdrawalID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to move withdrawal %s to %s: %w", withdrawalID, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: withdrawal %s is not %s", apperr.ErrInvalidStateTransition, withdrawalID, from)
	}
	return nil
}

// Approve sends the reserved amount through the disbursing gateway. The row
// is claimed into processing before the gateway call, so only one of two
// racing approvals disburses; a gateway failure returns the claim and leaves
// the row pending with the reservation intact, ready for a retry.
func (s *Service) Approve(ctx context.Context, withdrawalID string) (*database.Withdrawal, error) {
	withdrawal, err := s.ledger.WithdrawalByID(withdrawalID)
	if err != nil {
		return nil, err
	}
	if withdrawal.Kind != database.WithdrawalManual {
		return nil, fmt.Errorf("%w: withdrawal %s is a tracking row", apperr.ErrValidation, withdrawalID)
	}

	now := time.Now().UTC()
	if err := claimTransition(s.db, withdrawalID, database.WithdrawalPending, database.WithdrawalProcessing,
		map[string]interface{}{"processed_at": now}); err != nil {
		return nil, err
	}

	amount := money.New(withdrawal.Amount, money.Currency(withdrawal.Currency))
	description := fmt.Sprintf("CinemaRwa payout %s", withdrawal.ID)
	res, err := s.disburser.SendMoney(ctx, amount.WholeUnits(), withdrawal.Destination, withdrawal.ID, description)
	if err != nil {
		logger.Error("Disbursement failed for withdrawal %s: %v", withdrawalID, err)
		if revertErr := claimTransition(s.db, withdrawalID, database.WithdrawalProcessing, database.WithdrawalPending,
			map[string]interface{}{"processed_at": nil}); revertErr != nil {
			logger.Error("Failed to return claim on withdrawal %s: %v", withdrawalID, revertErr)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", apperr.ErrGatewayTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrGatewayFailure, err)
	}

	if err := s.db.Model(&database.Withdrawal{}).Where("id = ?", withdrawalID).
		Update("gateway_ref", res.ProviderTxID).Error; err != nil {
		return nil, fmt.Errorf("failed to record disbursement ref: %w", err)
	}

	withdrawal.State = database.WithdrawalProcessing
	withdrawal.GatewayRef = res.ProviderTxID
	withdrawal.ProcessedAt = &now
	logger.Info("Withdrawal %s approved, disbursement ref %s", withdrawalID, res.ProviderTxID)
	return withdrawal, nil
}

// Complete settles a processing withdrawal once the disbursement is
// confirmed: the reservation moves into the paid-out bucket and the
// filmmaker is notified.
func (s *Service) Complete(withdrawalID string) (*database.Withdrawal, error) {
	withdrawal, err := s.ledger.WithdrawalByID(withdrawalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := claimTransition(tx, withdrawalID, database.WithdrawalProcessing, database.WithdrawalCompleted,
			map[string]interface{}{"completed_at": now}); err != nil {
			return err
		}
		if err := s.ledger.CompleteWithdrawal(tx, withdrawal.UserID, withdrawal.Amount); err != nil {
			return err
		}
		return s.notify(tx, withdrawal.UserID, outbox.KindWithdrawalCompleted,
			"CinemaRwa payout completed",
			fmt.Sprintf("Your payout of %s RWF has been sent to %s.", withdrawal.Amount.StringFixed(2), withdrawal.Destination))
	})
	if err != nil {
		return nil, err
	}

	withdrawal.State = database.WithdrawalCompleted
	withdrawal.CompletedAt = &now
	logger.Info("Withdrawal %s completed", withdrawalID)
	return withdrawal, nil
}

// Reject cancels a pending withdrawal and returns the reservation to the
// filmmaker's pending balance. A processing row cannot be rejected: the
// money has already been sent, so its only way forward is Complete.
func (s *Service) Reject(withdrawalID, reason string) (*database.Withdrawal, error) {
	withdrawal, err := s.ledger.WithdrawalByID(withdrawalID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := claimTransition(tx, withdrawalID, database.WithdrawalPending, database.WithdrawalRejected,
			map[string]interface{}{"reason": reason}); err != nil {
			return err
		}
		if err := s.ledger.RejectWithdrawal(tx, withdrawal.UserID, withdrawal.Amount); err != nil {
			return err
		}
		body := fmt.Sprintf("Your payout request of %s RWF was rejected.", withdrawal.Amount.StringFixed(2))
		if reason != "" {
			body += " Reason: " + reason
		}
		return s.notify(tx, withdrawal.UserID, outbox.KindWithdrawalRejected, "CinemaRwa payout rejected", body)
	})
	if err != nil {
		return nil, err
	}

	withdrawal.State = database.WithdrawalRejected
	withdrawal.Reason = reason
	logger.Info("Withdrawal %s rejected: %s", withdrawalID, reason)
	return withdrawal, nil
}

// Get loads one withdrawal.
func (s *Service) Get(withdrawalID string) (*database.Withdrawal, error) {
	return s.ledger.WithdrawalByID(withdrawalID)
}

// List returns withdrawals filtered by user and state.
func (s *Service) List(userID string, state database.WithdrawalState, limit int) ([]database.Withdrawal, error) {
	return s.ledger.ListWithdrawals(userID, state, limit)
}

// Finance builds the filmmaker's earnings report.
func (s *Service) Finance(filmmakerID string) (*ledgermodule.FinanceReport, error) {
	return s.ledger.Finance(filmmakerID)
}

func (s *Service) notify(tx *gorm.DB, userID, kind, subject, body string) error {
	var user database.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		return fmt.Errorf("failed to load user %s for notification: %w", userID, err)
	}
	if user.Email == "" {
		return nil
	}
	return outbox.Enqueue(tx, kind, outbox.EmailPayload{To: user.Email, Subject: subject, Body: body})
}
