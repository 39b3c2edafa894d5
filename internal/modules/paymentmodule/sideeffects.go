package paymentmodule

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/logger"
	"github.com/cinemarwa/backend/internal/modules/entitlementmodule"
	"github.com/cinemarwa/backend/internal/modules/ledgermodule"
	"github.com/cinemarwa/backend/internal/outbox"
)

// ApplySideEffects settles a confirmed payment: it advances the row to
// succeeded, grants the purchased access, credits the creator, records the
// split tracking rows, and enqueues the confirmation email. Everything runs
// in one transaction guarded by the side_effects_applied flag, so a webhook
// and a poll racing each other settle exactly once, and a partial failure
// rolls the whole block back for the reconciler to retry.
func (o *Orchestrator) ApplySideEffects(paymentID, gatewayTxID string) (*database.Payment, error) {
	var settled *database.Payment

	err := o.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&database.Payment{}).
			Where("id = ? AND side_effects_applied = ?", paymentID, false).
			Update("side_effects_applied", true)
		if res.Error != nil {
			return fmt.Errorf("failed to claim side effects for payment %s: %w", paymentID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Already settled, or unknown. Either way nothing to do here.
			existing, err := o.ledger.PaymentByID(paymentID)
			if err != nil {
				return err
			}
			settled = existing
			return nil
		}

		payment, err := o.ledger.AdvancePayment(tx, paymentID, database.PaymentSucceeded, ledgermodule.AdvanceDetails{
			GatewayTxID: gatewayTxID,
		})
		if err != nil {
			return err
		}

		if err := o.grantAccess(tx, payment); err != nil {
			return err
		}
		if err := o.ledger.CreditCreator(tx, payment); err != nil {
			return err
		}
		if err := o.recordRevenue(tx, payment); err != nil {
			return err
		}
		if err := o.recordSplitRows(tx, payment); err != nil {
			return err
		}
		if err := o.enqueueConfirmation(tx, payment); err != nil {
			return err
		}

		settled = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// grantAccess applies the entitlement the payment bought.
func (o *Orchestrator) grantAccess(tx *gorm.DB, payment *database.Payment) error {
	switch payment.Kind {
	case database.PaymentMovieWatch, database.PaymentMovieDownload, database.PaymentSeriesEpisode:
		if payment.ContentID == nil || payment.AccessPeriod == nil {
			return fmt.Errorf("%w: payment %s missing content or period", apperr.ErrValidation, payment.ID)
		}
		_, err := o.entitlements.GrantTitle(tx, entitlementmodule.TitleGrant{
			UserID:    payment.UserID,
			ContentID: *payment.ContentID,
			Period:    *payment.AccessPeriod,
			PricePaid: payment.Amount,
			Currency:  payment.Currency,
			PaymentID: payment.ID,
			Download:  payment.Kind == database.PaymentMovieDownload,
		})
		return err

	case database.PaymentSeriesAccess:
		if payment.SeriesID == nil || payment.AccessPeriod == nil {
			return fmt.Errorf("%w: payment %s missing series or period", apperr.ErrValidation, payment.ID)
		}
		_, err := o.entitlements.GrantSeries(tx, entitlementmodule.SeriesGrant{
			UserID:    payment.UserID,
			SeriesID:  *payment.SeriesID,
			Period:    *payment.AccessPeriod,
			PricePaid: payment.Amount,
			Currency:  payment.Currency,
			PaymentID: payment.ID,
		})
		return err

	case database.PaymentSubscriptionUpgrade, database.PaymentSubscriptionRenewal:
		if payment.PlanID == nil || payment.ExpiresAt == nil {
			return fmt.Errorf("%w: payment %s missing plan or expiry", apperr.ErrValidation, payment.ID)
		}
		return o.entitlements.GrantSubscription(tx, payment.UserID, *payment.PlanID,
			*payment.ExpiresAt, planDevices(*payment.PlanID))

	default:
		return fmt.Errorf("%w: unknown payment kind %q", apperr.ErrValidation, payment.Kind)
	}
}

// recordRevenue accumulates the creator share onto the content's lifetime
// revenue counter.
func (o *Orchestrator) recordRevenue(tx *gorm.DB, payment *database.Payment) error {
	if payment.ContentID == nil || payment.CreatorShare.IsZero() {
		return nil
	}
	res := tx.Model(&database.Content{}).Where("id = ?", *payment.ContentID).
		Update("total_revenue", gorm.Expr("total_revenue + ?", payment.CreatorShare))
	if res.Error != nil {
		return fmt.Errorf("failed to record revenue for content %s: %w", *payment.ContentID, res.Error)
	}
	return nil
}

// recordSplitRows writes the completed tracking withdrawals mirroring the
// automatic split the collecting gateway performed on settlement. Both rows
// name the paying customer, the party the money flowed through.
func (o *Orchestrator) recordSplitRows(tx *gorm.DB, payment *database.Payment) error {
	now := time.Now().UTC()

	if payment.Kind.ContentKind() && !payment.CreatorShare.IsZero() {
		payout := &database.Withdrawal{
			UserID:      payment.UserID,
			Amount:      payment.CreatorShare,
			Currency:    payment.Currency,
			Method:      database.PayoutMomo,
			Kind:        database.WithdrawalAutomatic,
			State:       database.WithdrawalCompleted,
			PaymentID:   &payment.ID,
			CompletedAt: &now,
		}
		if err := tx.Create(payout).Error; err != nil {
			return fmt.Errorf("failed to record automatic payout: %w", err)
		}
	}

	if !payment.PlatformShare.IsZero() {
		fee := &database.Withdrawal{
			UserID:      payment.UserID,
			Amount:      payment.PlatformShare,
			Currency:    payment.Currency,
			Method:      database.PayoutMomo,
			Destination: o.cfg.Payments.AdminMomoNumber,
			Kind:        database.WithdrawalAdminFee,
			State:       database.WithdrawalCompleted,
			PaymentID:   &payment.ID,
			CompletedAt: &now,
		}
		if err := tx.Create(fee).Error; err != nil {
			return fmt.Errorf("failed to record admin fee: %w", err)
		}
	}
	return nil
}

// enqueueConfirmation appends the confirmation email to the outbox. The
// customer may have no email on file; that is not an error.
func (o *Orchestrator) enqueueConfirmation(tx *gorm.DB, payment *database.Payment) error {
	var user database.User
	if err := tx.First(&user, "id = ?", payment.UserID).Error; err != nil {
		return fmt.Errorf("failed to load user %s for confirmation: %w", payment.UserID, err)
	}
	if user.Email == "" {
		logger.Warn("User %s has no email, skipping payment confirmation", user.ID)
		return nil
	}

	body := fmt.Sprintf("Your payment of %s %s was received. Reference: %s",
		payment.Amount.StringFixed(2), payment.Currency, payment.ReferenceID)
	return outbox.Enqueue(tx, outbox.KindPaymentConfirmation, outbox.EmailPayload{
		To:      user.Email,
		Subject: "CinemaRwa payment confirmation",
		Body:    body,
	})
}
