package paymentmodule

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/gateway"
	"github.com/cinemarwa/backend/internal/logger"
	"github.com/cinemarwa/backend/internal/modules/ledgermodule"
)

// ReconcileByPaymentID re-checks a pending payment against its gateway and
// settles or fails it accordingly. Terminal payments return their cached
// outcome without a gateway call.
func (o *Orchestrator) ReconcileByPaymentID(ctx context.Context, paymentID string) (*PurchaseResult, error) {
	payment, err := o.ledger.PaymentByID(paymentID)
	if err != nil {
		return nil, err
	}
	return o.reconcile(ctx, payment)
}

// ReconcileByReference resolves a payment by its gateway reference and
// reconciles it. Webhook handlers use this; the webhook's claimed status is
// never trusted, the gateway is always re-queried.
func (o *Orchestrator) ReconcileByReference(ctx context.Context, referenceID string) (*PurchaseResult, error) {
	payment, err := o.ledger.PaymentByReference(referenceID)
	if err != nil {
		return nil, err
	}
	return o.reconcile(ctx, payment)
}

func (o *Orchestrator) reconcile(ctx context.Context, payment *database.Payment) (*PurchaseResult, error) {
	split := paymentSplit(payment)

	switch payment.State {
	case database.PaymentSucceeded:
		return o.result(payment, gateway.StatusSuccessful, split, ""), nil
	case database.PaymentFailed:
		out := o.result(payment, gateway.StatusFailed, split, payment.FailureReason)
		return out, nil
	}

	status, err := o.checkGateway(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrForCheck(err), err)
	}

	switch status.Status {
	case gateway.StatusSuccessful:
		settled, err := o.ApplySideEffects(payment.ID, status.ProviderTxID)
		if err != nil {
			return nil, err
		}
		return o.result(settled, gateway.StatusSuccessful, split, ""), nil

	case gateway.StatusFailed:
		var failed *database.Payment
		err := o.db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			failed, txErr = o.ledger.AdvancePayment(tx, payment.ID, database.PaymentFailed, ledgermodule.AdvanceDetails{
				GatewayTxID:   status.ProviderTxID,
				FailureReason: status.Message,
			})
			return txErr
		})
		if err != nil {
			return nil, err
		}
		return o.result(failed, gateway.StatusFailed, split, status.Message), nil

	default:
		logger.Debug("Payment %s still pending at gateway", payment.ID)
		return o.result(payment, gateway.StatusPending, split, status.Message), nil
	}
}

func apperrForCheck(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.ErrGatewayTimeout
	}
	return apperr.ErrGatewayFailure
}

// checkGateway queries the gateway that owns the payment.
func (o *Orchestrator) checkGateway(ctx context.Context, payment *database.Payment) (*gateway.CollectResult, error) {
	switch payment.Method {
	case database.MethodCard:
		if payment.GatewayTxID == "" {
			return &gateway.CollectResult{ReferenceID: payment.ReferenceID, Status: gateway.StatusPending}, nil
		}
		return o.card.ConfirmPayment(ctx, payment.GatewayTxID)
	default:
		return o.collector.CheckStatus(ctx, payment.ReferenceID)
	}
}
