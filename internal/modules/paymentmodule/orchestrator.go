package paymentmodule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/config"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/gateway"
	"github.com/cinemarwa/backend/internal/logger"
	"github.com/cinemarwa/backend/internal/money"
	"github.com/cinemarwa/backend/internal/modules/entitlementmodule"
	"github.com/cinemarwa/backend/internal/modules/ledgermodule"
	"github.com/cinemarwa/backend/internal/revenue"
)

// Orchestrator drives a purchase from request to terminal state. Every flow
// shares the same skeleton: admit, resolve owner, quote, distribute, record
// pending, initiate with the gateway, then branch on the synchronous status.
type Orchestrator struct {
	db           *gorm.DB
	cfg          *config.Config
	converter    *money.Converter
	policy       *revenue.Policy
	ledger       *ledgermodule.Ledger
	entitlements *entitlementmodule.Store
	collector    gateway.Collector
	card         gateway.CardIntents
	now          func() time.Time
}

// NewOrchestrator wires a payment orchestrator over its collaborators.
func NewOrchestrator(db *gorm.DB, cfg *config.Config, collector gateway.Collector, card gateway.CardIntents) *Orchestrator {
	return &Orchestrator{
		db:           db,
		cfg:          cfg,
		converter:    money.NewConverter(cfg.Currency),
		policy:       revenue.NewPolicy(cfg.Payments),
		ledger:       ledgermodule.NewLedger(db),
		entitlements: entitlementmodule.NewStore(db),
		collector:    collector,
		card:         card,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Distribution reports the split applied to a purchase.
type Distribution struct {
	CreatorShare    decimal.Decimal `json:"creatorShare"`
	PlatformShare   decimal.Decimal `json:"platformShare"`
	CreatorPercent  int64           `json:"creatorPercent"`
	PlatformPercent int64           `json:"platformPercent"`
}

// PurchaseResult is returned to the front-end after a purchase attempt.
type PurchaseResult struct {
	TransactionID string                 `json:"transactionId"`
	ReferenceID   string                 `json:"referenceId"`
	Status        gateway.Status         `json:"status"`
	Distribution  Distribution           `json:"distribution"`
	AccessPeriod  *database.AccessPeriod `json:"accessPeriod,omitempty"`
	ExpiresAt     *time.Time             `json:"expiresAt,omitempty"`
	ClientSecret  string                 `json:"clientSecret,omitempty"`
	Message       string                 `json:"message,omitempty"`
}

// MoviePurchaseRequest is the body of POST /payments/momo.
type MoviePurchaseRequest struct {
	Amount       string `json:"amount"`
	PhoneNumber  string `json:"phoneNumber"`
	UserID       string `json:"userId"`
	MovieID      string `json:"movieId"`
	Currency     string `json:"currency"`
	Type         string `json:"type"` // watch | download
	AccessPeriod string `json:"accessPeriod"`
	ContentType  string `json:"contentType"`
}

// SeriesPurchaseRequest is the body of POST /payments/series-momo.
type SeriesPurchaseRequest struct {
	Amount       string `json:"amount"`
	PhoneNumber  string `json:"phoneNumber"`
	UserID       string `json:"userId"`
	SeriesID     string `json:"seriesId"`
	Currency     string `json:"currency"`
	AccessPeriod string `json:"accessPeriod"`
}

// SubscriptionPurchaseRequest is the body of POST /payments/subscription-momo.
// An empty phone number marks an internal/system grant that bypasses the
// gateway (admin and test flows).
type SubscriptionPurchaseRequest struct {
	Amount      string            `json:"amount"`
	PhoneNumber string            `json:"phoneNumber"`
	UserID      string            `json:"userId"`
	PlanID      string            `json:"planId"`
	Period      string            `json:"period"` // month | year
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CardPurchaseRequest is the body of the card-intent variants.
type CardPurchaseRequest struct {
	Amount       string `json:"amount"`
	Email        string `json:"email"`
	UserID       string `json:"userId"`
	MovieID      string `json:"movieId"`
	PlanID       string `json:"planId"`
	Period       string `json:"period"`
	Currency     string `json:"currency"`
	Type         string `json:"type"`
	AccessPeriod string `json:"accessPeriod"`
}

// planDevices maps a subscription plan to its device allowance.
func planDevices(planID string) int {
	switch planID {
	case "basic":
		return 2
	case "pro":
		return 4
	case "premium":
		return 6
	default:
		return 2
	}
}

// MomoMovie handles a mobile-money movie watch or download purchase.
func (o *Orchestrator) MomoMovie(ctx context.Context, req MoviePurchaseRequest) (*PurchaseResult, error) {
	kind, err := movieKind(req.Type)
	if err != nil {
		return nil, err
	}
	period, err := parsePeriod(req.AccessPeriod)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" || req.MovieID == "" || req.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: userId, movieId and phoneNumber are required", apperr.ErrValidation)
	}

	user, err := o.loadUser(req.UserID)
	if err != nil {
		return nil, err
	}
	content, owner, err := o.resolveOwnedContent(req.MovieID, database.KindMovie)
	if err != nil {
		return nil, err
	}

	original, amountRWF, err := o.quote(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	split := o.policy.Split(kind, amountRWF)
	payouts, err := o.contentPayoutNumbers(owner)
	if err != nil {
		return nil, err
	}

	payment := o.buildPayment(kind, user.ID, original, amountRWF, split)
	payment.ContentID = &content.ID
	payment.OwnerID = &owner.ID
	payment.AccessPeriod = &period

	description := fmt.Sprintf("CinemaRwa %s %s", req.Type, content.Title)
	return o.runMomoFlow(ctx, payment, req.PhoneNumber, description, payouts)
}

// MomoSeries handles a mobile-money series access purchase. The series's
// declared tier price is authoritative: a request amount that rounds to the
// tier price is silently substituted, anything further off is rejected.
func (o *Orchestrator) MomoSeries(ctx context.Context, req SeriesPurchaseRequest) (*PurchaseResult, error) {
	period, err := parsePeriod(req.AccessPeriod)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" || req.SeriesID == "" || req.PhoneNumber == "" || req.AccessPeriod == "" {
		return nil, fmt.Errorf("%w: userId, seriesId, phoneNumber and accessPeriod are required", apperr.ErrValidation)
	}

	user, err := o.loadUser(req.UserID)
	if err != nil {
		return nil, err
	}
	series, owner, err := o.resolveOwnedContent(req.SeriesID, database.KindSeries)
	if err != nil {
		return nil, err
	}

	original, amountRWF, err := o.quote(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	tierPrice, err := o.seriesTierPrice(series.ID, period)
	if err != nil {
		return nil, err
	}
	diff := amountRWF.Amount.Sub(tierPrice).Abs()
	if diff.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: amount %s does not match tier price %s", apperr.ErrValidation, amountRWF.Amount, tierPrice)
	}
	if !diff.IsZero() {
		logger.Warn("Series purchase amount %s substituted with tier price %s (series=%s period=%s)",
			amountRWF.Amount, tierPrice, series.ID, period)
		amountRWF = money.New(tierPrice, money.RWF)
	}

	split := o.policy.Split(database.PaymentSeriesAccess, amountRWF)
	payouts, err := o.contentPayoutNumbers(owner)
	if err != nil {
		return nil, err
	}

	payment := o.buildPayment(database.PaymentSeriesAccess, user.ID, original, amountRWF, split)
	payment.ContentID = &series.ID
	payment.SeriesID = &series.ID
	payment.OwnerID = &owner.ID
	payment.AccessPeriod = &period

	description := fmt.Sprintf("CinemaRwa series access %s", series.Title)
	return o.runMomoFlow(ctx, payment, req.PhoneNumber, description, payouts)
}

// MomoSubscription handles a subscription upgrade or renewal. With an empty
// phone number the payment is an internal grant and skips the gateway.
func (o *Orchestrator) MomoSubscription(ctx context.Context, req SubscriptionPurchaseRequest) (*PurchaseResult, error) {
	if req.UserID == "" || req.PlanID == "" {
		return nil, fmt.Errorf("%w: userId and planId are required", apperr.ErrValidation)
	}
	if req.Period != "month" && req.Period != "year" {
		return nil, fmt.Errorf("%w: period must be month or year", apperr.ErrValidation)
	}

	user, err := o.loadUser(req.UserID)
	if err != nil {
		return nil, err
	}

	original, amountRWF, err := o.quote(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	kind := database.PaymentSubscriptionUpgrade
	if user.Subscription.Plan == req.PlanID && user.Subscription.Active(o.now()) {
		kind = database.PaymentSubscriptionRenewal
	}

	split := o.policy.Split(kind, amountRWF)
	payment := o.buildPayment(kind, user.ID, original, amountRWF, split)
	payment.PlanID = &req.PlanID
	expiresAt := o.subscriptionEnd(user, req.Period)
	payment.ExpiresAt = &expiresAt

	if req.PhoneNumber == "" {
		// Internal grant: record and settle without touching the gateway.
		payment.Provider = "internal"
		if err := o.ledger.RecordPayment(o.db, payment); err != nil {
			return nil, err
		}
		settled, err := o.ApplySideEffects(payment.ID, "")
		if err != nil {
			return nil, err
		}
		return o.result(settled, gateway.StatusSuccessful, split, ""), nil
	}

	payouts := []gateway.PayoutNumber{{Phone: o.cfg.Payments.AdminMomoNumber, Percent: 100}}
	description := fmt.Sprintf("CinemaRwa subscription %s %s", req.PlanID, req.Period)
	return o.runMomoFlow(ctx, payment, req.PhoneNumber, description, payouts)
}

// CardMovie handles the card-intent movie purchase; the charge is confirmed
// client-side and reconciled later.
func (o *Orchestrator) CardMovie(ctx context.Context, req CardPurchaseRequest) (*PurchaseResult, error) {
	kind, err := movieKind(req.Type)
	if err != nil {
		return nil, err
	}
	period, err := parsePeriod(req.AccessPeriod)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" || req.MovieID == "" {
		return nil, fmt.Errorf("%w: userId and movieId are required", apperr.ErrValidation)
	}

	user, err := o.loadUser(req.UserID)
	if err != nil {
		return nil, err
	}
	content, owner, err := o.resolveOwnedContent(req.MovieID, database.KindMovie)
	if err != nil {
		return nil, err
	}

	original, amountRWF, err := o.quote(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	split := o.policy.Split(kind, amountRWF)
	payment := o.buildPayment(kind, user.ID, original, amountRWF, split)
	payment.Method = database.MethodCard
	payment.ContentID = &content.ID
	payment.OwnerID = &owner.ID
	payment.AccessPeriod = &period

	description := fmt.Sprintf("CinemaRwa %s %s", req.Type, content.Title)
	return o.runCardFlow(ctx, payment, req.Email, description)
}

// CardSubscription handles the card-intent subscription purchase.
func (o *Orchestrator) CardSubscription(ctx context.Context, req CardPurchaseRequest) (*PurchaseResult, error) {
	if req.UserID == "" || req.PlanID == "" {
		return nil, fmt.Errorf("%w: userId and planId are required", apperr.ErrValidation)
	}
	if req.Period != "month" && req.Period != "year" {
		return nil, fmt.Errorf("%w: period must be month or year", apperr.ErrValidation)
	}

	user, err := o.loadUser(req.UserID)
	if err != nil {
		return nil, err
	}

	original, amountRWF, err := o.quote(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	kind := database.PaymentSubscriptionUpgrade
	if user.Subscription.Plan == req.PlanID && user.Subscription.Active(o.now()) {
		kind = database.PaymentSubscriptionRenewal
	}

	split := o.policy.Split(kind, amountRWF)
	payment := o.buildPayment(kind, user.ID, original, amountRWF, split)
	payment.Method = database.MethodCard
	payment.PlanID = &req.PlanID
	expiresAt := o.subscriptionEnd(user, req.Period)
	payment.ExpiresAt = &expiresAt

	description := fmt.Sprintf("CinemaRwa subscription %s %s", req.PlanID, req.Period)
	return o.runCardFlow(ctx, payment, req.Email, description)
}

// runMomoFlow records the pending payment, initiates collection, and
// branches on the gateway's synchronous answer.
func (o *Orchestrator) runMomoFlow(ctx context.Context, payment *database.Payment, payerPhone, description string, payouts []gateway.PayoutNumber) (*PurchaseResult, error) {
	split := paymentSplit(payment)

	if err := o.ledger.RecordPayment(o.db, payment); err != nil {
		return nil, err
	}

	amount := money.New(payment.Amount, money.Currency(payment.Currency))
	res, err := o.collector.RequestToPay(ctx, amount.WholeUnits(), payerPhone, payment.ReferenceID, description, payouts)
	if err != nil {
		return nil, o.handleCollectError(payment, err)
	}

	switch res.Status {
	case gateway.StatusSuccessful:
		settled, err := o.ApplySideEffects(payment.ID, res.ProviderTxID)
		if err != nil {
			// Collection money is in; the reconciler retries until the side
			// effects converge.
			logger.Error("Side effects failed for payment %s: %v", payment.ID, err)
			return nil, fmt.Errorf("%w: %v", apperr.ErrSideEffectFailure, err)
		}
		return o.result(settled, gateway.StatusSuccessful, split, ""), nil

	case gateway.StatusFailed:
		err := o.db.Transaction(func(tx *gorm.DB) error {
			_, txErr := o.ledger.AdvancePayment(tx, payment.ID, database.PaymentFailed, ledgermodule.AdvanceDetails{
				GatewayTxID:   res.ProviderTxID,
				FailureReason: res.Message,
			})
			return txErr
		})
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", apperr.ErrGatewayFailure, res.Message)

	default: // PENDING: the reconciler is authoritative from here.
		if res.ProviderTxID != "" {
			o.db.Model(payment).Update("gateway_tx_id", res.ProviderTxID)
		}
		return o.result(payment, gateway.StatusPending, split, res.Message), nil
	}
}

// runCardFlow records the pending payment and opens a card intent; the
// reconciler completes the purchase after client-side confirmation.
func (o *Orchestrator) runCardFlow(ctx context.Context, payment *database.Payment, email, description string) (*PurchaseResult, error) {
	split := paymentSplit(payment)
	payment.Provider = "card-intent"

	if err := o.ledger.RecordPayment(o.db, payment); err != nil {
		return nil, err
	}

	amount := money.New(payment.Amount, money.Currency(payment.Currency))
	intent, err := o.card.CreatePaymentIntent(ctx, amount.MinorUnits(),
		payment.Currency, email, description, map[string]string{
			"paymentId":   payment.ID,
			"referenceId": payment.ReferenceID,
		})
	if err != nil {
		return nil, o.handleCollectError(payment, err)
	}

	if err := o.db.Model(payment).Update("gateway_tx_id", intent.IntentID).Error; err != nil {
		return nil, fmt.Errorf("failed to record intent id: %w", err)
	}

	out := o.result(payment, gateway.StatusPending, split, "")
	out.ClientSecret = intent.ClientSecret
	return out, nil
}

// handleCollectError maps a gateway error onto the payment row and the error
// taxonomy. Balance failures terminate the payment; anything else leaves it
// pending for the reconciler.
func (o *Orchestrator) handleCollectError(payment *database.Payment, cause error) error {
	switch {
	case errors.Is(cause, gateway.ErrInsufficientBalance):
		err := o.db.Transaction(func(tx *gorm.DB) error {
			_, txErr := o.ledger.AdvancePayment(tx, payment.ID, database.PaymentFailed, ledgermodule.AdvanceDetails{
				FailureReason: cause.Error(),
			})
			return txErr
		})
		if err != nil {
			logger.Error("Failed to record balance failure for payment %s: %v", payment.ID, err)
		}
		return fmt.Errorf("%w: %s", apperr.ErrInsufficientBalance, o.cfg.Payments.BalanceInsufficientMessage)

	case errors.Is(cause, context.DeadlineExceeded):
		o.recordFailureReason(payment, cause)
		return fmt.Errorf("%w: %v", apperr.ErrGatewayTimeout, cause)

	default:
		o.recordFailureReason(payment, cause)
		return fmt.Errorf("%w: %v", apperr.ErrGatewayFailure, cause)
	}
}

func (o *Orchestrator) recordFailureReason(payment *database.Payment, cause error) {
	if err := o.db.Model(payment).Update("failure_reason", cause.Error()).Error; err != nil {
		logger.Error("Failed to record failure reason for payment %s: %v", payment.ID, err)
	}
}

func (o *Orchestrator) buildPayment(kind database.PaymentKind, userID string, original, amountRWF money.Money, split revenue.Split) *database.Payment {
	return &database.Payment{
		UserID:           userID,
		Kind:             kind,
		Method:           database.MethodMomo,
		Provider:         "collecting-gateway",
		Amount:           amountRWF.Amount,
		Currency:         string(amountRWF.Currency),
		OriginalAmount:   original.Amount,
		OriginalCurrency: string(original.Currency),
		CreatorShare:     split.CreatorShare.Amount,
		PlatformShare:    split.PlatformShare.Amount,
		CreatorPercent:   split.CreatorPercent,
		PlatformPercent:  split.PlatformPercent,
		State:            database.PaymentPending,
		ReferenceID:      uuid.NewString(),
	}
}

// quote parses the submitted amount and converts it to the settlement
// currency, preserving the original for audit.
func (o *Orchestrator) quote(rawAmount, currency string) (original money.Money, settled money.Money, err error) {
	original, err = money.Parse(rawAmount, currency)
	if err != nil {
		return money.Money{}, money.Money{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	settled, err = o.converter.ToRWF(original)
	if err != nil {
		return money.Money{}, money.Money{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return original, settled, nil
}

func (o *Orchestrator) loadUser(userID string) (*database.User, error) {
	var user database.User
	if err := o.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, userID)
		}
		return nil, err
	}
	return &user, nil
}

// resolveOwnedContent loads the content and its owning filmmaker.
func (o *Orchestrator) resolveOwnedContent(contentID string, wantKind database.ContentKind) (*database.Content, *database.User, error) {
	var content database.Content
	if err := o.db.First(&content, "id = ?", contentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: content %s", apperr.ErrNotFound, contentID)
		}
		return nil, nil, err
	}
	if content.Kind != wantKind {
		return nil, nil, fmt.Errorf("%w: content %s is a %s, want %s", apperr.ErrValidation, contentID, content.Kind, wantKind)
	}
	if content.OwnerID == "" {
		return nil, nil, fmt.Errorf("%w: content %s", apperr.ErrOwnerMissing, contentID)
	}

	var owner database.User
	if err := o.db.First(&owner, "id = ?", content.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: content %s", apperr.ErrOwnerMissing, contentID)
		}
		return nil, nil, err
	}
	return &content, &owner, nil
}

// contentPayoutNumbers builds the automatic-split legs for a content
// purchase: the creator's share to the owner, the rest to the platform.
func (o *Orchestrator) contentPayoutNumbers(owner *database.User) ([]gateway.PayoutNumber, error) {
	if owner.PayoutPhone == "" {
		return nil, fmt.Errorf("%w: owner %s", apperr.ErrOwnerPayoutMissing, owner.ID)
	}
	if o.cfg.Payments.AdminMomoNumber == "" {
		return nil, fmt.Errorf("%w: platform momo number not configured", apperr.ErrGatewayFailure)
	}
	return []gateway.PayoutNumber{
		{Phone: owner.PayoutPhone, Percent: o.cfg.Payments.FilmmakerSharePercent},
		{Phone: o.cfg.Payments.AdminMomoNumber, Percent: o.cfg.Payments.AdminSharePercent},
	}, nil
}

// seriesTierPrice looks up the authoritative price for a series/period pair,
// in RWF.
func (o *Orchestrator) seriesTierPrice(seriesID string, period database.AccessPeriod) (decimal.Decimal, error) {
	var tier database.ContentPricingTier
	err := o.db.First(&tier, "content_id = ? AND period = ?", seriesID, period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, fmt.Errorf("%w: series %s has no %s tier", apperr.ErrValidation, seriesID, period)
		}
		return decimal.Zero, err
	}

	settled, err := o.converter.ToRWF(money.New(tier.Amount, money.Currency(tier.Currency)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return settled.Amount, nil
}

// subscriptionEnd extends an active subscription or starts a fresh window.
func (o *Orchestrator) subscriptionEnd(user *database.User, period string) time.Time {
	base := o.now()
	if user.Subscription.Active(base) && user.Subscription.EndAt != nil {
		base = *user.Subscription.EndAt
	}
	if period == "year" {
		return base.AddDate(1, 0, 0)
	}
	return base.AddDate(0, 1, 0)
}

func (o *Orchestrator) result(payment *database.Payment, status gateway.Status, split revenue.Split, message string) *PurchaseResult {
	return &PurchaseResult{
		TransactionID: payment.ID,
		ReferenceID:   payment.ReferenceID,
		Status:        status,
		Distribution: Distribution{
			CreatorShare:    split.CreatorShare.Amount,
			PlatformShare:   split.PlatformShare.Amount,
			CreatorPercent:  split.CreatorPercent,
			PlatformPercent: split.PlatformPercent,
		},
		AccessPeriod: payment.AccessPeriod,
		ExpiresAt:    payment.ExpiresAt,
		Message:      message,
	}
}

func paymentSplit(payment *database.Payment) revenue.Split {
	currency := money.Currency(payment.Currency)
	return revenue.Split{
		CreatorShare:    money.New(payment.CreatorShare, currency),
		PlatformShare:   money.New(payment.PlatformShare, currency),
		CreatorPercent:  payment.CreatorPercent,
		PlatformPercent: payment.PlatformPercent,
	}
}

func movieKind(purchaseType string) (database.PaymentKind, error) {
	switch strings.ToLower(purchaseType) {
	case "watch":
		return database.PaymentMovieWatch, nil
	case "download":
		return database.PaymentMovieDownload, nil
	default:
		return "", fmt.Errorf("%w: type must be watch or download", apperr.ErrValidation)
	}
}

func parsePeriod(raw string) (database.AccessPeriod, error) {
	if raw == "" {
		return database.PeriodOneTime, nil
	}
	period := database.AccessPeriod(raw)
	if !period.Valid() {
		return "", fmt.Errorf("%w: invalid access period %q", apperr.ErrValidation, raw)
	}
	return period, nil
}
