package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserRole identifies what a user can do on the platform.
type UserRole string

const (
	RoleViewer    UserRole = "viewer"
	RoleFilmmaker UserRole = "filmmaker"
	RoleAdmin     UserRole = "admin"
)

// PayoutMethod is the channel a filmmaker is paid through.
type PayoutMethod string

const (
	PayoutMomo          PayoutMethod = "momo"
	PayoutBank          PayoutMethod = "bank"
	PayoutCardProcessor PayoutMethod = "card-processor"
	PayoutPaypal        PayoutMethod = "paypal"
)

// Balances tracks a creator's earnings through the withdrawal pipeline.
// TotalEarned == Pending + Processing + Available + Withdrawn at every commit
// boundary; the ledger enforces this by mutating the columns with relative
// UPDATE expressions inside the same transaction as the state transition.
type Balances struct {
	Pending     decimal.Decimal `gorm:"column:balance_pending;type:decimal(20,2);not null;default:0" json:"pending"`
	Processing  decimal.Decimal `gorm:"column:balance_processing;type:decimal(20,2);not null;default:0" json:"processing"`
	Available   decimal.Decimal `gorm:"column:balance_available;type:decimal(20,2);not null;default:0" json:"available"`
	Withdrawn   decimal.Decimal `gorm:"column:balance_withdrawn;type:decimal(20,2);not null;default:0" json:"withdrawn"`
	TotalEarned decimal.Decimal `gorm:"column:balance_total_earned;type:decimal(20,2);not null;default:0" json:"totalEarned"`
}

// Subscription is a user's platform subscription. Active iff now < EndAt.
type Subscription struct {
	Plan       string     `gorm:"column:subscription_plan" json:"plan,omitempty"`
	StartAt    *time.Time `gorm:"column:subscription_start_at" json:"startAt,omitempty"`
	EndAt      *time.Time `gorm:"column:subscription_end_at" json:"endAt,omitempty"`
	MaxDevices int        `gorm:"column:subscription_max_devices" json:"maxDevices,omitempty"`
}

// Active reports whether the subscription window covers now.
func (s Subscription) Active(now time.Time) bool {
	return s.EndAt != nil && now.Before(*s.EndAt)
}

// User represents a viewer, filmmaker, or administrator.
type User struct {
	ID            string       `gorm:"primaryKey;size:36" json:"id"`
	Name          string       `json:"name"`
	Email         string       `gorm:"uniqueIndex" json:"email"`
	Phone         string       `json:"phone"`
	Role          UserRole     `gorm:"not null;default:viewer" json:"role"`
	PayoutPhone   string       `json:"payoutPhone,omitempty"`
	PayoutMethod  PayoutMethod `json:"payoutMethod,omitempty"`
	Balances      Balances     `gorm:"embedded" json:"balances"`
	Subscription  Subscription `gorm:"embedded" json:"subscription"`
	ActiveDevices string       `gorm:"type:text" json:"-"` // JSON array of device IDs
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// ContentKind distinguishes movies, series umbrellas, and episodes.
type ContentKind string

const (
	KindMovie   ContentKind = "movie"
	KindSeries  ContentKind = "series"
	KindEpisode ContentKind = "episode"
)

// Content is a movie, a series, or an episode belonging to a series.
// A series row carries no video asset of its own; its pricing tiers are
// authoritative for series-access purchases.
type Content struct {
	ID                    string          `gorm:"primaryKey;size:36" json:"id"`
	Kind                  ContentKind     `gorm:"not null;index" json:"kind"`
	Title                 string          `json:"title"`
	OwnerID               string          `gorm:"index" json:"ownerId"`
	ParentSeriesID        *string         `gorm:"index" json:"parentSeriesId,omitempty"`
	ViewPrice             decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"viewPrice"`
	ViewPriceCurrency     string          `gorm:"size:3;default:RWF" json:"viewPriceCurrency"`
	DownloadPrice         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"downloadPrice"`
	DownloadPriceCurrency string          `gorm:"size:3;default:RWF" json:"downloadPriceCurrency"`
	RoyaltyPercent        int             `gorm:"not null;default:70" json:"royaltyPercent"`
	TotalRevenue          decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"totalRevenue"`
	Approved              bool            `gorm:"not null;default:false" json:"approved"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (c *Content) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ContentPricingTier maps an access period to its price for one series.
type ContentPricingTier struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	ContentID string          `gorm:"index;not null" json:"contentId"`
	Period    AccessPeriod    `gorm:"not null" json:"period"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency  string          `gorm:"size:3;default:RWF" json:"currency"`
}

// AccessPeriod is the lifetime of an entitlement. "one-time" means no expiry
// for downloads and a 48-hour watch window for movie watches.
type AccessPeriod string

const (
	PeriodOneTime AccessPeriod = "one-time"
	Period24h     AccessPeriod = "24h"
	Period7d      AccessPeriod = "7d"
	Period30d     AccessPeriod = "30d"
	Period90d     AccessPeriod = "90d"
	Period180d    AccessPeriod = "180d"
	Period365d    AccessPeriod = "365d"
)

// Days returns the calendar length of the period, or 0 for one-time.
func (p AccessPeriod) Days() int {
	switch p {
	case Period24h:
		return 1
	case Period7d:
		return 7
	case Period30d:
		return 30
	case Period90d:
		return 90
	case Period180d:
		return 180
	case Period365d:
		return 365
	}
	return 0
}

// Valid reports whether p is one of the accepted periods.
func (p AccessPeriod) Valid() bool {
	switch p {
	case PeriodOneTime, Period24h, Period7d, Period30d, Period90d, Period180d, Period365d:
		return true
	}
	return false
}

// PaymentKind is the closed set of purchase flows.
type PaymentKind string

const (
	PaymentMovieWatch          PaymentKind = "movie_watch"
	PaymentMovieDownload       PaymentKind = "movie_download"
	PaymentSeriesAccess        PaymentKind = "series_access"
	PaymentSeriesEpisode       PaymentKind = "series_episode"
	PaymentSubscriptionUpgrade PaymentKind = "subscription_upgrade"
	PaymentSubscriptionRenewal PaymentKind = "subscription_renewal"
)

// ContentKind reports whether the payment is for content (as opposed to a
// platform subscription); content payments carry an owner and a creator share.
func (k PaymentKind) ContentKind() bool {
	switch k {
	case PaymentMovieWatch, PaymentMovieDownload, PaymentSeriesAccess, PaymentSeriesEpisode:
		return true
	}
	return false
}

// PaymentMethod is the channel the customer pays through.
type PaymentMethod string

const (
	MethodMomo PaymentMethod = "momo"
	MethodCard PaymentMethod = "card"
)

// PaymentState is the payment lifecycle. Transitions are monotonic:
// pending→succeeded or pending→failed, and terminal states are final.
type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentSucceeded PaymentState = "succeeded"
	PaymentFailed    PaymentState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s PaymentState) Terminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

// Payment is one purchase attempt. Rows are created pending and mutated only
// by the payment orchestrator and the status reconciler; they are never
// deleted.
type Payment struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	UserID           string          `gorm:"index;not null" json:"userId"`
	ContentID        *string         `gorm:"index" json:"contentId,omitempty"`
	SeriesID         *string         `gorm:"index" json:"seriesId,omitempty"`
	PlanID           *string         `json:"planId,omitempty"`
	Kind             PaymentKind     `gorm:"not null" json:"kind"`
	Method           PaymentMethod   `gorm:"not null" json:"method"`
	Provider         string          `json:"provider"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency         string          `gorm:"size:3;default:RWF" json:"currency"`
	OriginalAmount   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"originalAmount"`
	OriginalCurrency string          `gorm:"size:3;default:RWF" json:"originalCurrency"`
	CreatorShare     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"creatorShare"`
	PlatformShare    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"platformShare"`
	CreatorPercent   int64           `json:"creatorPercent"`
	PlatformPercent  int64           `json:"platformPercent"`
	OwnerID          *string         `gorm:"index" json:"ownerId,omitempty"`
	AccessPeriod     *AccessPeriod   `json:"accessPeriod,omitempty"`
	ExpiresAt        *time.Time      `json:"expiresAt,omitempty"`
	State            PaymentState    `gorm:"not null;default:pending;index" json:"state"`
	ReferenceID      string          `gorm:"uniqueIndex;not null" json:"referenceId"`
	GatewayTxID      string          `json:"gatewayTxId,omitempty"`
	FailureReason    string          `json:"failureReason,omitempty"`
	// LedgerApplied guards the creator credit: set in the same transaction so
	// the credit happens at most once per payment.
	LedgerApplied bool `gorm:"not null;default:false" json:"-"`
	// SideEffectsApplied guards the full side-effects block (entitlement,
	// credit, split withdrawals, outbox row) against webhook/poll races.
	SideEffectsApplied bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// EntitlementScope is the basis on which access is granted.
type EntitlementScope string

const (
	ScopeTitle        EntitlementScope = "title"
	ScopeSeries       EntitlementScope = "series"
	ScopeSubscription EntitlementScope = "subscription"
	ScopeOwner        EntitlementScope = "owner"
	ScopeFree         EntitlementScope = "free"
)

// EntitlementState is the lifecycle of a grant. A row past its ExpiresAt is
// treated as expired by scope evaluation even while the column still says
// active.
type EntitlementState string

const (
	EntitlementActive    EntitlementState = "active"
	EntitlementExpired   EntitlementState = "expired"
	EntitlementCancelled EntitlementState = "cancelled"
	EntitlementRenewed   EntitlementState = "renewed"
)

// Entitlement grants a user access to a piece of content under a scope with
// an optional expiry.
type Entitlement struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	UserID    string           `gorm:"index:idx_entitlement_user_content;not null" json:"userId"`
	ContentID string           `gorm:"index:idx_entitlement_user_content;not null" json:"contentId"`
	SeriesID  *string          `gorm:"index" json:"seriesId,omitempty"`
	Scope     EntitlementScope `gorm:"not null" json:"scope"`
	Period    AccessPeriod     `gorm:"not null" json:"period"`
	PricePaid decimal.Decimal  `gorm:"type:decimal(20,2);not null;default:0" json:"pricePaid"`
	Currency  string           `gorm:"size:3;default:RWF" json:"currency"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	PaymentID *string          `gorm:"index" json:"paymentId,omitempty"`
	State     EntitlementState `gorm:"not null;default:active;index" json:"state"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (e *Entitlement) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// ActiveAt reports whether the entitlement grants access at the given time.
func (e *Entitlement) ActiveAt(now time.Time) bool {
	if e.State != EntitlementActive {
		return false
	}
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}

// WithdrawalKind distinguishes user-requested payouts from the tracking rows
// written when the collecting gateway performs an automatic split.
type WithdrawalKind string

const (
	WithdrawalManual    WithdrawalKind = "manual_withdrawal"
	WithdrawalAutomatic WithdrawalKind = "automatic_payout"
	WithdrawalAdminFee  WithdrawalKind = "admin_fee"
)

// WithdrawalState is the lifecycle of a payout. Manual withdrawals move
// pending→processing→completed or pending→rejected; automatic split rows are
// born completed.
type WithdrawalState string

const (
	WithdrawalPending    WithdrawalState = "pending"
	WithdrawalProcessing WithdrawalState = "processing"
	WithdrawalCompleted  WithdrawalState = "completed"
	WithdrawalRejected   WithdrawalState = "rejected"
)

// Withdrawal is a creator payout or a tracking record for an automatic split.
// UserID is the party the money flows through, which for automatic splits is
// the paying customer.
type Withdrawal struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	UserID      string          `gorm:"index;not null" json:"userId"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency    string          `gorm:"size:3;default:RWF" json:"currency"`
	Method      PayoutMethod    `json:"method"`
	Destination string          `json:"destination"`
	Kind        WithdrawalKind  `gorm:"not null;index" json:"kind"`
	State       WithdrawalState `gorm:"not null;default:pending;index" json:"state"`
	PaymentID   *string         `gorm:"index" json:"paymentId,omitempty"`
	GatewayRef  string          `json:"gatewayRef,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	RequestedAt time.Time       `json:"requestedAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (w *Withdrawal) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.RequestedAt.IsZero() {
		w.RequestedAt = time.Now().UTC()
	}
	return nil
}

// OutboxState is the delivery state of an asynchronous side effect.
type OutboxState string

const (
	OutboxPending OutboxState = "pending"
	OutboxSent    OutboxState = "sent"
	OutboxFailed  OutboxState = "failed"
)

// OutboxMessage is a durable asynchronous side effect (email, analytics)
// appended inside the payment side-effects transaction and drained by a
// background worker, so delivery failures never poison a payment.
type OutboxMessage struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	Kind      string      `gorm:"not null;index" json:"kind"`
	Payload   string      `gorm:"type:text;not null" json:"payload"`
	State     OutboxState `gorm:"not null;default:pending;index" json:"state"`
	Attempts  int         `gorm:"not null;default:0" json:"attempts"`
	LastError string      `json:"lastError,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	SentAt    *time.Time  `json:"sentAt,omitempty"`
}

func (m *OutboxMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
