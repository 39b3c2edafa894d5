package entitlementmodule

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/logger"
)

// watchWindow is how long a one-time movie watch stays open.
const watchWindow = 48 * time.Hour

// Store persists and resolves access grants. Reads never fail on missing
// data; they resolve to "no access".
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates an entitlement store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// TitleGrant describes a per-title access purchase.
type TitleGrant struct {
	UserID    string
	ContentID string
	Period    database.AccessPeriod
	PricePaid decimal.Decimal
	Currency  string
	PaymentID string
	// Download marks a permanent download; a one-time watch gets the
	// 48-hour window instead.
	Download bool
}

// GrantTitle creates a title-scope entitlement, superseding any active title
// grant the user already holds for the same content.
func (s *Store) GrantTitle(tx *gorm.DB, g TitleGrant) (*database.Entitlement, error) {
	if err := tx.Model(&database.Entitlement{}).
		Where("user_id = ? AND content_id = ? AND scope = ? AND state = ?",
			g.UserID, g.ContentID, database.ScopeTitle, database.EntitlementActive).
		Update("state", database.EntitlementRenewed).Error; err != nil {
		return nil, fmt.Errorf("failed to supersede title entitlement: %w", err)
	}

	ent := &database.Entitlement{
		UserID:    g.UserID,
		ContentID: g.ContentID,
		Scope:     database.ScopeTitle,
		Period:    g.Period,
		PricePaid: g.PricePaid,
		Currency:  g.Currency,
		ExpiresAt: s.titleExpiry(g),
		State:     database.EntitlementActive,
	}
	if g.PaymentID != "" {
		ent.PaymentID = &g.PaymentID
	}

	if err := tx.Create(ent).Error; err != nil {
		return nil, fmt.Errorf("failed to grant title entitlement: %w", err)
	}
	logger.Info("Title entitlement granted: user=%s content=%s period=%s", g.UserID, g.ContentID, g.Period)
	return ent, nil
}

func (s *Store) titleExpiry(g TitleGrant) *time.Time {
	if g.Period == database.PeriodOneTime {
		if g.Download {
			return nil
		}
		t := s.now().Add(watchWindow)
		return &t
	}
	t := s.now().AddDate(0, 0, g.Period.Days())
	return &t
}

// SeriesGrant describes a series-access purchase.
type SeriesGrant struct {
	UserID    string
	SeriesID  string
	Period    database.AccessPeriod
	PricePaid decimal.Decimal
	Currency  string
	PaymentID string
}

// GrantSeries creates the series-scope umbrella entitlement plus a zero-cost
// series-scope entitlement for every currently approved episode, all sharing
// one expiry. Episodes added to the series later resolve dynamically through
// the umbrella row; no backfill is needed.
func (s *Store) GrantSeries(tx *gorm.DB, g SeriesGrant) (*database.Entitlement, error) {
	var expiresAt *time.Time
	if g.Period != database.PeriodOneTime {
		t := s.now().AddDate(0, 0, g.Period.Days())
		expiresAt = &t
	}

	umbrella := &database.Entitlement{
		UserID:    g.UserID,
		ContentID: g.SeriesID,
		SeriesID:  &g.SeriesID,
		Scope:     database.ScopeSeries,
		Period:    g.Period,
		PricePaid: g.PricePaid,
		Currency:  g.Currency,
		ExpiresAt: expiresAt,
		State:     database.EntitlementActive,
	}
	if g.PaymentID != "" {
		umbrella.PaymentID = &g.PaymentID
	}
	if err := tx.Create(umbrella).Error; err != nil {
		return nil, fmt.Errorf("failed to grant series entitlement: %w", err)
	}

	var episodes []database.Content
	if err := tx.Where("kind = ? AND parent_series_id = ? AND approved = ?",
		database.KindEpisode, g.SeriesID, true).Find(&episodes).Error; err != nil {
		return nil, fmt.Errorf("failed to load series episodes: %w", err)
	}

	for _, ep := range episodes {
		child := &database.Entitlement{
			UserID:    g.UserID,
			ContentID: ep.ID,
			SeriesID:  &g.SeriesID,
			Scope:     database.ScopeSeries,
			Period:    g.Period,
			PricePaid: decimal.Zero,
			Currency:  g.Currency,
			ExpiresAt: expiresAt,
			State:     database.EntitlementActive,
		}
		if g.PaymentID != "" {
			child.PaymentID = &g.PaymentID
		}
		if err := tx.Create(child).Error; err != nil {
			return nil, fmt.Errorf("failed to grant episode entitlement for %s: %w", ep.ID, err)
		}
	}

	logger.Info("Series entitlement granted: user=%s series=%s episodes=%d", g.UserID, g.SeriesID, len(episodes))
	return umbrella, nil
}

// GrantSubscription activates the user's platform subscription. It mutates
// the user row only; content resolves through the subscription scope at
// check time. Devices beyond the plan's limit are dropped.
func (s *Store) GrantSubscription(tx *gorm.DB, userID, plan string, endAt time.Time, maxDevices int) error {
	var user database.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	startAt := s.now()
	devices := truncateDevices(user.ActiveDevices, maxDevices)

	updates := map[string]interface{}{
		"subscription_plan":        plan,
		"subscription_start_at":    startAt,
		"subscription_end_at":      endAt,
		"subscription_max_devices": maxDevices,
		"active_devices":           devices,
	}
	if err := tx.Model(&user).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to grant subscription: %w", err)
	}

	logger.Info("Subscription granted: user=%s plan=%s until=%s", userID, plan, endAt.Format(time.RFC3339))
	return nil
}

func truncateDevices(raw string, max int) string {
	if raw == "" || max <= 0 {
		return raw
	}
	var devices []string
	if err := json.Unmarshal([]byte(raw), &devices); err != nil {
		return raw
	}
	if len(devices) <= max {
		return raw
	}
	out, err := json.Marshal(devices[:max])
	if err != nil {
		return raw
	}
	return string(out)
}

// AccessDecision is the result of an access check.
type AccessDecision struct {
	HasAccess bool                      `json:"hasAccess"`
	Scope     database.EntitlementScope `json:"scope,omitempty"`
	ExpiresAt *time.Time                `json:"expiresAt,omitempty"`
}

// Check resolves whether the user may access the content. Resolution order:
// owner, title, series, subscription, free. Missing rows resolve to no
// access rather than an error.
func (s *Store) Check(userID, contentID string) AccessDecision {
	now := s.now()

	var content database.Content
	if err := s.db.First(&content, "id = ?", contentID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Access check failed to load content %s: %v", contentID, err)
		}
		return AccessDecision{}
	}

	if content.OwnerID != "" && content.OwnerID == userID {
		return AccessDecision{HasAccess: true, Scope: database.ScopeOwner}
	}

	if ent := s.activeEntitlement(userID, contentID, database.ScopeTitle, now); ent != nil {
		return AccessDecision{HasAccess: true, Scope: database.ScopeTitle, ExpiresAt: ent.ExpiresAt}
	}

	seriesID := seriesScopeTarget(&content)
	if seriesID != "" {
		var ent database.Entitlement
		err := s.db.Where("user_id = ? AND series_id = ? AND scope = ? AND state = ?",
			userID, seriesID, database.ScopeSeries, database.EntitlementActive).
			Order("created_at DESC").First(&ent).Error
		if err == nil && ent.ActiveAt(now) {
			return AccessDecision{HasAccess: true, Scope: database.ScopeSeries, ExpiresAt: ent.ExpiresAt}
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Access check failed to load series entitlement: %v", err)
		}
	}

	var user database.User
	if err := s.db.First(&user, "id = ?", userID).Error; err == nil {
		if user.Subscription.Active(now) {
			return AccessDecision{HasAccess: true, Scope: database.ScopeSubscription, ExpiresAt: user.Subscription.EndAt}
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("Access check failed to load user %s: %v", userID, err)
	}

	if content.ViewPrice.IsZero() {
		return AccessDecision{HasAccess: true, Scope: database.ScopeFree}
	}

	return AccessDecision{}
}

// seriesScopeTarget returns the series a series-scope entitlement would have
// to name to cover this content.
func seriesScopeTarget(content *database.Content) string {
	switch content.Kind {
	case database.KindSeries:
		return content.ID
	case database.KindEpisode:
		if content.ParentSeriesID != nil {
			return *content.ParentSeriesID
		}
	}
	return ""
}

func (s *Store) activeEntitlement(userID, contentID string, scope database.EntitlementScope, now time.Time) *database.Entitlement {
	var ent database.Entitlement
	err := s.db.Where("user_id = ? AND content_id = ? AND scope = ? AND state = ?",
		userID, contentID, scope, database.EntitlementActive).
		Order("created_at DESC").First(&ent).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Access check failed to load entitlement: %v", err)
		}
		return nil
	}
	if !ent.ActiveAt(now) {
		return nil
	}
	return &ent
}

// ExpireStale flips clock-expired active rows to expired. Scope evaluation
// already treats them as expired; this keeps reporting queries honest.
func (s *Store) ExpireStale() (int64, error) {
	res := s.db.Model(&database.Entitlement{}).
		Where("state = ? AND expires_at IS NOT NULL AND expires_at <= ?", database.EntitlementActive, s.now()).
		Update("state", database.EntitlementExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire stale entitlements: %w", res.Error)
	}
	return res.RowsAffected, nil
}
