package revenue

import (
	"github.com/cinemarwa/backend/internal/config"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/money"
)

// Split is the outcome of applying the distribution policy to one payment.
type Split struct {
	CreatorShare    money.Money
	PlatformShare   money.Money
	CreatorPercent  int64
	PlatformPercent int64
}

// Policy computes the filmmaker/platform split for a payment kind. The
// percentages come from configuration; content purchases pay the filmmaker
// share, subscriptions go entirely to the platform.
type Policy struct {
	filmmakerPct int64
	platformPct  int64
}

// NewPolicy builds the policy from the configured share percentages.
func NewPolicy(cfg config.PaymentsConfig) *Policy {
	return &Policy{
		filmmakerPct: cfg.FilmmakerSharePercent,
		platformPct:  cfg.AdminSharePercent,
	}
}

// Split divides amount between the creator and the platform for the given
// payment kind. CreatorShare + PlatformShare always equals amount exactly.
func (p *Policy) Split(kind database.PaymentKind, amount money.Money) Split {
	creatorPct := p.filmmakerPct
	platformPct := p.platformPct
	if !kind.ContentKind() {
		creatorPct = 0
		platformPct = 100
	}

	creator, platform := money.Distribute(amount, creatorPct)
	return Split{
		CreatorShare:    creator,
		PlatformShare:   platform,
		CreatorPercent:  creatorPct,
		PlatformPercent: platformPct,
	}
}
