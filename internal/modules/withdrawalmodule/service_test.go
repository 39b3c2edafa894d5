package withdrawalmodule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/config"
	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/gateway"
)

type fakeDisburser struct {
	calls []int64
	err   error
}

func (f *fakeDisburser) SendMoney(ctx context.Context, amountRWF int64, recipientPhone, referenceID, description string) (*gateway.DisburseResult, error) {
	f.calls = append(f.calls, amountRWF)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.DisburseResult{ReferenceID: referenceID, ProviderTxID: "disb-1"}, nil
}

func setupService(t *testing.T, disburser gateway.Disburser) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.User{}, &database.Withdrawal{}, &database.OutboxMessage{}))

	cfg := &config.Config{Payments: config.PaymentsConfig{MinimumWithdrawal: 500}}
	return NewService(db, cfg, disburser), db
}

func seedFilmmaker(t *testing.T, db *gorm.DB, pending int64) *database.User {
	u := &database.User{
		ID: "maker-1", Name: "Maker", Email: "maker@example.com",
		Role: database.RoleFilmmaker, PayoutPhone: "0781112233",
		Balances: database.Balances{
			Pending:     decimal.NewFromInt(pending),
			TotalEarned: decimal.NewFromInt(pending),
		},
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func reloadBalances(t *testing.T, db *gorm.DB, userID string) database.Balances {
	var u database.User
	require.NoError(t, db.First(&u, "id = ?", userID).Error)
	return u.Balances
}

func TestWithdrawalLifecycle(t *testing.T) {
	disburser := &fakeDisburser{}
	s, db := setupService(t, disburser)
	maker := seedFilmmaker(t, db, 700)

	w, err := s.Request(maker.ID, WithdrawalRequest{Amount: "600"})
	require.NoError(t, err)
	assert.Equal(t, database.WithdrawalPending, w.State)
	assert.Equal(t, "0781112233", w.Destination)

	b := reloadBalances(t, db, maker.ID)
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(100)))
	assert.True(t, b.Processing.Equal(decimal.NewFromInt(600)))

	w, err = s.Approve(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, database.WithdrawalProcessing, w.State)
	assert.Equal(t, "disb-1", w.GatewayRef)
	assert.Equal(t, []int64{600}, disburser.calls)

	w, err = s.Complete(w.ID)
	require.NoError(t, err)
	assert.Equal(t, database.WithdrawalCompleted, w.State)
	require.NotNil(t, w.CompletedAt)

	b = reloadBalances(t, db, maker.ID)
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(100)))
	assert.True(t, b.Processing.IsZero())
	assert.True(t, b.Available.Equal(decimal.NewFromInt(600)))
	assert.True(t, b.Withdrawn.Equal(decimal.NewFromInt(600)))

	// Earnings are conserved across the whole lifecycle.
	sum := b.Pending.Add(b.Processing).Add(b.Available)
	assert.True(t, b.TotalEarned.Equal(sum), "total %s vs sum %s", b.TotalEarned, sum)

	// Completed mail was enqueued.
	var count int64
	require.NoError(t, db.Model(&database.OutboxMessage{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Terminal rows admit no further transitions.
	_, err = s.Complete(w.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
	_, err = s.Reject(w.ID, "late")
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
}

func TestRequestBelowMinimumRejected(t *testing.T) {
	s, db := setupService(t, &fakeDisburser{})
	maker := seedFilmmaker(t, db, 700)

	_, err := s.Request(maker.ID, WithdrawalRequest{Amount: "499"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	b := reloadBalances(t, db, maker.ID)
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(700)))
}

func TestRequestAbovePendingRejected(t *testing.T) {
	s, db := setupService(t, &fakeDisburser{})
	maker := seedFilmmaker(t, db, 700)

	_, err := s.Request(maker.ID, WithdrawalRequest{Amount: "800"})
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	b := reloadBalances(t, db, maker.ID)
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(700)))
	assert.True(t, b.Processing.IsZero())

	var count int64
	require.NoError(t, db.Model(&database.Withdrawal{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRejectRestoresPendingBalance(t *testing.T) {
	s, db := setupService(t, &fakeDisburser{})
	maker := seedFilmmaker(t, db, 700)

	w, err := s.Request(maker.ID, WithdrawalRequest{Amount: "600"})
	require.NoError(t, err)

	w, err = s.Reject(w.ID, "suspicious destination")
	require.NoError(t, err)
	assert.Equal(t, database.WithdrawalRejected, w.State)
	assert.Equal(t, "suspicious destination", w.Reason)

	b := reloadBalances(t, db, maker.ID)
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(700)))
	assert.True(t, b.Processing.IsZero())
}

func TestApproveGatewayFailureKeepsReservation(t *testing.T) {
	disburser := &fakeDisburser{err: errors.New("gateway down")}
	s, db := setupService(t, disburser)
	maker := seedFilmmaker(t, db, 700)

	w, err := s.Request(maker.ID, WithdrawalRequest{Amount: "600"})
	require.NoError(t, err)

	_, err = s.Approve(context.Background(), w.ID)
	assert.ErrorIs(t, err, apperr.ErrGatewayFailure)

	// Still pending with the reservation intact, ready for a retry.
	fresh, err := s.Get(w.ID)
	require.NoError(t, err)
	assert.Equal(t, database.WithdrawalPending, fresh.State)

	b := reloadBalances(t, db, maker.ID)
	assert.True(t, b.Processing.Equal(decimal.NewFromInt(600)))

	// Retry after the gateway recovers.
	disburser.err = nil
	fresh, err = s.Approve(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, database.WithdrawalProcessing, fresh.State)
}

// blockingDisburser parks inside SendMoney until released, so a test can
// hold one approval in flight while issuing another.
type blockingDisburser struct {
	entered chan struct{}
	release chan struct{}
	calls   int32
}

func (d *blockingDisburser) SendMoney(ctx context.Context, amountRWF int64, recipientPhone, referenceID, description string) (*gateway.DisburseResult, error) {
	atomic.AddInt32(&d.calls, 1)
	d.entered <- struct{}{}
	<-d.release
	return &gateway.DisburseResult{ReferenceID: referenceID, ProviderTxID: "disb-1"}, nil
}

func TestConcurrentApprovalsDisburseOnce(t *testing.T) {
	disburser := &blockingDisburser{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s, db := setupService(t, disburser)
	maker := seedFilmmaker(t, db, 700)

	w, err := s.Request(maker.ID, WithdrawalRequest{Amount: "600"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Approve(context.Background(), w.ID)
		done <- err
	}()
	<-disburser.entered

	// The second approval loses the state claim while the first is still at
	// the gateway.
	_, err = s.Approve(context.Background(), w.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	close(disburser.release)
	require.NoError(t, <-done)

	assert.EqualValues(t, 1, atomic.LoadInt32(&disburser.calls))

	fresh, err := s.Get(w.ID)
	require.NoError(t, err)
	assert.Equal(t, database.WithdrawalProcessing, fresh.State)

	b := reloadBalances(t, db, maker.ID)
	assert.True(t, b.Processing.Equal(decimal.NewFromInt(600)))
}

func TestRejectRefusesProcessingRow(t *testing.T) {
	disburser := &fakeDisburser{}
	s, db := setupService(t, disburser)
	maker := seedFilmmaker(t, db, 700)

	w, err := s.Request(maker.ID, WithdrawalRequest{Amount: "600"})
	require.NoError(t, err)
	_, err = s.Approve(context.Background(), w.ID)
	require.NoError(t, err)

	// The money is already on its way; the reservation must not return to a
	// withdrawable balance.
	_, err = s.Reject(w.ID, "changed my mind")
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	fresh, err := s.Get(w.ID)
	require.NoError(t, err)
	assert.Equal(t, database.WithdrawalProcessing, fresh.State)

	b := reloadBalances(t, db, maker.ID)
	assert.True(t, b.Pending.Equal(decimal.NewFromInt(100)))
	assert.True(t, b.Processing.Equal(decimal.NewFromInt(600)))
	assert.Len(t, disburser.calls, 1)
}

func TestConcurrentCompletionsSettleOnce(t *testing.T) {
	s, db := setupService(t, &fakeDisburser{})
	maker := seedFilmmaker(t, db, 700)

	w, err := s.Request(maker.ID, WithdrawalRequest{Amount: "600"})
	require.NoError(t, err)
	_, err = s.Approve(context.Background(), w.ID)
	require.NoError(t, err)

	_, err = s.Complete(w.ID)
	require.NoError(t, err)
	_, err = s.Complete(w.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	// A replay must not move the balance twice.
	b := reloadBalances(t, db, maker.ID)
	assert.True(t, b.Available.Equal(decimal.NewFromInt(600)))
	assert.True(t, b.Processing.IsZero())
}

func TestApproveRejectsTrackingRows(t *testing.T) {
	s, db := setupService(t, &fakeDisburser{})
	maker := seedFilmmaker(t, db, 700)

	auto := &database.Withdrawal{
		UserID: maker.ID, Amount: decimal.NewFromInt(300), Currency: "RWF",
		Kind: database.WithdrawalAdminFee, State: database.WithdrawalCompleted,
	}
	require.NoError(t, db.Create(auto).Error)

	_, err := s.Approve(context.Background(), auto.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFinanceReportAggregates(t *testing.T) {
	s, db := setupService(t, &fakeDisburser{})
	maker := seedFilmmaker(t, db, 1500)

	w1, err := s.Request(maker.ID, WithdrawalRequest{Amount: "600"})
	require.NoError(t, err)
	_, err = s.Approve(context.Background(), w1.ID)
	require.NoError(t, err)
	_, err = s.Complete(w1.ID)
	require.NoError(t, err)

	_, err = s.Request(maker.ID, WithdrawalRequest{Amount: "500"})
	require.NoError(t, err)

	report, err := s.Finance(maker.ID)
	require.NoError(t, err)
	assert.True(t, report.TotalPaidOut.Equal(decimal.NewFromInt(600)))
	assert.True(t, report.PendingWithdrawal.Equal(decimal.NewFromInt(500)))
	assert.Len(t, report.Withdrawals, 2)
}
