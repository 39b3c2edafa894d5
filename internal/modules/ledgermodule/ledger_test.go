package ledgermodule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/apperr"
	"github.com/cinemarwa/backend/internal/database"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&database.User{},
		&database.Payment{},
		&database.Withdrawal{},
	)
	require.NoError(t, err)

	return db
}

func createFilmmaker(t *testing.T, db *gorm.DB, pending int64) *database.User {
	t.Helper()
	user := &database.User{
		Name:  "Test Filmmaker",
		Email: "filmmaker@example.com",
		Role:  database.RoleFilmmaker,
		Balances: database.Balances{
			Pending:     decimal.NewFromInt(pending),
			TotalEarned: decimal.NewFromInt(pending),
		},
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createPendingPayment(t *testing.T, db *gorm.DB, ownerID string) *database.Payment {
	t.Helper()
	payment := &database.Payment{
		UserID:       "viewer-1",
		Kind:         database.PaymentMovieWatch,
		Method:       database.MethodMomo,
		Amount:       decimal.NewFromInt(1000),
		Currency:     "RWF",
		CreatorShare: decimal.NewFromInt(700),
		PlatformShare: decimal.NewFromInt(300),
		OwnerID:      &ownerID,
		State:        database.PaymentPending,
		ReferenceID:  "ref-" + ownerID,
	}
	require.NoError(t, db.Create(payment).Error)
	return payment
}

func TestAdvancePaymentIsMonotonic(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	owner := createFilmmaker(t, db, 0)
	payment := createPendingPayment(t, db, owner.ID)

	got, err := ledger.AdvancePayment(db, payment.ID, database.PaymentSucceeded, AdvanceDetails{GatewayTxID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, database.PaymentSucceeded, got.State)
	assert.Equal(t, "tx-1", got.GatewayTxID)

	// Same state again is a no-op.
	got, err = ledger.AdvancePayment(db, payment.ID, database.PaymentSucceeded, AdvanceDetails{})
	require.NoError(t, err)
	assert.Equal(t, database.PaymentSucceeded, got.State)

	// Terminal states are final.
	_, err = ledger.AdvancePayment(db, payment.ID, database.PaymentFailed, AdvanceDetails{})
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	_, err = ledger.AdvancePayment(db, payment.ID, database.PaymentPending, AdvanceDetails{})
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
}

func TestAdvancePaymentUnknownID(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)

	_, err := ledger.AdvancePayment(db, "missing", database.PaymentSucceeded, AdvanceDetails{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreditCreatorAppliesExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	owner := createFilmmaker(t, db, 0)
	payment := createPendingPayment(t, db, owner.ID)

	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.CreditCreator(db, payment))
	}

	var user database.User
	require.NoError(t, db.First(&user, "id = ?", owner.ID).Error)
	assert.Equal(t, "700", user.Balances.Pending.String())
	assert.Equal(t, "700", user.Balances.TotalEarned.String())

	var fresh database.Payment
	require.NoError(t, db.First(&fresh, "id = ?", payment.ID).Error)
	assert.True(t, fresh.LedgerApplied)
}

func TestCreditCreatorSkipsZeroShare(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	owner := createFilmmaker(t, db, 0)

	payment := &database.Payment{
		UserID:      "viewer-1",
		Kind:        database.PaymentSubscriptionUpgrade,
		Method:      database.MethodMomo,
		Amount:      decimal.NewFromInt(10000),
		Currency:    "RWF",
		State:       database.PaymentPending,
		ReferenceID: "ref-sub",
	}
	require.NoError(t, db.Create(payment).Error)

	require.NoError(t, ledger.CreditCreator(db, payment))

	var user database.User
	require.NoError(t, db.First(&user, "id = ?", owner.ID).Error)
	assert.True(t, user.Balances.Pending.IsZero())
}

func TestWithdrawalBalanceLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	owner := createFilmmaker(t, db, 1500)
	amount := decimal.NewFromInt(1000)

	require.NoError(t, ledger.ReserveForWithdrawal(db, owner.ID, amount))

	var user database.User
	require.NoError(t, db.First(&user, "id = ?", owner.ID).Error)
	assert.Equal(t, "500", user.Balances.Pending.String())
	assert.Equal(t, "1000", user.Balances.Processing.String())

	require.NoError(t, ledger.CompleteWithdrawal(db, owner.ID, amount))
	require.NoError(t, db.First(&user, "id = ?", owner.ID).Error)
	assert.True(t, user.Balances.Processing.IsZero())
	assert.Equal(t, "1000", user.Balances.Available.String())
	assert.Equal(t, "1000", user.Balances.Withdrawn.String())

	// Total earned is conserved across the whole lifecycle.
	sum := user.Balances.Pending.Add(user.Balances.Processing).Add(user.Balances.Available)
	assert.True(t, sum.Equal(user.Balances.TotalEarned), "sum %s != totalEarned %s", sum, user.Balances.TotalEarned)
}

func TestReserveForWithdrawalInsufficient(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	owner := createFilmmaker(t, db, 1500)

	err := ledger.ReserveForWithdrawal(db, owner.ID, decimal.NewFromInt(2000))
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	var user database.User
	require.NoError(t, db.First(&user, "id = ?", owner.ID).Error)
	assert.Equal(t, "1500", user.Balances.Pending.String())
	assert.True(t, user.Balances.Processing.IsZero())
}

func TestRejectWithdrawalRestoresPending(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	owner := createFilmmaker(t, db, 1500)
	amount := decimal.NewFromInt(1000)

	require.NoError(t, ledger.ReserveForWithdrawal(db, owner.ID, amount))
	require.NoError(t, ledger.RejectWithdrawal(db, owner.ID, amount))

	var user database.User
	require.NoError(t, db.First(&user, "id = ?", owner.ID).Error)
	assert.Equal(t, "1500", user.Balances.Pending.String())
	assert.True(t, user.Balances.Processing.IsZero())
}

func TestFinanceReport(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	owner := createFilmmaker(t, db, 1500)

	completed := &database.Withdrawal{
		UserID: owner.ID,
		Amount: decimal.NewFromInt(400),
		Kind:   database.WithdrawalManual,
		State:  database.WithdrawalCompleted,
	}
	pending := &database.Withdrawal{
		UserID: owner.ID,
		Amount: decimal.NewFromInt(300),
		Kind:   database.WithdrawalManual,
		State:  database.WithdrawalPending,
	}
	adminFee := &database.Withdrawal{
		UserID: "viewer-1",
		Amount: decimal.NewFromInt(300),
		Kind:   database.WithdrawalAdminFee,
		State:  database.WithdrawalCompleted,
	}
	require.NoError(t, db.Create(completed).Error)
	require.NoError(t, db.Create(pending).Error)
	require.NoError(t, db.Create(adminFee).Error)

	report, err := ledger.Finance(owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "400", report.TotalPaidOut.String())
	assert.Equal(t, "300", report.PendingWithdrawal.String())
	assert.Equal(t, "1500", report.Balances.Pending.String())
	assert.Len(t, report.Withdrawals, 2)
}
