package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/database"
)

type recordingSender struct {
	sent []string
	fail bool
}

func (r *recordingSender) Send(to, subject, body string) error {
	if r.fail {
		return errors.New("smtp down")
	}
	r.sent = append(r.sent, to)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.OutboxMessage{}))
	return db
}

func TestDrainOnceDeliversPendingRows(t *testing.T) {
	db := setupTestDB(t)
	sender := &recordingSender{}
	worker := NewWorker(db, sender, time.Minute)

	require.NoError(t, Enqueue(db, KindPaymentConfirmation, EmailPayload{
		To: "viewer@example.com", Subject: "Payment received", Body: "Thanks",
	}))

	sent, err := worker.DrainOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"viewer@example.com"}, sender.sent)

	var msg database.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, database.OutboxSent, msg.State)
	assert.NotNil(t, msg.SentAt)

	// Draining again is a no-op.
	sent, err = worker.DrainOnce()
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestDrainRecordsFailuresAndParksAfterMaxAttempts(t *testing.T) {
	db := setupTestDB(t)
	sender := &recordingSender{fail: true}
	worker := NewWorker(db, sender, time.Minute)

	require.NoError(t, Enqueue(db, KindPaymentConfirmation, EmailPayload{To: "x@example.com"}))

	for i := 0; i < maxAttempts; i++ {
		_, err := worker.DrainOnce()
		require.NoError(t, err)
	}

	var msg database.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, database.OutboxFailed, msg.State)
	assert.Equal(t, maxAttempts, msg.Attempts)
	assert.Contains(t, msg.LastError, "smtp down")
}

func TestDrainSkipsUnknownKinds(t *testing.T) {
	db := setupTestDB(t)
	worker := NewWorker(db, &recordingSender{}, time.Minute)

	require.NoError(t, Enqueue(db, "mystery", map[string]string{"a": "b"}))

	sent, err := worker.DrainOnce()
	require.NoError(t, err)
	assert.Zero(t, sent)

	var msg database.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, 1, msg.Attempts)
}
