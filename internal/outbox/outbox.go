// Package outbox implements the transactional outbox for asynchronous side
// effects. The payment side-effects transaction appends a row; a background
// worker drains pending rows and delivers them, so a mail failure can never
// poison a terminal payment transition.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cinemarwa/backend/internal/database"
	"github.com/cinemarwa/backend/internal/logger"
	"github.com/cinemarwa/backend/internal/mailer"
)

// Message kinds drained by the worker.
const (
	KindPaymentConfirmation = "payment_confirmation"
	KindWithdrawalCompleted = "withdrawal_completed"
	KindWithdrawalRejected  = "withdrawal_rejected"
)

// maxAttempts is how many deliveries are tried before a row is parked failed.
const maxAttempts = 5

// EmailPayload is the payload shape for mail-backed outbox kinds.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Enqueue appends a message inside the caller's transaction.
func Enqueue(tx *gorm.DB, kind string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode outbox payload: %w", err)
	}
	msg := &database.OutboxMessage{
		Kind:    kind,
		Payload: string(raw),
		State:   database.OutboxPending,
	}
	if err := tx.Create(msg).Error; err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}
	return nil
}

// Worker drains pending outbox rows on an interval.
type Worker struct {
	db       *gorm.DB
	sender   mailer.Sender
	interval time.Duration
	stop     chan struct{}
}

// NewWorker creates a drain worker.
func NewWorker(db *gorm.DB, sender mailer.Sender, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{db: db, sender: sender, interval: interval, stop: make(chan struct{})}
}

// Start runs the drain loop until Stop is called.
func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := w.DrainOnce(); err != nil {
					logger.Error("Outbox drain failed: %v", err)
				}
			case <-w.stop:
				return
			}
		}
	}()
}

// Stop halts the drain loop.
func (w *Worker) Stop() {
	close(w.stop)
}

// DrainOnce delivers every pending row once and returns how many were sent.
func (w *Worker) DrainOnce() (int, error) {
	var pending []database.OutboxMessage
	if err := w.db.Where("state = ?", database.OutboxPending).
		Order("created_at ASC").Limit(100).Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("failed to load pending outbox rows: %w", err)
	}

	sent := 0
	for i := range pending {
		msg := &pending[i]
		if err := w.deliver(msg); err != nil {
			w.recordFailure(msg, err)
			continue
		}
		now := time.Now().UTC()
		if err := w.db.Model(msg).Updates(map[string]interface{}{
			"state":   database.OutboxSent,
			"sent_at": now,
		}).Error; err != nil {
			return sent, fmt.Errorf("failed to mark outbox row sent: %w", err)
		}
		sent++
	}
	return sent, nil
}

func (w *Worker) deliver(msg *database.OutboxMessage) error {
	switch msg.Kind {
	case KindPaymentConfirmation, KindWithdrawalCompleted, KindWithdrawalRejected:
		var payload EmailPayload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return w.sender.Send(payload.To, payload.Subject, payload.Body)
	default:
		return fmt.Errorf("unknown outbox kind %q", msg.Kind)
	}
}

func (w *Worker) recordFailure(msg *database.OutboxMessage, cause error) {
	attempts := msg.Attempts + 1
	state := database.OutboxPending
	if attempts >= maxAttempts {
		state = database.OutboxFailed
		logger.Warn("Outbox message %s parked after %d attempts: %v", msg.ID, attempts, cause)
	}
	if err := w.db.Model(msg).Updates(map[string]interface{}{
		"attempts":   attempts,
		"state":      state,
		"last_error": cause.Error(),
	}).Error; err != nil {
		logger.Error("Failed to record outbox failure for %s: %v", msg.ID, err)
	}
}
