package investment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solari/invest-engine/internal/metrics"
	"github.com/solari/invest-engine/internal/model"
	"github.com/solari/invest-engine/internal/store"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Signature"

// Deposit outcomes.
const (
	DepositCredited  = "credited"
	DepositDuplicate = "duplicate"
	DepositIgnored   = "ignored"
)

// PaymentEvent is the JSON body the gateway posts to the webhook.
type PaymentEvent struct {
	Reference string          `json:"reference"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// VerifySignature checks sig against body. An empty secret rejects everything.
func (s *Service) VerifySignature(body []byte, sig string) error {
	if len(s.webhookSecret) == 0 || sig == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(Sign(s.webhookSecret, body)), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// Deposit credits a confirmed gateway payment to the user's wallet. A
// reference seen before is acknowledged without crediting again.
func (s *Service) Deposit(ctx context.Context, ev PaymentEvent) (string, error) {
	if ev.Status != "success" {
		metrics.Deposits.WithLabelValues(DepositIgnored).Inc()
		return DepositIgnored, nil
	}
	if ev.Reference == "" || ev.UserID == "" || !ev.Amount.IsPositive() {
		return "", fmt.Errorf("%w: reference, user_id and positive amount are required", ErrInvalidRequest)
	}

	err := s.store.CreditWallet(ctx, &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    ev.UserID,
		Type:      model.TxDeposit,
		Amount:    ev.Amount,
		Status:    "completed",
		Reference: ev.Reference,
		CreatedAt: s.now().UTC(),
	})
	if errors.Is(err, store.ErrDuplicateReference) {
		metrics.Deposits.WithLabelValues(DepositDuplicate).Inc()
		slog.Info("duplicate deposit ignored", "reference", ev.Reference, "user", ev.UserID)
		return DepositDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	metrics.Deposits.WithLabelValues(DepositCredited).Inc()
	slog.Info("deposit credited", "reference", ev.Reference, "user", ev.UserID, "amount", ev.Amount.String())
	return DepositCredited, nil
}
