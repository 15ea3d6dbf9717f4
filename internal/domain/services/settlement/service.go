// Package settlement credits confirmed payments to user balances and tells
// the upstream server about them.
package settlement

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trxgate/trxgate/internal/domain/entities"
	"github.com/trxgate/trxgate/internal/infrastructure/config"
)

// UserStore is the slice of the user repository settlement writes to.
type UserStore interface {
	IncreaseBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Service settles confirmed payments.
type Service struct {
	users      UserStore
	notify     config.NotifyConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewService creates a settlement service.
func NewService(users UserStore, notify config.NotifyConfig, logger *zap.Logger) *Service {
	return &Service{
		users:      users,
		notify:     notify,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Settle credits the confirmed fiat to the user, releases their link state
// and notifies the upstream server. The notification is best-effort: the
// balance credit is the source of truth, the callback only wakes the UI.
func (s *Service) Settle(ctx context.Context, payment *entities.Payment) error {
	if payment.ConfirmedAt == nil || !payment.ConfirmedFiat.Valid {
		return fmt.Errorf("payment %s is not confirmed", payment.ID)
	}

	if err := s.users.IncreaseBalance(ctx, payment.UserID, payment.ConfirmedFiat.Decimal); err != nil {
		return fmt.Errorf("failed to credit user: %w", err)
	}

	if err := s.users.UpdateStatus(ctx, payment.UserID, entities.UserStatusMain); err != nil {
		s.logger.Warn("failed to reset user status",
			zap.Error(err),
			zap.String("user_id", payment.UserID.String()))
	}

	s.logger.Info("payment settled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("user_id", payment.UserID.String()),
		zap.String("credited", payment.ConfirmedFiat.Decimal.String()))

	if payment.Hash != nil {
		s.notifyUpstream(ctx, *payment.Hash)
	}

	return nil
}

func (s *Service) notifyUpstream(ctx context.Context, hash string) {
	if s.notify.ServerURL == "" {
		return
	}

	callbackURL := fmt.Sprintf("%s/verify_c.php?hash=%s&sec=%s",
		s.notify.ServerURL,
		url.QueryEscape(hash),
		url.QueryEscape(s.notify.Secret))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callbackURL, nil)
	if err != nil {
		s.logger.Warn("failed to build settlement callback", zap.Error(err))
		return
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("settlement callback failed", zap.Error(err), zap.String("hash", hash))
		return
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("settlement callback rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("hash", hash))
	}
}
