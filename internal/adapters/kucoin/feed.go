package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const balanceTopic = "/account/balance"

// Feed is the private websocket stream of account balance changes. Deposits
// show up here minutes before they appear in the REST history.
type Feed struct {
	client *Client
	logger *zap.Logger
}

// NewFeed creates a feed on top of an authenticated client.
func NewFeed(client *Client, logger *zap.Logger) *Feed {
	return &Feed{client: client, logger: logger}
}

// Listen connects to the private feed and invokes handler for every balance
// event until the context is cancelled or the connection drops. Callers own
// reconnection; a clean context cancellation returns ctx.Err().
func (f *Feed) Listen(ctx context.Context, handler func(BalanceEvent)) error {
	token, err := f.client.BulletPrivate(ctx)
	if err != nil {
		return err
	}

	server := token.InstanceServers[0]
	wsURL := fmt.Sprintf("%s?token=%s&connectId=%s", server.Endpoint, token.Token, uuid.New().String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	// The server opens with a welcome frame before accepting subscriptions.
	var welcome feedMessage
	if err := conn.ReadJSON(&welcome); err != nil {
		return fmt.Errorf("failed to read welcome frame: %w", err)
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome frame, got %q", welcome.Type)
	}

	subscribe := map[string]interface{}{
		"id":             uuid.New().String(),
		"type":           "subscribe",
		"topic":          balanceTopic,
		"privateChannel": true,
		"response":       true,
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	pingInterval := time.Duration(server.PingInterval) * time.Millisecond
	if pingInterval <= 0 {
		pingInterval = 18 * time.Second
	}

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go f.pingLoop(pingCtx, conn, pingInterval)

	// Close the connection when the context dies so the blocking read below
	// unwinds.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	f.logger.Info("listening on private balance feed")

	for {
		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed read failed: %w", err)
		}

		if msg.Type != "message" || msg.Topic != balanceTopic {
			continue
		}

		var event BalanceEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			f.logger.Warn("unparseable balance event", zap.Error(err))
			continue
		}

		handler(event)
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := feedMessage{ID: uuid.New().String(), Type: "ping"}
			if err := conn.WriteJSON(ping); err != nil {
				f.logger.Debug("feed ping failed", zap.Error(err))
				return
			}
		}
	}
}
