// Package platform calls the vendor platform's account API, used by the
// sweeper to push differential credits back onto the originating card.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/protocol"
)

// Client posts signed requests to the vendor platform.
type Client struct {
	baseURL string
	appkey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient builds a client. An empty baseURL disables outbound calls,
// which keeps local environments from hitting the real platform.
func NewClient(baseURL, appkey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		appkey:  appkey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type refundResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RefundToCard credits amount back to the card/account behind orderNo. The
// request body carries the same keyed signature scheme the platform uses on
// its own pushes.
func (c *Client) RefundToCard(ctx context.Context, orderNo string, accountID, amount int64) error {
	if c.baseURL == "" {
		c.logger.Debug("vendor client disabled, skip refund",
			zap.String("order_no", orderNo))
		return nil
	}

	fields := map[string]string{
		"order_no":   orderNo,
		"account_id": strconv.FormatInt(accountID, 10),
		"amount":     strconv.FormatInt(amount, 10),
		"ts":         strconv.FormatInt(time.Now().Unix(), 10),
	}
	payload := map[string]string{}
	for k, v := range fields {
		payload[k] = v
	}
	payload["sign"] = protocol.SignFields(fields, c.appkey)

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/refund", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vendor: refund request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("vendor: refund returned status %d", resp.StatusCode)
	}

	var decoded refundResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("vendor: decode refund response: %w", err)
	}
	if decoded.Code != 0 {
		return fmt.Errorf("vendor: refund rejected: %d %s", decoded.Code, decoded.Message)
	}
	return nil
}
