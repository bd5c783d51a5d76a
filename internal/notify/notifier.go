// Package notify publishes order status changes for interested observers
// (apps polling, dashboards) over a redis channel.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channel = "orders:status"

// Event is one order status change.
type Event struct {
	OrderNo  string `json:"order_no"`
	DeviceNo string `json:"device_no"`
	Status   string `json:"status"`
	At       int64  `json:"at"`
}

// Notifier publishes order status events. Publishing is best effort: a
// failed publish is logged and never fails the caller.
type Notifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewNotifier builds a notifier.
func NewNotifier(client *redis.Client, logger *zap.Logger) *Notifier {
	return &Notifier{client: client, logger: logger}
}

// OrderStatus publishes a status change for an order.
func (n *Notifier) OrderStatus(ctx context.Context, orderNo, deviceNo, orderStatus string) {
	raw, err := json.Marshal(Event{
		OrderNo:  orderNo,
		DeviceNo: deviceNo,
		Status:   orderStatus,
		At:       time.Now().Unix(),
	})
	if err != nil {
		return
	}
	if err := n.client.Publish(ctx, channel, raw).Err(); err != nil {
		n.logger.Warn("status publish failed",
			zap.String("order_no", orderNo),
			zap.Error(err))
	}
}
