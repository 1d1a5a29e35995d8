// Package notify delivers approval traffic over NATS.
//
// Requests go out on buyerd.approvals.<approverID>; decisions come back
// on buyerd.decisions.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/approval"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
)

const (
	approvalSubjectPrefix = "buyerd.approvals."
	decisionSubject       = "buyerd.decisions"
)

// Connect dials NATS with the reconnect settings the daemon uses.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Publisher implements approval.Notifier over NATS.
type Publisher struct {
	nc     *nats.Conn
	logger *logging.Logger
}

// NewPublisher wraps an established connection.
func NewPublisher(nc *nats.Conn, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{nc: nc, logger: logger.Named("notify")}
}

// Notify publishes the request to the approver's subject.
func (p *Publisher) Notify(ctx context.Context, approverID string, req *approval.Request) error {
	if approverID == "" {
		return errors.New("approver id is required")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode approval request: %w", err)
	}
	subject := approvalSubjectPrefix + approverID
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish approval request: %w", err)
	}
	p.logger.Info(ctx, "approval request published",
		zap.String("subject", subject),
		zap.String("request.id", req.ID),
		zap.String("requester", req.Requester))
	return nil
}

// Decision is the inbound decide event.
type Decision struct {
	RequestID string `json:"request_id"`
	Accept    bool   `json:"accept"`
	Approver  string `json:"approver,omitempty"`
}

// DecisionConsumer forwards inbound decisions to a handler.
type DecisionConsumer struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *logging.Logger
}

// NewDecisionConsumer subscribes to the decision subject. Malformed
// events are logged and dropped; handler errors are logged so a flaky
// decision cannot take the subscription down.
func NewDecisionConsumer(nc *nats.Conn, handler func(ctx context.Context, d Decision) error, logger *logging.Logger) (*DecisionConsumer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &DecisionConsumer{nc: nc, logger: logger.Named("decisions")}

	sub, err := nc.Subscribe(decisionSubject, func(msg *nats.Msg) {
		ctx := context.Background()
		var d Decision
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			c.logger.Warn(ctx, "dropping malformed decision event", zap.Error(err))
			return
		}
		if d.RequestID == "" {
			c.logger.Warn(ctx, "dropping decision event without request id")
			return
		}
		if err := handler(ctx, d); err != nil {
			c.logger.Error(ctx, "decision handling failed",
				zap.String("request.id", d.RequestID), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", decisionSubject, err)
	}
	c.sub = sub
	return c, nil
}

// Close drains the subscription.
func (c *DecisionConsumer) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Drain()
}
