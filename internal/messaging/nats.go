package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"

	"ticketpay/internal/logger"
)

var ErrNotConnected = errors.New("NATS streaming is not connected")

type NATSClient struct {
	conn stan.Conn
}

type Config struct {
	URL       string
	ClusterID string
	ClientID  string
	Enabled   bool
}

// NewNATSClient connects to NATS Streaming. A disabled config yields a client whose
// Publish returns ErrNotConnected; callers treat publishing as best effort.
func NewNATSClient(cfg Config) (*NATSClient, error) {
	if !cfg.Enabled {
		logger.Get().Info("NATS streaming disabled")
		return &NATSClient{}, nil
	}

	// unique client id so several replicas can share a cluster
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, clientID,
		stan.NatsURL(cfg.URL),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			logger.Get().Error("NATS streaming connection lost", "error", reason)
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	logger.Get().Info("Connected to NATS Streaming",
		"url", cfg.URL, "cluster", cfg.ClusterID, "client", clientID)

	return &NATSClient{conn: conn}, nil
}

func (nc *NATSClient) Connected() bool {
	return nc != nil && nc.conn != nil
}

func (nc *NATSClient) Publish(subject string, data interface{}) error {
	if !nc.Connected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := nc.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	logger.Get().Debug("Published message", "subject", subject)
	return nil
}

func (nc *NATSClient) Subscribe(subject string, handler stan.MsgHandler) (stan.Subscription, error) {
	if !nc.Connected() {
		return nil, ErrNotConnected
	}

	sub, err := nc.conn.Subscribe(subject, handler, stan.DurableName(subject+"-durable"))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	logger.Get().Info("Subscribed", "subject", subject)
	return sub, nil
}

// SubscribeQueue registers a durable queue subscriber with manual acks; handler must
// call msg.Ack once the message is processed.
func (nc *NATSClient) SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error) {
	if !nc.Connected() {
		return nil, ErrNotConnected
	}

	sub, err := nc.conn.QueueSubscribe(subject, queue, handler,
		stan.DurableName(subject+"-"+queue+"-durable"),
		stan.SetManualAckMode(),
		stan.AckWait(30*time.Second),
		stan.MaxInflight(1))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: %w", subject, err)
	}

	logger.Get().Info("Subscribed", "subject", subject, "queue", queue)
	return sub, nil
}

func (nc *NATSClient) Close() error {
	if nc.Connected() {
		return nc.conn.Close()
	}
	return nil
}
