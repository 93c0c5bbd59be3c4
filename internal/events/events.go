// Package events publishes print outcomes to an MQTT broker
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/thereceipt/order-printer/internal/dispatch"
)

// PrintEvent is the payload published for every finished job
type PrintEvent struct {
	JobID     string    `json:"jobId"`
	OrderID   int64     `json:"orderId"`
	Success   bool      `json:"success"`
	Fallback  bool      `json:"fallback"`
	PrinterID string    `json:"printerId,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message"`
	FilePath  string    `json:"filepath,omitempty"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPrintEvent builds the event for a dispatch result.
func NewPrintEvent(job dispatch.Job, res dispatch.Result) PrintEvent {
	return PrintEvent{
		JobID:     res.JobID,
		OrderID:   job.OrderID,
		Success:   res.Success,
		Fallback:  res.Fallback,
		PrinterID: res.PrinterID,
		Error:     res.Error,
		Message:   res.Message,
		FilePath:  res.FilePath,
		Attempts:  len(res.Trace),
		Timestamp: time.Now(),
	}
}

// Publisher receives finished jobs
type Publisher interface {
	Publish(job dispatch.Job, res dispatch.Result)
	Close()
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(dispatch.Job, dispatch.Result) {}
func (Nop) Close()                                {}

// Config holds MQTT connection settings
type Config struct {
	Broker   string
	ClientID string
	Topic    string // e.g. "orders/{order_id}/printed"
}

// MQTTPublisher queues events and publishes them from Start, so callers
// holding the dispatcher lock never wait on the broker.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	events chan PrintEvent
	logger *slog.Logger
}

// Connect dials the broker and returns a publisher.
func Connect(cfg Config, logger *slog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to MQTT broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "err", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return NewMQTTPublisher(client, cfg.Topic, logger), nil
}

// NewMQTTPublisher wraps an already connected client.
func NewMQTTPublisher(client mqtt.Client, topic string, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  topic,
		events: make(chan PrintEvent, 64),
		logger: logger,
	}
}

// Publish queues the event; it is dropped when the queue is full.
func (p *MQTTPublisher) Publish(job dispatch.Job, res dispatch.Result) {
	select {
	case p.events <- NewPrintEvent(job, res):
	default:
		p.logger.Warn("print event queue full, dropping event", "order_id", job.OrderID)
	}
}

// Start publishes queued events until ctx is cancelled.
func (p *MQTTPublisher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			if err := p.send(ev); err != nil {
				p.logger.Error("failed to publish print event", "order_id", ev.OrderID, "err", err)
			}
		}
	}
}

func (p *MQTTPublisher) send(ev PrintEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal print event: %w", err)
	}

	token := p.client.Publish(FormatTopic(p.topic, ev.OrderID), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timed out")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// FormatTopic replaces the {order_id} placeholder.
func FormatTopic(pattern string, orderID int64) string {
	return strings.ReplaceAll(pattern, "{order_id}", strconv.FormatInt(orderID, 10))
}
