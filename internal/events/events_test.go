package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/thereceipt/order-printer/internal/dispatch"
	"github.com/thereceipt/order-printer/internal/logging"
)

type doneToken struct{ done chan struct{} }

func newDoneToken() *doneToken {
	ch := make(chan struct{})
	close(ch)
	return &doneToken{done: ch}
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return nil }

type published struct {
	topic   string
	payload []byte
}

// fakeClient implements only what the publisher calls.
type fakeClient struct {
	mqtt.Client
	mu   sync.Mutex
	msgs []published
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, payload: payload.([]byte)})
	return newDoneToken()
}

func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

func TestFormatTopic(t *testing.T) {
	if got := FormatTopic("orders/{order_id}/printed", 42); got != "orders/42/printed" {
		t.Errorf("Unexpected topic %q", got)
	}
	if got := FormatTopic("prints", 42); got != "prints" {
		t.Errorf("Expected topic without placeholder unchanged, got %q", got)
	}
}

func TestMQTTPublisher_PublishesResult(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisher(client, "orders/{order_id}/printed", logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	p.Publish(dispatch.Job{OrderID: 42}, dispatch.Result{
		JobID:    "job-1",
		Success:  true,
		Fallback: true,
		FilePath: "/tmp/pedido_42.txt",
		Trace:    []dispatch.Attempt{{Strategy: dispatch.StrategyDefault}, {Strategy: dispatch.StrategyFallback}},
	})

	deadline := time.Now().Add(time.Second)
	for len(client.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	msgs := client.messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected one message, got %d", len(msgs))
	}
	if msgs[0].topic != "orders/42/printed" {
		t.Errorf("Unexpected topic %q", msgs[0].topic)
	}

	var ev PrintEvent
	if err := json.Unmarshal(msgs[0].payload, &ev); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}
	if ev.OrderID != 42 || !ev.Fallback || ev.Attempts != 2 || ev.JobID != "job-1" {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestMQTTPublisher_DropsWhenFull(t *testing.T) {
	p := NewMQTTPublisher(&fakeClient{}, "t", logging.Discard())
	for i := 0; i < cap(p.events)+10; i++ {
		p.Publish(dispatch.Job{OrderID: int64(i)}, dispatch.Result{})
	}
	if len(p.events) != cap(p.events) {
		t.Errorf("Expected full queue, got %d", len(p.events))
	}
}
