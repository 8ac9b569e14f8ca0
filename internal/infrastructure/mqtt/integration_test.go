//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/regsync/internal/register"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func subscribeRaw(t *testing.T, topic string) <-chan []byte {
	t.Helper()
	opts := pahomqtt.NewClientOptions().AddBroker("tcp://127.0.0.1:1883").SetClientID("regsync-int-observer")
	observer := pahomqtt.NewClient(opts)
	if token := observer.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("observer connect failed: %v", token.Error())
	}
	t.Cleanup(func() { observer.Disconnect(100) })

	ch := make(chan []byte, 4)
	token := observer.Subscribe(topic, 1, func(_ pahomqtt.Client, m pahomqtt.Message) {
		ch <- m.Payload()
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("observer subscribe failed: %v", token.Error())
	}
	return ch
}

func TestIntegration_PublishEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "regsync-int-publish"

	c, err := Connect(cfg, "int-site")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	topic := c.Topics().Register(register.BankDSP, 0x44)
	received := subscribeRaw(t, topic)

	c.PublishEvent(topic, map[string]int{"value": 0x0C}, false)

	select {
	case payload := <-received:
		var got map[string]int
		if err := json.Unmarshal(payload, &got); err != nil || got["value"] != 0x0C {
			t.Errorf("payload = %s (%v)", payload, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}

func TestIntegration_GracefulCloseStatus(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "regsync-int-close"

	c, err := Connect(cfg, "int-close")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	received := subscribeRaw(t, c.Topics().Status())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case payload := <-received:
			var p statusPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				t.Fatalf("status payload: %v", err)
			}
			if p.Status == "offline" {
				if p.Reason != "graceful_shutdown" {
					t.Errorf("Reason = %q", p.Reason)
				}
				return
			}
		case <-deadline:
			t.Fatal("offline status not received")
		}
	}
}
