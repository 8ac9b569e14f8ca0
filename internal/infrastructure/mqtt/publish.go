package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize bounds a single message (1MB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgement.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishEvent marshals v as JSON and publishes it with the configured QoS
// without waiting for the acknowledgement. It is safe to call from engine
// and mirror hooks, which must not block; failures are logged.
func (c *Client) PublishEvent(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logWarn("MQTT event not encodable", "topic", topic, "error", err)
		return
	}
	qos := byte(c.cfg.QoS) //nolint:gosec // validated 0..2 by config
	if err := validatePublish(topic, payload, qos); err != nil {
		c.logWarn("MQTT event rejected", "topic", topic, "error", err)
		return
	}
	if !c.IsConnected() {
		return
	}

	token := c.client.Publish(topic, qos, retained, payload)
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			c.logWarn("MQTT publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			c.logWarn("MQTT publish failed", "topic", topic, "error", err)
		}
	}()
}

func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}
