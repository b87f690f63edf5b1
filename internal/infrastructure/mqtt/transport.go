package mqtt

import (
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize matches the default broker message limit.
const maxPayloadSize = 1 << 20

// Publish sends payload to a topic and waits for the broker to accept it.
//
// Parameters:
//   - topic: a concrete topic name; + and # are rejected
//   - payload: the message body, at most 1MB
//   - qos: 0, 1 or 2
//   - retained: whether the broker keeps the message for late subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPayloadTooLarge or
//     ErrNotConnected for rejected calls; ErrPublishFailed wrapping the
//     broker's error or a timeout otherwise
//
// Device acknowledgements are published unretained. Only the server status
// on aigrow/system/status is retained.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateTopicName(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// Subscribe registers handler for every message matching filter.
//
// Parameters:
//   - filter: a topic filter; + matches one level, # the remainder
//   - qos: the maximum QoS the broker should deliver with
//   - handler: called on paho's goroutines, with panics recovered
//
// Returns:
//   - error: nil once the broker has granted the subscription
//
// The subscription is remembered and replayed after every reconnect,
// because the server connects with a clean session.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validateTopicFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Tracked before the broker answers so a reconnect in between still
	// restores it.
	c.track(subscription{topic: filter, qos: qos, handler: handler})

	err := await(c.client.Subscribe(filter, qos, c.wrapHandler(handler)), defaultPublishTimeout, ErrSubscribeFailed)
	if err != nil {
		c.untrack(filter)
	}
	return err
}

// Unsubscribe drops a subscription made with Subscribe. Messages already in
// flight may still reach the handler.
func (c *Client) Unsubscribe(filter string) error {
	if err := validateTopicFilter(filter); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrack(filter)
	return await(c.client.Unsubscribe(filter), defaultPublishTimeout, ErrUnsubscribeFailed)
}

func (c *Client) track(sub subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) untrack(filter string) {
	c.subMu.Lock()
	delete(c.subscriptions, filter)
	c.subMu.Unlock()
}

// await blocks on a paho token and maps a timeout or broker error onto kind.
func await(token pahomqtt.Token, timeout time.Duration, kind error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", kind, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

// validateTopicName checks a topic used for publishing. Wildcards are only
// meaningful in subscriptions.
func validateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#\x00") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	return nil
}

// validateTopicFilter checks a subscription filter: wildcards must occupy a
// whole level and # must be the last one.
func validateTopicFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidTopic, filter)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q has # before the last level", ErrInvalidTopic, filter)
		case level != "#" && level != "+" && strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q mixes a wildcard into level %q", ErrInvalidTopic, filter, level)
		}
	}
	return nil
}
