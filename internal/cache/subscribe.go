package cache

import (
	"context"
	"encoding/json"
	"time"
)

// commandEnvelope is the JSON shape published to a peer's commands channel.
type commandEnvelope struct {
	CommandType CommandType     `json:"command_type"`
	Value       json.RawMessage `json:"value"`
}

// Subscribe opens the facade's event stream for this bridge instance:
// VolatileData commands addressed to peerID, plus the shared
// PersistentData/Discovered/Removed broadcast channel. It resubscribes with
// backoff on any Pub/Sub error rather than trusting a single long-lived
// connection never to drop; messages published while no subscription is
// open are not replayed, so delivery is not at-least-once. Redis Pub/Sub
// preserves per-publisher ordering, so a single subscriber connection keeps
// per-peer order while it is up.
//
// The returned channel is closed when ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, peerID string) (<-chan Event, error) {
	out := make(chan Event, 64)

	go func() {
		defer close(out)
		backoff := 500 * time.Millisecond
		const maxBackoff = 30 * time.Second

		for {
			if ctx.Err() != nil {
				return
			}

			err := c.runSubscription(ctx, peerID, out)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.log.Warn("cache subscription dropped, resubscribing", "error", err, "backoff", backoff)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}()

	return out, nil
}

func (c *Client) runSubscription(ctx context.Context, peerID string, out chan<- Event) error {
	pubsub := c.redis.Subscribe(ctx, c.commandsChannel(peerID), c.topicsChannel())
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := c.decodeMessage(msg.Channel, msg.Payload, peerID)
			if err != nil {
				c.log.Warn("dropping malformed cache event", "error", err)
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (c *Client) decodeMessage(channel, payload string, peerID string) (Event, error) {
	if channel == c.commandsChannel(peerID) {
		var env commandEnvelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return Event{}, err
		}
		val, err := decodeCachevalueJSON(env.Value)
		if err != nil {
			return Event{}, err
		}
		return Event{
			Kind:    EventVolatileData,
			Command: &Command{Type: env.CommandType, Value: val},
		}, nil
	}

	var wire wireEvent
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return Event{}, err
	}
	return Event{
		Kind:  wire.Kind,
		Topic: topicFromWireEvent(wire),
	}, nil
}
