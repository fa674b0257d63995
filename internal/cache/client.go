// Package cache is the typed facade (C3) over the replicated topic store.
// Topics are modeled as Redis hashes; volatile command delivery rides
// Redis Pub/Sub. The replication and gossip protocol between cache peers is
// external and already concurrency-safe — this package only ever talks to
// its local peer.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/grayhome/domo-bridge/internal/cachevalue"
	"github.com/grayhome/domo-bridge/internal/infrastructure/config"
	"github.com/grayhome/domo-bridge/internal/infrastructure/logging"
	"github.com/grayhome/domo-bridge/internal/topic"
)

// Client is the Redis-backed implementation of the cache facade.
type Client struct {
	redis  *redis.Client
	prefix string
	log    *logging.Logger
}

// New constructs a Client from cache configuration. It does not connect;
// call Connect to verify reachability.
func New(cfg config.CacheConfig, log *logging.Logger) *Client {
	return &Client{
		redis: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.ChannelPrefix,
		log:    log.With("component", "cache"),
	}
}

// Connect verifies the Redis peer is reachable. A failure here is FatalIO:
// the bridge cannot start without its cache.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping cache: %v", ErrFatalIO, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (c *Client) Close() error {
	return c.redis.Close()
}

func topicIndexKey(name topic.Name) string {
	return fmt.Sprintf("topic-index:%s", name)
}

func topicKey(name topic.Name, uuid string) string {
	return fmt.Sprintf("topic:%s:%s", name, uuid)
}

// GetTopicName returns every currently known topic of the given name.
func (c *Client) GetTopicName(ctx context.Context, name topic.Name) ([]topic.Topic, error) {
	uuids, err := c.redis.SMembers(ctx, topicIndexKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrTransientIO, name, err)
	}

	topics := make([]topic.Topic, 0, len(uuids))
	for _, uuid := range uuids {
		t, err := c.GetTopicUUID(ctx, name, uuid)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// GetTopicUUID returns a single topic by name and uuid, or ErrNotFound.
func (c *Client) GetTopicUUID(ctx context.Context, name topic.Name, uuid string) (topic.Topic, error) {
	fields, err := c.redis.HGetAll(ctx, topicKey(name, uuid)).Result()
	if err != nil {
		return topic.Topic{}, fmt.Errorf("%w: reading %s/%s: %v", ErrTransientIO, name, uuid, err)
	}
	if len(fields) == 0 {
		return topic.Topic{}, ErrNotFound
	}

	value, err := decodeHashFields(fields)
	if err != nil {
		return topic.Topic{}, err
	}

	return topic.Topic{Name: name, UUID: uuid, Value: value}, nil
}

// WriteValue overwrites a topic's value. The write is idempotent up to
// last_update_timestamp: callers are responsible for stamping it (I2)
// before calling WriteValue, since this package has no notion of "now".
func (c *Client) WriteValue(ctx context.Context, name topic.Name, uuid string, value cachevalue.Value) error {
	fields, err := encodeHashFields(value)
	if err != nil {
		return err
	}

	pipe := c.redis.TxPipeline()
	pipe.Del(ctx, topicKey(name, uuid))
	if len(fields) > 0 {
		pipe.HSet(ctx, topicKey(name, uuid), fields)
	}
	pipe.SAdd(ctx, topicIndexKey(name), uuid)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: writing %s/%s: %v", ErrTransientIO, name, uuid, err)
	}

	c.publishEvent(ctx, Event{Kind: EventPersistentData, Topic: topic.Topic{Name: name, UUID: uuid, Value: value}})
	return nil
}

// encodeHashFields flattens a topic value's object fields into a Redis hash,
// JSON-encoding any non-scalar field so it round-trips through decodeHashFields.
func encodeHashFields(value cachevalue.Value) (map[string]interface{}, error) {
	obj, err := value.Object()
	if err != nil {
		return nil, fmt.Errorf("%w: topic value must be an object: %v", ErrTransientIO, err)
	}
	fields := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		raw, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("%w: encoding field %q: %v", ErrTransientIO, k, err)
		}
		fields[k] = string(raw)
	}
	return fields, nil
}

func decodeHashFields(fields map[string]string) (cachevalue.Value, error) {
	out := make(map[string]cachevalue.Value, len(fields))
	for k, raw := range fields {
		v, err := cachevalue.Parse([]byte(raw))
		if err != nil {
			return cachevalue.Value{}, fmt.Errorf("%w: decoding field %q: %v", ErrTransientIO, k, err)
		}
		out[k] = v
	}
	return cachevalue.FromObject(out), nil
}

// publishEvent broadcasts an event to the shared topics channel. Failures
// are logged and swallowed: publication is best-effort, the hash write
// already succeeded and is the source of truth.
func (c *Client) publishEvent(ctx context.Context, evt Event) {
	payload, err := json.Marshal(wireEvent{
		Kind:     evt.Kind,
		Name:     evt.Topic.Name,
		UUID:     evt.Topic.UUID,
		QueuedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		c.log.Error("encoding event for publish", "error", err)
		return
	}
	if err := c.redis.Publish(ctx, c.topicsChannel(), payload).Err(); err != nil {
		c.log.Warn("publishing topic event", "error", err)
	}
}

func (c *Client) topicsChannel() string {
	return fmt.Sprintf("%s:topics", c.prefix)
}

func (c *Client) commandsChannel(peerID string) string {
	return fmt.Sprintf("%s:commands:%s", c.prefix, peerID)
}
