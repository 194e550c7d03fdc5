package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/mentorlink/relay/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisEnvelope wraps a delivery with the originating instance ID so a
// node can skip its own published envelopes.
type redisEnvelope struct {
	InstanceID string         `json:"instance_id"`
	Principal  string         `json:"principal"`
	Envelope   types.Envelope `json:"envelope"`
}

// RedisBridge relays delivery envelopes between relay instances via
// Redis pub/sub.
type RedisBridge struct {
	client     *redis.Client
	prefix     string
	instanceID string
	target     DeliveryTarget
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge that uses Redis pub/sub for
// cross-instance delivery.
func NewRedisBridge(cfg *RedisConfig, target DeliveryTarget, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:     client,
		prefix:     cfg.Prefix,
		instanceID: uuid.New().String(),
		target:     target,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the delivery channel and begins relaying envelopes.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	channel := b.prefix + "deliver"
	sub := b.client.Subscribe(b.ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		return err
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", channel).
		Msg("redis bridge started")
	return nil
}

// Publish hands an envelope for the principal to all other instances.
func (b *RedisBridge) Publish(principal string, env types.Envelope) error {
	wrapped := redisEnvelope{
		InstanceID: b.instanceID,
		Principal:  principal,
		Envelope:   env,
	}
	data, err := json.Marshal(wrapped)
	if err != nil {
		return err
	}
	return b.client.Publish(b.ctx, b.prefix+"deliver", data).Err()
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// listen reads envelopes from the Redis subscription and attempts local
// delivery.
func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleRedisMessage(msg)
		case <-b.ctx.Done():
			return
		}
	}
}

// handleRedisMessage decodes an envelope and, unless it originated here,
// tries to deliver it to a locally connected principal. A principal not
// connected to this instance either is simply not reached; there is no
// queuing on either side of the bridge.
func (b *RedisBridge) handleRedisMessage(msg *redis.Message) {
	var wrapped redisEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &wrapped); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis envelope")
		return
	}

	if wrapped.InstanceID == b.instanceID {
		return
	}

	if b.target.SendTo(wrapped.Principal, wrapped.Envelope) {
		b.logger.Debug().
			Str("from_instance", wrapped.InstanceID).
			Str("principal", wrapped.Principal).
			Msg("delivered envelope from redis")
	}
}
