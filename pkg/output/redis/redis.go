package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"github.com/ericogr/hcsr04-exerciser/pkg/output"
	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAddr    = "localhost:6379"
	DefaultChannel = "hcsr04_readings"
	DefaultMaxLen  = 1000

	publishTimeout = 2 * time.Second
)

type RedisOutput struct {
	client  *redis.Client
	channel string
	listKey string
	maxLen  int64
	log     logrus.FieldLogger
}

// NewRedis connects to Redis and verifies the connection. deviceID names the
// history list the readings are kept in.
func NewRedis(cfg config.RedisConfig, deviceID string, log logrus.FieldLogger) (output.Output, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", cfg.Addr, err)
	}
	log.WithField("addr", cfg.Addr).Info("redis connected")

	return newRedisOutput(client, cfg, deviceID, log), nil
}

func newRedisOutput(client *redis.Client, cfg config.RedisConfig, deviceID string, log logrus.FieldLogger) *RedisOutput {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &RedisOutput{
		client:  client,
		channel: channel,
		listKey: ListKey(deviceID),
		maxLen:  maxLen,
		log:     log,
	}
}

// ListKey returns the history list key for a device.
func ListKey(deviceID string) string {
	return fmt.Sprintf("hcsr04:%s:readings", deviceID)
}

// Publish sends the reading on the pub/sub channel and keeps the latest
// maxLen readings in the device's history list.
func (o *RedisOutput) Publish(r sensor.Reading) error {
	b, err := json.Marshal(output.NewDocument(r))
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := o.client.Publish(ctx, o.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	pipe := o.client.TxPipeline()
	pipe.LPush(ctx, o.listKey, b)
	pipe.LTrim(ctx, o.listKey, 0, o.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		o.log.WithError(err).WithField("key", o.listKey).Warn("redis history update failed")
	}
	return nil
}

func (o *RedisOutput) Close() error {
	return o.client.Close()
}
