package redis

import (
	"io"
	"testing"

	"github.com/ericogr/hcsr04-exerciser/pkg/config"
	"github.com/ericogr/hcsr04-exerciser/pkg/ranging"
	"github.com/ericogr/hcsr04-exerciser/pkg/sensor"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestListKey(t *testing.T) {
	assert.Equal(t, "hcsr04:hcsr04_driver:readings", ListKey("hcsr04_driver"))
}

func TestNewRedisOutputDefaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	o := newRedisOutput(client, config.RedisConfig{}, "dev0", quietLogger())
	defer o.Close()

	assert.Equal(t, DefaultChannel, o.channel)
	assert.Equal(t, int64(DefaultMaxLen), o.maxLen)
	assert.Equal(t, "hcsr04:dev0:readings", o.listKey)

	o = newRedisOutput(client, config.RedisConfig{Channel: "ranges", MaxLen: 10}, "dev1", quietLogger())
	assert.Equal(t, "ranges", o.channel)
	assert.Equal(t, int64(10), o.maxLen)
}

func TestNewRedisUnreachable(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{Addr: "127.0.0.1:1"}, "dev0", quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connect")
}

func TestPublishUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	o := newRedisOutput(client, config.RedisConfig{}, "dev0", quietLogger())
	defer o.Close()

	err := o.Publish(sensor.Reading{Cycle: 1, Status: ranging.StatusSuccess, DistanceCM: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish")
}
