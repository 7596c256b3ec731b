package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Client wraps the Redis connection shared by the sync workers.
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", addr))
	return &Client{rdb: rdb, logger: logger}, nil
}

// NewFromClient wraps an existing connection.
func NewFromClient(rdb *goredis.Client, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

const lockPrefix = "attendance-sync:device-lock:"

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeviceLocker is a device.Locker shared by every process using the same Redis.
// The TTL bounds how long a crashed worker can hold a device.
type DeviceLocker struct {
	client *Client
	ttl    time.Duration
}

func NewDeviceLocker(client *Client, ttl time.Duration) *DeviceLocker {
	return &DeviceLocker{client: client, ttl: ttl}
}

// Acquire implements device.Locker.
func (l *DeviceLocker) Acquire(ctx context.Context, deviceID string) (func(), error) {
	key := lockPrefix + deviceID
	token := ksuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire device lock: %w", err)
	}
	if !ok {
		return nil, device.ErrSyncInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client.rdb, []string{key}, token).Err(); err != nil {
			l.client.logger.Warn("failed to release device lock",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}, nil
}
