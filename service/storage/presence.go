package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

var rdb *redis.Client

func InitRedis(c Config) error {
	cli := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		return errors.WithMessage(err, "redis ping")
	}
	rdb = cli
	return nil
}

func Enabled() bool { return rdb != nil }

// presence key: chat:presence:<user>
// value is the gateway node id; the TTL bounds staleness after a crash.
func presenceKey(user string) string { return "chat:presence:" + user }

// PresenceOnline marks the user online on the given node and renews the TTL.
func PresenceOnline(ctx context.Context, user, nodeID string, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	return rdb.Set(ctx, presenceKey(user), nodeID, ttl).Err()
}

// PresenceOffline clears the user's presence key.
func PresenceOffline(ctx context.Context, user string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(ctx, presenceKey(user)).Err()
}

// PresenceLookup reports whether the user currently holds a live socket.
func PresenceLookup(ctx context.Context, user string) (nodeID string, online bool, err error) {
	if rdb == nil {
		return "", false, nil
	}
	val, err := rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// PresenceLookupMany batches presence for the conversation list page.
func PresenceLookupMany(ctx context.Context, users []string) (map[string]bool, error) {
	out := make(map[string]bool, len(users))
	if rdb == nil || len(users) == 0 {
		return out, nil
	}
	keys := make([]string, len(users))
	for i, u := range users {
		keys[i] = presenceKey(u)
	}
	vals, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		out[users[i]] = v != nil
	}
	return out, nil
}
