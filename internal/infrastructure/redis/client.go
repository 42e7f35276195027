package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client is the shared connection behind the token and attempt stores. All
// keys live under the mail: prefix (mail:tokens:*, mail:userinfo:*,
// mail:attempt:*); a non-zero db keeps them apart from other services on a
// shared instance.
type Client struct {
	rdb *goredis.Client
}

func New(addr, password string, db int) *Client {
	return &Client{
		rdb: goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping bounds its own deadline so a dead redis cannot stall bootstrap; a
// failure here downgrades the service to in-memory stores.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
