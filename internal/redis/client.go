package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "livechat:"

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// FanoutChannel carries chat deliveries between server instances.
func FanoutChannel() string {
	return channelPrefix + "fanout"
}

// ConnectLimitKey scopes the visitor connect limiter per client IP.
func ConnectLimitKey(ip string) string {
	return fmt.Sprintf("%sconnect:%s", channelPrefix, ip)
}
