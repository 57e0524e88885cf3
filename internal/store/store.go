// Package store provides Redis connection management for claimsurvival.
//
// A Manager owns the single process-wide client. It is constructed once,
// connected, and its Client handed explicitly to every component.
package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dbsmedya/claimsurvival/internal/config"
)

// Manager handles the connection to the claim store.
type Manager struct {
	Client *redis.Client
	config *config.Config

	maxRetries int
	backoff    time.Duration
}

// NewManager creates a new store manager from configuration.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config:     cfg,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Connect establishes the store connection, retrying with exponential backoff.
func (m *Manager) Connect(ctx context.Context) error {
	client, err := m.connectWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", Addr(&m.config.Redis), err)
	}
	m.Client = client
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context) (*redis.Client, error) {
	var err error
	backoff := m.backoff

	for i := 0; i < m.maxRetries; i++ {
		client := redis.NewClient(BuildOptions(&m.config.Redis))
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		if i < m.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", m.maxRetries, err)
}

// Addr returns the host:port address of the configured server.
func Addr(cfg *config.RedisConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// BuildOptions constructs go-redis client options from configuration.
func BuildOptions(cfg *config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:     Addr(cfg),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeoutSeconds > 0 {
		opts.DialTimeout = time.Duration(cfg.DialTimeoutSeconds) * time.Second
	}

	if cfg.TLS == "required" {
		serverName := cfg.ServerName
		if serverName == "" {
			serverName = cfg.Host
		}
		opts.TLSConfig = &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
		}
	}

	return opts
}

// Close closes the store connection gracefully.
func (m *Manager) Close() error {
	if m.Client == nil {
		return nil
	}
	if err := m.Client.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	m.Client = nil
	return nil
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Client == nil {
		return fmt.Errorf("redis ping failed: not connected")
	}
	if err := m.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// KeyCount returns the number of keys in the selected database, used by validate.
func (m *Manager) KeyCount(ctx context.Context) (int64, error) {
	if m.Client == nil {
		return 0, fmt.Errorf("not connected")
	}
	n, err := m.Client.DBSize(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read key count: %w", err)
	}
	return n, nil
}
