package clinic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ConfigSource retrieves clinic configuration.
type ConfigSource interface {
	Get(ctx context.Context, orgID string) (*Config, error)
}

// Store provides persistence for clinic configurations.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new clinic config store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(orgID string) string {
	return fmt.Sprintf("clinic:config:%s", orgID)
}

// Get retrieves clinic config, returning the default if not found.
func (s *Store) Get(ctx context.Context, orgID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if err == redis.Nil {
		return DefaultConfig(orgID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Set saves clinic config.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(cfg.OrgID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set config: %w", err)
	}

	return nil
}

// StaticSource serves a fixed configuration. Used when redis is not
// configured (single-clinic deployments, tests).
type StaticSource struct {
	cfg *Config
}

// NewStaticSource wraps a fixed config; nil falls back to the default.
func NewStaticSource(cfg *Config) *StaticSource {
	return &StaticSource{cfg: cfg}
}

// Get returns the wrapped config regardless of orgID.
func (s *StaticSource) Get(_ context.Context, orgID string) (*Config, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}
	return DefaultConfig(orgID), nil
}

var (
	_ ConfigSource = (*Store)(nil)
	_ ConfigSource = (*StaticSource)(nil)
)
