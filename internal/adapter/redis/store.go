// Package redis provides the shared baseline tier of the baseline cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

const keyPrefix = "rainfall:baseline:"

// Store keeps baseline ensembles as JSON under a TTL so that several engine
// instances share computed baselines. It implements cache.Store.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewStore connects to addr and verifies the connection with a ping.
func NewStore(ctx context.Context, addr string, ttl time.Duration) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "connect to redis at %s", addr)
	}
	return &Store{client: client, ttl: ttl}, nil
}

// Get returns the stored baseline for key; found is false when none is stored.
func (s *Store) Get(ctx context.Context, key string) (domain.EnsembleResult, bool, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.EnsembleResult{}, false, nil
	}
	if err != nil {
		return domain.EnsembleResult{}, false, eris.Wrapf(err, "get baseline %s", key)
	}

	var res domain.EnsembleResult
	if err := json.Unmarshal(val, &res); err != nil {
		return domain.EnsembleResult{}, false, eris.Wrapf(err, "decode baseline %s", key)
	}
	return res, true, nil
}

// Set stores the baseline under key for the configured TTL.
func (s *Store) Set(ctx context.Context, key string, res domain.EnsembleResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return eris.Wrapf(err, "encode baseline %s", key)
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		return eris.Wrapf(err, "set baseline %s", key)
	}
	return nil
}

// Ping reports whether Redis answers; used as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
