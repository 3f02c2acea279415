package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"vsla-ledger/models"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// BalanceCache holds computed group balances between writes. Entries are
// keyed by group and then by project ("all" for the whole group).
//
// Every Invalidate bumps the group's generation. Set takes the generation the
// caller read before computing and stores nothing if it has moved since, so a
// balance computed before a write can never land after that write's
// invalidation.
type BalanceCache interface {
	Get(ctx context.Context, groupID uuid.UUID, key string) (*models.GroupBalance, bool)
	Generation(ctx context.Context, groupID uuid.UUID) (uint64, error)
	Set(ctx context.Context, groupID uuid.UUID, key string, gen uint64, bal *models.GroupBalance) error
	Invalidate(ctx context.Context, groupID uuid.UUID) error
}

// NewBalanceCache prefers Redis and falls back to an in-process cache.
func NewBalanceCache(rdb *redis.Client, ttl time.Duration) BalanceCache {
	if rdb != nil {
		return &RedisBalanceCache{client: rdb, ttl: ttl}
	}
	return NewMemoryBalanceCache(ttl)
}

func balanceKey(projectID *uuid.UUID) string {
	if projectID == nil {
		return "all"
	}
	return projectID.String()
}

func groupCacheKey(groupID uuid.UUID) string {
	return "group_balance:" + groupID.String()
}

func groupGenerationKey(groupID uuid.UUID) string {
	return "group_balance_gen:" + groupID.String()
}

// RedisBalanceCache stores one hash per group so a single DEL drops every
// project view of it.
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (c *RedisBalanceCache) Get(ctx context.Context, groupID uuid.UUID, key string) (*models.GroupBalance, bool) {
	raw, err := c.client.HGet(ctx, groupCacheKey(groupID), key).Bytes()
	if err != nil {
		return nil, false
	}
	var bal models.GroupBalance
	if err := json.Unmarshal(raw, &bal); err != nil {
		return nil, false
	}
	return &bal, true
}

func (c *RedisBalanceCache) Generation(ctx context.Context, groupID uuid.UUID) (uint64, error) {
	gen, err := c.client.Get(ctx, groupGenerationKey(groupID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set watches the generation key, so an Invalidate between the check and the
// write aborts the transaction.
func (c *RedisBalanceCache) Set(ctx context.Context, groupID uuid.UUID, key string, gen uint64, bal *models.GroupBalance) error {
	raw, err := json.Marshal(bal)
	if err != nil {
		return err
	}
	hkey, gkey := groupCacheKey(groupID), groupGenerationKey(groupID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, gkey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hkey, key, raw)
			pipe.Expire(ctx, hkey, c.ttl)
			return nil
		})
		return err
	}, gkey)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("cache group balance: %w", err)
	}
	return nil
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, groupID uuid.UUID) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, groupGenerationKey(groupID))
	pipe.Del(ctx, groupCacheKey(groupID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

type MemoryBalanceCache struct {
	store *gocache.Cache

	mu   sync.Mutex
	gens map[uuid.UUID]uint64
}

func NewMemoryBalanceCache(ttl time.Duration) *MemoryBalanceCache {
	return &MemoryBalanceCache{store: gocache.New(ttl, 2*ttl), gens: map[uuid.UUID]uint64{}}
}

func (c *MemoryBalanceCache) Get(_ context.Context, groupID uuid.UUID, key string) (*models.GroupBalance, bool) {
	v, ok := c.store.Get(groupCacheKey(groupID) + ":" + key)
	if !ok {
		return nil, false
	}
	bal := v.(models.GroupBalance)
	return &bal, true
}

func (c *MemoryBalanceCache) Generation(_ context.Context, groupID uuid.UUID) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[groupID], nil
}

func (c *MemoryBalanceCache) Set(_ context.Context, groupID uuid.UUID, key string, gen uint64, bal *models.GroupBalance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[groupID] != gen {
		return nil
	}
	c.store.SetDefault(groupCacheKey(groupID)+":"+key, *bal)
	return nil
}

func (c *MemoryBalanceCache) Invalidate(_ context.Context, groupID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[groupID]++
	prefix := groupCacheKey(groupID) + ":"
	for k := range c.store.Items() {
		if strings.HasPrefix(k, prefix) {
			c.store.Delete(k)
		}
	}
	return nil
}

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, uuid.UUID, string) (*models.GroupBalance, bool) {
	return nil, false
}
func (NoopCache) Generation(context.Context, uuid.UUID) (uint64, error) { return 0, nil }
func (NoopCache) Set(context.Context, uuid.UUID, string, uint64, *models.GroupBalance) error {
	return nil
}
func (NoopCache) Invalidate(context.Context, uuid.UUID) error { return nil }
