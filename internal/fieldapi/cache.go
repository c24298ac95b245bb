package fieldapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefinitionFetcher fetches form definitions from the survey platform.
type DefinitionFetcher interface {
	GetFormDefinition(ctx context.Context, formID int64) (json.RawMessage, error)
}

// FormCache caches form definitions in redis. Concurrent misses for the
// same form collapse into one upstream fetch.
type FormCache struct {
	client  *redis.Client
	fetcher DefinitionFetcher
	ttl     time.Duration
	group   singleflight.Group
}

// NewFormCache instantiates the cache.
func NewFormCache(client *redis.Client, fetcher DefinitionFetcher, ttl time.Duration) *FormCache {
	return &FormCache{client: client, fetcher: fetcher, ttl: ttl}
}

func formKey(formID int64) string {
	return fmt.Sprintf("fieldapi:form:%d", formID)
}

// Definition returns the parsed form definition, from cache when possible.
// API errors pass through unwrapped so callers can inspect ClientError.
func (c *FormCache) Definition(ctx context.Context, formID int64) (*FormDefinition, error) {
	raw, err := c.rawDefinition(ctx, formID)
	if err != nil {
		return nil, err
	}
	var def FormDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse form %d definition: %w", formID, err)
	}
	return &def, nil
}

func (c *FormCache) rawDefinition(ctx context.Context, formID int64) (json.RawMessage, error) {
	key := formKey(formID)
	if c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return payload, nil
		}
		if err != redis.Nil {
			return nil, err
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		raw, err := c.fetcher.GetFormDefinition(ctx, formID)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			if err := c.client.Set(ctx, key, []byte(raw), c.ttl).Err(); err != nil {
				return nil, err
			}
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}
