package client

import (
	"context"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CommandCache remembers the command names each daemon reported through
// "help -", keyed by socket path.
type CommandCache struct {
	cache *ttlcache.Cache[string, []string]
}

// NewCommandCache returns a cache whose entries expire after ttl.
func NewCommandCache(ttl time.Duration) *CommandCache {
	return &CommandCache{
		cache: ttlcache.New[string, []string](
			ttlcache.WithTTL[string, []string](ttl),
			ttlcache.WithDisableTouchOnHit[string, []string](),
		),
	}
}

// Commands returns the command names understood by the daemon behind c,
// asking it only when the cached list is missing or expired.
func (cc *CommandCache) Commands(ctx context.Context, c *Conn) ([]string, error) {
	if item := cc.cache.Get(c.Path()); item != nil {
		return item.Value(), nil
	}
	resp, err := c.Do(ctx, "help", "-")
	if err != nil {
		return nil, err
	}
	names := strings.Fields(resp.Content())
	cc.cache.Set(c.Path(), names, ttlcache.DefaultTTL)
	return names, nil
}

// IsCommand reports whether name is one of the daemon's commands.
func (cc *CommandCache) IsCommand(ctx context.Context, c *Conn, name string) (bool, error) {
	names, err := cc.Commands(ctx, c)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Complete returns the command names that start with prefix.
func (cc *CommandCache) Complete(ctx context.Context, c *Conn, prefix string) []string {
	names, err := cc.Commands(ctx, c)
	if err != nil {
		return nil
	}
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}
