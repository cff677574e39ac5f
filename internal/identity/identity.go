package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/util"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const (
	apiKeysRedisKey  = "genrouter:apikeys"
	defaultCacheSize = 4096
	defaultCacheTTL  = time.Minute
	callerIDLength   = 12
)

var (
	errMissingCredential = core.NewUnauthenticatedError("API key required in Authorization header (Bearer) or x-api-key header")
	errInvalidCredential = core.NewUnauthenticatedError("invalid API key")
)

// callerIDFor derives a stable, non-reversible caller id from a key.
func callerIDFor(key string) string {
	return "key-" + util.HashKey(key)[:callerIDLength]
}

type staticKey struct {
	key  []byte
	role string
}

// StaticVerifier accepts a fixed set of API keys from configuration.
type StaticVerifier struct {
	keys []staticKey
}

// NewStaticVerifier registers userKeys with the user role and adminKeys with
// the admin role.
func NewStaticVerifier(userKeys, adminKeys []string) *StaticVerifier {
	v := &StaticVerifier{}
	for _, k := range adminKeys {
		if k != "" {
			v.keys = append(v.keys, staticKey{key: []byte(k), role: core.RoleAdmin})
		}
	}
	for _, k := range userKeys {
		if k != "" {
			v.keys = append(v.keys, staticKey{key: []byte(k), role: core.RoleUser})
		}
	}
	return v
}

// Len returns the number of configured keys.
func (v *StaticVerifier) Len() int {
	return len(v.keys)
}

func (v *StaticVerifier) Verify(ctx context.Context, credential string) (core.Caller, error) {
	if credential == "" {
		return core.Caller{}, errMissingCredential
	}
	provided := []byte(credential)
	for _, k := range v.keys {
		if len(provided) == len(k.key) && subtle.ConstantTimeCompare(provided, k.key) == 1 {
			return core.Caller{ID: callerIDFor(credential), Role: k.role}, nil
		}
	}
	return core.Caller{}, errInvalidCredential
}

type keyRecord struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Active *bool  `json:"active,omitempty"`
}

// RedisVerifier looks API keys up in the Redis hash genrouter:apikeys,
// whose fields are SHA-256 hex digests of the keys and whose values are
// JSON records {userId, role, active}. Accepted keys are cached briefly.
type RedisVerifier struct {
	client *redis.Client
	key    string
	cache  *expirable.LRU[string, core.Caller]
	logger core.Logger
}

// RedisVerifierConfig tunes the verifier cache.
type RedisVerifierConfig struct {
	Key       string
	CacheSize int
	CacheTTL  time.Duration
	Logger    core.Logger
}

func NewRedisVerifier(client *redis.Client, cfg RedisVerifierConfig) *RedisVerifier {
	if cfg.Key == "" {
		cfg.Key = apiKeysRedisKey
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NopLogger{}
	}
	return &RedisVerifier{
		client: client,
		key:    cfg.Key,
		cache:  expirable.NewLRU[string, core.Caller](cfg.CacheSize, nil, cfg.CacheTTL),
		logger: cfg.Logger,
	}
}

func (v *RedisVerifier) Verify(ctx context.Context, credential string) (core.Caller, error) {
	if credential == "" {
		return core.Caller{}, errMissingCredential
	}
	digest := util.HashKey(credential)
	if c, ok := v.cache.Get(digest); ok {
		return c, nil
	}

	raw, err := v.client.HGet(ctx, v.key, digest).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Caller{}, errInvalidCredential
		}
		v.logger.Error("api key lookup for %s failed: %v", util.MaskKey(credential), err)
		return core.Caller{}, &core.Error{Kind: core.ErrKindInternal, Message: "credential lookup failed", Cause: err}
	}

	var rec keyRecord
	if err := util.UnmarshalJSON(raw, &rec); err != nil {
		return core.Caller{}, &core.Error{Kind: core.ErrKindInternal, Message: "credential lookup failed", Cause: fmt.Errorf("decode key record: %w", err)}
	}
	if rec.Active != nil && !*rec.Active {
		v.logger.Debug("rejected disabled api key %s", util.MaskKey(credential))
		return core.Caller{}, core.NewUnauthenticatedError("API key is disabled")
	}

	caller := core.Caller{ID: rec.UserID, Role: rec.Role}
	if caller.ID == "" {
		caller.ID = callerIDFor(credential)
	}
	if caller.Role == "" {
		caller.Role = core.RoleUser
	}
	v.cache.Add(digest, caller)
	return caller, nil
}

// Revoke drops a key from the cache so its next use is looked up again.
func (v *RedisVerifier) Revoke(credential string) {
	v.cache.Remove(util.HashKey(credential))
}

// Chain tries each verifier in order. Only an unauthenticated result moves
// on to the next verifier; other failures stop the chain.
type Chain []core.IdentityVerifier

func (c Chain) Verify(ctx context.Context, credential string) (core.Caller, error) {
	if credential == "" {
		return core.Caller{}, errMissingCredential
	}
	err := error(errInvalidCredential)
	for _, v := range c {
		caller, verr := v.Verify(ctx, credential)
		if verr == nil {
			return caller, nil
		}
		if core.KindOf(verr) != core.ErrKindUnauthenticated {
			return core.Caller{}, verr
		}
		err = verr
	}
	return core.Caller{}, err
}
