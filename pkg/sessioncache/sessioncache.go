// Package sessioncache implements the credential session cache: a
// short-lived, per-(owner, name) store for credentials resolved via
// CredentialSession. When Redis is configured, entries are shared across
// process restarts and encrypted at rest; otherwise the cache falls back
// to an in-process map with the same encryption and expiry semantics.
package sessioncache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/crypto"
)

// DefaultTTL matches a typical interactive session lifetime. A credential
// left in the cache past this must be re-resolved.
const DefaultTTL = 30 * time.Minute

type memEntry struct {
	ciphertext string
	expiresAt  time.Time
}

// Cache resolves and stores credentials for ConnectionSpecs whose
// CredentialKind is CredentialSession. Writes to the same (owner, name)
// key are serialized through a per-key mutex so a slow write never
// clobbers a concurrent one.
type Cache struct {
	redis     *redis.Client
	encryptor *crypto.CredentialEncryptor
	ttl       time.Duration
	logger    *zap.Logger

	keyLocks sync.Map // key string -> *sync.Mutex

	memMu sync.Mutex
	mem   map[string]memEntry
}

// New returns a Cache. redisClient may be nil, in which case entries are
// held in an in-process map for the lifetime of this process only.
func New(redisClient *redis.Client, encryptor *crypto.CredentialEncryptor, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		redis:     redisClient,
		encryptor: encryptor,
		ttl:       DefaultTTL,
		logger:    logger.Named("sessioncache"),
		mem:       make(map[string]memEntry),
	}
}

func sessionKey(owner, name string) string {
	return fmt.Sprintf("credsession:%s:%s", owner, name)
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	lock, _ := c.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Put stores secret under (owner, name), encrypted at rest, replacing any
// existing entry. Concurrent Put/Get/Invalidate calls for the same key
// are serialized.
func (c *Cache) Put(ctx context.Context, owner, name, secret string) error {
	key := sessionKey(owner, name)
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	ciphertext, err := c.encryptor.Encrypt(secret)
	if err != nil {
		return fmt.Errorf("encrypt session credential: %w", err)
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, ciphertext, c.ttl).Err(); err != nil {
			return fmt.Errorf("store session credential in redis: %w", err)
		}
		return nil
	}

	c.memMu.Lock()
	c.mem[key] = memEntry{ciphertext: ciphertext, expiresAt: time.Now().Add(c.ttl)}
	c.memMu.Unlock()
	return nil
}

// Get resolves the credential for (owner, name). It returns
// apperrors.AuthMissing if no (unexpired) entry exists.
func (c *Cache) Get(ctx context.Context, owner, name string) (string, error) {
	key := sessionKey(owner, name)
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	var ciphertext string
	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		if err == redis.Nil {
			return "", apperrors.New(apperrors.AuthMissing, fmt.Sprintf("no session credential cached for %s/%s", owner, name))
		}
		if err != nil {
			return "", fmt.Errorf("load session credential from redis: %w", err)
		}
		ciphertext = val
	} else {
		c.memMu.Lock()
		entry, ok := c.mem[key]
		if ok && time.Now().After(entry.expiresAt) {
			delete(c.mem, key)
			ok = false
		}
		c.memMu.Unlock()
		if !ok {
			return "", apperrors.New(apperrors.AuthMissing, fmt.Sprintf("no session credential cached for %s/%s", owner, name))
		}
		ciphertext = entry.ciphertext
	}

	secret, err := c.encryptor.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt session credential: %w", err)
	}
	return secret, nil
}

// Invalidate drops the cached credential for (owner, name), called when a
// session ends.
func (c *Cache) Invalidate(ctx context.Context, owner, name string) error {
	key := sessionKey(owner, name)
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if c.redis != nil {
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("invalidate session credential in redis: %w", err)
		}
		return nil
	}

	c.memMu.Lock()
	delete(c.mem, key)
	c.memMu.Unlock()
	return nil
}
